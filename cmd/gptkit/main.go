// Package main is the entry point for the gptkit CLI.
package main

import "github.com/gptkit/gptkit-cli/internal/cli"

func main() {
	cli.Execute()
}
