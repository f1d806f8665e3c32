package tui

import (
	"errors"
	"net/mail"
	"strings"

	"github.com/charmbracelet/huh"
)

// Credentials collects sign-in or sign-up fields. Name is only prompted for
// when registering.
type Credentials struct {
	Name     string
	Email    string
	Password string
}

// PromptCredentials asks for whichever fields of c are still empty.
// withName adds the display-name field for registration.
func PromptCredentials(c *Credentials, withName bool) error {
	var fields []huh.Field

	if withName && c.Name == "" {
		fields = append(fields, huh.NewInput().
			Title("Name").
			Value(&c.Name).
			Validate(required))
	}
	if c.Email == "" {
		fields = append(fields, huh.NewInput().
			Title("Email").
			Placeholder("you@example.com").
			Value(&c.Email).
			Validate(validateEmail))
	}
	if c.Password == "" {
		fields = append(fields, huh.NewInput().
			Title("Password").
			EchoMode(huh.EchoModePassword).
			Value(&c.Password).
			Validate(required))
	}
	if len(fields) == 0 {
		return nil
	}

	title := "Sign in"
	if withName {
		title = "Create account"
	}
	return huh.NewForm(huh.NewGroup(fields...).Title(title)).Run()
}

// Confirm shows a yes/no confirmation prompt.
func Confirm(message string, defaultValue bool) (bool, error) {
	result := defaultValue
	err := huh.NewConfirm().
		Title(message).
		Affirmative("Yes").
		Negative("No").
		Value(&result).
		Run()
	if err != nil {
		return defaultValue, err
	}
	return result, nil
}

func required(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("this field is required")
	}
	return nil
}

func validateEmail(s string) error {
	if err := required(s); err != nil {
		return err
	}
	if _, err := mail.ParseAddress(s); err != nil {
		return errors.New("enter a valid email address")
	}
	return nil
}
