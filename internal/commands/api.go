package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gptkit/gptkit-cli/internal/api"
	"github.com/gptkit/gptkit-cli/internal/output"
)

// NewAPICmd creates the api command for raw API access.
func NewAPICmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "api <verb> <path>",
		Short: "Raw API access",
		Long: `Make authenticated requests to any backend endpoint. Useful for operations
not covered by dedicated commands. An expired access token is refreshed and
the request retried once, exactly as for every other command.`,
	}

	cmd.AddCommand(
		newAPIVerbCmd(http.MethodGet, false),
		newAPIVerbCmd(http.MethodPost, true),
		newAPIVerbCmd(http.MethodPut, true),
		newAPIVerbCmd(http.MethodDelete, false),
	)

	return cmd
}

func newAPIVerbCmd(method string, withBody bool) *cobra.Command {
	var data string
	verb := strings.ToLower(method)

	cmd := &cobra.Command{
		Use:   verb + " <path>",
		Short: method + " request to API",
		Long:  fmt.Sprintf("Make a raw %s request to a backend endpoint, e.g. gptkit api %s wp/config.", method, verb),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}

			var body any
			if withBody {
				if data == "" {
					return output.ErrUsage("--data is required")
				}
				var probe any
				if err := json.Unmarshal([]byte(data), &probe); err != nil {
					return output.ErrUsageHint("Invalid JSON data", fmt.Sprintf("JSON parse error: %v", err))
				}
				body = json.RawMessage(data)
			}

			if err := app.RequireSession(cmd.Context()); err != nil {
				return err
			}

			path := parsePath(args[0], app.Config.BaseURL)
			req, err := api.NewRequest(method, path, body)
			if err != nil {
				return err
			}
			resp, err := app.Session.Send(cmd.Context(), req)
			if err != nil {
				return err
			}

			result := decodeBody(resp.Body)
			return app.OK(result,
				output.WithSummary(fmt.Sprintf("%s /%s: %s", method, path, apiSummary(result))),
			)
		},
	}

	if withBody {
		cmd.Flags().StringVarP(&data, "data", "d", "", "JSON request body (required)")
		_ = cmd.MarkFlagRequired("data") // Error only if flag doesn't exist
	}

	return cmd
}

// parsePath turns a full URL under baseURL, or a path with or without a
// leading slash, into a path relative to the base URL.
func parsePath(input, baseURL string) string {
	if baseURL != "" && strings.HasPrefix(input, baseURL) {
		input = strings.TrimPrefix(input, baseURL)
	}
	return strings.TrimLeft(input, "/")
}

// decodeBody returns JSON bodies as values and anything else as text. An
// empty body becomes an empty object.
func decodeBody(body []byte) any {
	if len(strings.TrimSpace(string(body))) == 0 {
		return map[string]any{}
	}
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return string(body)
	}
	return v
}

func apiSummary(data any) string {
	switch d := data.(type) {
	case []any:
		return fmt.Sprintf("%d items", len(d))
	case map[string]any:
		if len(d) == 0 {
			return "no content"
		}
		return fmt.Sprintf("%d fields", len(d))
	case string:
		return fmt.Sprintf("%d bytes", len(d))
	default:
		return "ok"
	}
}
