package wordpress

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultCustomPrompt is the template used when UseCustomPrompt is set and
// no prompt has been saved. {topic} is replaced by the server.
const DefaultCustomPrompt = "Write a very long and detailied blog post about {topic} with a concise and appealing title, " +
	"a summary of the whole blog post right below, and the full content in the style of an expert with 15 years of " +
	"experience without explicitly mentioning this."

// Config holds the generation settings stored on the backend.
type Config struct {
	Model            string  `json:"model" yaml:"model"`
	UseCustomPrompt  bool    `json:"useCustomPrompt" yaml:"useCustomPrompt"`
	CustomPrompt     string  `json:"customPrompt" yaml:"customPrompt"`
	Autosend         bool    `json:"autosend" yaml:"autosend"`
	FrequencyPenalty float64 `json:"frequencyPenalty" yaml:"frequencyPenalty"`
	PresencePenalty  float64 `json:"presencePenalty" yaml:"presencePenalty"`
	Temperature      float64 `json:"temperature" yaml:"temperature"`
	MaxTokens        int     `json:"maxTokens" yaml:"maxTokens"`
	ReasoningEffort  string  `json:"reasoningEffort" yaml:"reasoningEffort"`
}

// DefaultConfig returns the settings a new account starts with.
func DefaultConfig() Config {
	return Config{
		Model:            "gpt-4.5-preview",
		UseCustomPrompt:  false,
		CustomPrompt:     DefaultCustomPrompt,
		Autosend:         false,
		FrequencyPenalty: 0,
		PresencePenalty:  0.35,
		Temperature:      0.7,
		MaxTokens:        4000,
		ReasoningEffort:  "medium",
	}
}

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid config")

var reasoningEfforts = map[string]bool{"low": true, "medium": true, "high": true}

// Validate checks that every field is within the range the backend accepts.
func (c Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Model) == "" {
		problems = append(problems, "model is required")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		problems = append(problems, "temperature must be between 0 and 2")
	}
	if c.FrequencyPenalty < -2 || c.FrequencyPenalty > 2 {
		problems = append(problems, "frequencyPenalty must be between -2 and 2")
	}
	if c.PresencePenalty < -2 || c.PresencePenalty > 2 {
		problems = append(problems, "presencePenalty must be between -2 and 2")
	}
	if c.MaxTokens <= 0 {
		problems = append(problems, "maxTokens must be positive")
	}
	if !reasoningEfforts[c.ReasoningEffort] {
		problems = append(problems, "reasoningEffort must be one of low, medium, high")
	}
	if c.UseCustomPrompt && strings.TrimSpace(c.CustomPrompt) == "" {
		problems = append(problems, "customPrompt is required when useCustomPrompt is set")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// LoadConfigFile reads a YAML or JSON file over DefaultConfig. Fields absent
// from the file keep their defaults.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path) //nolint:gosec // G304: path is supplied by the user on the command line
	if err != nil {
		return Config{}, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &cfg)
	default:
		// YAML is a superset of JSON, so anything else goes through yaml.v3.
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return Config{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Set assigns a single field by its JSON name, parsing value to the field's
// type.
func (c *Config) Set(key, value string) error {
	parseFloat := func() (float64, error) {
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("%s: %q is not a number", key, value)
		}
		return f, nil
	}
	parseBool := func() (bool, error) {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return false, fmt.Errorf("%s: %q is not true or false", key, value)
		}
		return b, nil
	}

	var err error
	switch key {
	case "model":
		c.Model = value
	case "customPrompt":
		c.CustomPrompt = value
	case "reasoningEffort":
		c.ReasoningEffort = value
	case "useCustomPrompt":
		c.UseCustomPrompt, err = parseBool()
	case "autosend":
		c.Autosend, err = parseBool()
	case "frequencyPenalty":
		c.FrequencyPenalty, err = parseFloat()
	case "presencePenalty":
		c.PresencePenalty, err = parseFloat()
	case "temperature":
		c.Temperature, err = parseFloat()
	case "maxTokens":
		c.MaxTokens, err = strconv.Atoi(value)
		if err != nil {
			err = fmt.Errorf("maxTokens: %q is not an integer", value)
		}
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	return err
}
