// Package script builds the command template sequence, either the built-in
// default or one read from a YAML or TOML file.
package script

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"browser-steps/internal/session"
)

// URLToken is replaced by the target URL in step selectors and values.
const URLToken = "{{url}}"

var (
	ErrEmptyScript       = errors.New("script has no steps")
	ErrUnsupportedFormat = errors.New("unsupported script format")
	ErrUnknownAction     = errors.New("unknown action type")
)

// knownActions are the step types the browser extension can execute.
var knownActions = map[string]bool{
	"action_goto_url":                                true,
	"action_goto_site":                               true,
	"action_click_element_containing_text":           true,
	"action_click_element_containing_text_if_exists": true,
	"action_click_element":                           true,
	"action_click_element_if_exists":                 true,
	"action_enter_text_in_field":                     true,
	"action_execute_js":                              true,
	"action_wait_for_seconds":                        true,
	"action_wait_for_text":                           true,
	"action_wait_for_text_in_element":                true,
	"action_press_enter":                             true,
	"action_check_checkbox":                          true,
	"action_uncheck_checkbox":                        true,
	"action_scroll_down":                             true,
	"action_get_html_content":                        true,
}

// KnownAction reports whether the extension understands the action type.
func KnownAction(t string) bool {
	return knownActions[t]
}

// File is the on-disk script layout.
type File struct {
	Steps []session.Template `yaml:"steps" toml:"steps"`
}

// Default returns the built-in sequence: open the target, wait, probe the
// heading and price, scroll, then capture the page.
func Default(targetURL string) []session.Template {
	return []session.Template{
		{Type: "action_goto_url", Value: str(targetURL)},
		{Type: "action_wait_for_seconds", Value: str("3")},
		{Type: "action_execute_js", Value: str("document.querySelector('h1')?.textContent")},
		{Type: "action_execute_js", Value: str("document.querySelector('.price')?.textContent")},
		{Type: "action_scroll_down"},
		{Type: "action_get_html_content"},
	}
}

// Load reads a script file. The format is chosen by extension.
func Load(path, targetURL string) ([]session.Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	steps, err := Parse(data, filepath.Ext(path), targetURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return steps, nil
}

// Parse decodes script data in the format named by ext (".yaml", ".yml"
// or ".toml"), validates it and substitutes the target URL.
func Parse(data []byte, ext, targetURL string) ([]session.Template, error) {
	var f File
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse YAML: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse TOML: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	if err := Validate(f.Steps); err != nil {
		return nil, err
	}
	for i := range f.Steps {
		f.Steps[i].Selector = substitute(f.Steps[i].Selector, targetURL)
		f.Steps[i].Value = substitute(f.Steps[i].Value, targetURL)
	}
	return f.Steps, nil
}

// Validate checks that the sequence is non-empty and every step has a
// known type.
func Validate(steps []session.Template) error {
	if len(steps) == 0 {
		return ErrEmptyScript
	}
	for i, s := range steps {
		if s.Type == "" {
			return fmt.Errorf("step %d: type is required", i+1)
		}
		if !KnownAction(s.Type) {
			return fmt.Errorf("step %d: %w: %s", i+1, ErrUnknownAction, s.Type)
		}
	}
	return nil
}

func substitute(s *string, targetURL string) *string {
	if s == nil || !strings.Contains(*s, URLToken) {
		return s
	}
	return str(strings.ReplaceAll(*s, URLToken, targetURL))
}

func str(s string) *string { return &s }
