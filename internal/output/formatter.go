// Package output renders assignment decisions and ownership listings for
// the terminal and for machines.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rohankatakam/bugrouter/internal/models"
)

// Formatter renders a decision
type Formatter interface {
	Format(d *models.AssignmentDecision, w io.Writer) error
}

// Output formats accepted by --format
const (
	FormatQuiet    = "quiet"
	FormatStandard = "text"
	FormatJSON     = "json"
	FormatYAML     = "yaml"
)

// NewFormatter returns the formatter for a --format value
func NewFormatter(format string) (Formatter, error) {
	switch format {
	case FormatQuiet:
		return &QuietFormatter{}, nil
	case FormatStandard, "":
		return &StandardFormatter{}, nil
	case FormatJSON:
		return &JSONFormatter{}, nil
	case FormatYAML:
		return &YAMLFormatter{}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q (want text, quiet, json or yaml)", format)
	}
}

// DefaultFormat picks a format from the environment
func DefaultFormat() string {
	// CI logs are parsed by scripts
	if os.Getenv("CI") == "true" {
		return FormatJSON
	}
	return FormatStandard
}

// JSONFormatter writes the decision as indented JSON
type JSONFormatter struct{}

func (f *JSONFormatter) Format(d *models.AssignmentDecision, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(d)
}

// YAMLFormatter writes the decision as YAML
type YAMLFormatter struct{}

func (f *YAMLFormatter) Format(d *models.AssignmentDecision, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return err
	}
	return enc.Close()
}
