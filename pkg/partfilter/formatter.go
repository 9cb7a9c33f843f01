package partfilter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	// we cannot use "maps" yet, as it needs go1.23
	"golang.org/x/exp/maps"
	"gopkg.in/yaml.v3"
)

// OutputFormat contains the valid output formats for formatting results
type OutputFormat string

const (
	OutputFormatDefault   OutputFormat = ""
	OutputFormatText      OutputFormat = "text"
	OutputFormatJSON      OutputFormat = "json"
	OutputFormatYAML      OutputFormat = "yaml"
	OutputFormatTextShort OutputFormat = "short"
)

// ResultsFormatter will format the given targets to the given io.Writer
type ResultsFormatter interface {
	Output(io.Writer, []Target) error
}

var supportedFormatters = map[string]ResultsFormatter{
	string(OutputFormatDefault):   &textResultsFormatter{},
	string(OutputFormatText):      &textResultsFormatter{},
	string(OutputFormatJSON):      &jsonResultsFormatter{},
	string(OutputFormatYAML):      &yamlResultsFormatter{},
	string(OutputFormatTextShort): &textShortResultsFormatter{},
}

// SupportedOutputFormats returns a list of supported output formats
func SupportedOutputFormats() []string {
	keys := maps.Keys(supportedFormatters)
	sort.Strings(keys)
	return keys
}

// NewResultsFormatter will create a formatter based on the given format.
func NewResultsFormatter(format OutputFormat) (ResultsFormatter, error) {
	rs, ok := supportedFormatters[string(format)]
	if !ok {
		return nil, fmt.Errorf("unsupported formatter %q", format)
	}
	return rs, nil
}

type textResultsFormatter struct{}

func (*textResultsFormatter) Output(w io.Writer, all []Target) error {
	var errs []error

	for _, t := range all {
		// the terms are valid filter terms, e.g. "bus:sdcard"
		line := fmt.Sprintf("%s kind:%s", t.Name, t.Kind)
		if t.Label != "" {
			line += " label:" + t.Label
		}
		if t.Bus != "" {
			line += " bus:" + t.Bus
		}
		if _, err := fmt.Fprintf(w, "%s (%d MiB)\n", line, t.Size.MiBs()); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

type textShortResultsFormatter struct{}

func (*textShortResultsFormatter) Output(w io.Writer, all []Target) error {
	var errs []error

	for _, t := range all {
		if _, err := fmt.Fprintln(w, t.Name); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

type targetResult struct {
	Name  string `json:"name" yaml:"name"`
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
	Size  uint64 `json:"size" yaml:"size"`
	UUID  string `json:"uuid,omitempty" yaml:"uuid,omitempty"`
	Bus   string `json:"bus,omitempty" yaml:"bus,omitempty"`
	Kind  Kind   `json:"kind" yaml:"kind"`
}

func results(all []Target) []targetResult {
	out := make([]targetResult, 0, len(all))
	for _, t := range all {
		out = append(out, targetResult{
			Name:  t.Name,
			Label: t.Label,
			Size:  t.Size.Uint64(),
			UUID:  t.UUID,
			Bus:   t.Bus,
			Kind:  t.Kind,
		})
	}
	return out
}

type jsonResultsFormatter struct{}

func (*jsonResultsFormatter) Output(w io.Writer, all []Target) error {
	enc := json.NewEncoder(w)
	return enc.Encode(results(all))
}

type yamlResultsFormatter struct{}

func (*yamlResultsFormatter) Output(w io.Writer, all []Target) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(results(all)); err != nil {
		return err
	}
	return enc.Close()
}
