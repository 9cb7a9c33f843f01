package partfilter

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gobwas/glob"
)

func splitPrefixSearchTerm(s string) (string, string) {
	l := strings.SplitN(s, ":", 2)
	if len(l) == 1 {
		return "", l[0]
	}
	return l[0], l[1]
}

// New creates a filter from the given terms. Glob like patterns (?, *, [])
// are supported, see fnmatch(3).
//
// Without a prefix the term is matched against the device name and label.
// With a prefix only that property is matched, e.g. "label:boot*". Terms are
// combined via AND.
//
// The following prefixes are supported:
// "name:" - the candidate name, e.g. hd2p0 or hd1p*
// "label:" - the partition label
// "bus:" - the bus name, e.g. sdcard
// "kind:" - one of "disk", "partition" or "nested"
// "uuid:" - the partition UUID
func New(sl ...string) (*Filter, error) {
	filter := &Filter{
		terms: make([]term, len(sl)),
	}
	for i, s := range sl {
		prefix, searchTerm := splitPrefixSearchTerm(s)
		if !slices.Contains(supportedFilters, prefix) {
			return nil, fmt.Errorf("unsupported filter prefix: %q", prefix)
		}
		gl, err := glob.Compile(searchTerm)
		if err != nil {
			return nil, fmt.Errorf("invalid filter %q: %w", s, err)
		}
		filter.terms[i].prefix = prefix
		filter.terms[i].pattern = gl
	}
	return filter, nil
}

var supportedFilters = []string{
	"", "name", "label", "bus", "kind", "uuid",
}

type term struct {
	prefix  string
	pattern glob.Glob
}

// Filter matches targets against a list of terms. A filter without terms
// matches everything.
type Filter struct {
	terms []term
}

func (fl *Filter) Matches(t Target) bool {
	m := true
	for _, term := range fl.terms {
		switch term.prefix {
		case "":
			m = m && (term.pattern.Match(t.Name) || term.pattern.Match(t.Label))
		case "name":
			m = m && term.pattern.Match(t.Name)
		case "label":
			m = m && term.pattern.Match(t.Label)
		case "bus":
			m = m && term.pattern.Match(t.Bus)
		case "kind":
			m = m && term.pattern.Match(string(t.Kind))
		case "uuid":
			m = m && term.pattern.Match(t.UUID)
		}
	}
	return m
}
