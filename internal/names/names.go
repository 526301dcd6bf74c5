// Package names implements the model and LoRA lookup tables: human
// descriptions mapped to back-end filenames, built once at startup and
// immutable afterwards.
package names

import (
	"fmt"
	"sort"
	"strings"
)

// Entry one name-map entry
type Entry struct {
	Name string // canonical human description
	File string // filename on the back-end
}

// AmbiguousError is returned when a substring query matches several entries.
type AmbiguousError struct {
	Query   string
	Matches []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("%q matches multiple entries: %s", e.Query, strings.Join(e.Matches, ", "))
}

// NotFoundError is returned when a query matches nothing.
type NotFoundError struct {
	Query string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no entry matches %q", e.Query)
}

// Map is an immutable description -> filename lookup table.
type Map struct {
	entries []Entry
}

// NewMap builds a map from configuration (description -> filename). Entries
// are sorted by description for deterministic listings.
func NewMap(cfg map[string]string) *Map {
	entries := make([]Entry, 0, len(cfg))
	for name, file := range cfg {
		entries = append(entries, Entry{Name: name, File: file})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return &Map{entries: entries}
}

// Entries returns all entries in listing order.
func (m *Map) Entries() []Entry {
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Names returns the canonical descriptions in listing order.
func (m *Map) Names() []string {
	out := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.Name)
	}
	return out
}

// Files returns the filenames in listing order.
func (m *Map) Files() []string {
	out := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.File)
	}
	return out
}

// Len is the number of entries.
func (m *Map) Len() int {
	return len(m.entries)
}

// Resolve resolves a user query to an entry. Accepted forms, in order:
// exact description, filename prefix, unambiguous case-insensitive substring
// of the description. Several substring matches are an error surfaced to the
// user with the candidate list.
func (m *Map) Resolve(query string) (Entry, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Entry{}, &NotFoundError{Query: query}
	}

	for _, e := range m.entries {
		if e.Name == query {
			return e, nil
		}
	}

	for _, e := range m.entries {
		if strings.HasPrefix(e.File, query) {
			return e, nil
		}
	}

	lower := strings.ToLower(query)
	var matches []Entry
	for _, e := range m.entries {
		if strings.Contains(strings.ToLower(e.Name), lower) {
			matches = append(matches, e)
		}
	}
	switch len(matches) {
	case 0:
		return Entry{}, &NotFoundError{Query: query}
	case 1:
		return matches[0], nil
	default:
		names := make([]string, 0, len(matches))
		for _, e := range matches {
			names = append(names, e.Name)
		}
		return Entry{}, &AmbiguousError{Query: query, Matches: names}
	}
}
