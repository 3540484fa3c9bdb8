// Package aliases rewrites colloquial item names in lookup queries to the
// names the model answers best for.
package aliases

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
)

const separator = "=>"

type alias struct {
	from  string
	to    string
	words int
}

// Table replaces whole-word aliases with canonical item names. Each query is
// rewritten in a single pass; replacements are never re-matched.
type Table struct {
	entries []alias
}

// Load reads an alias file. A blank path or a missing file yields an empty table.
//
// Each non-comment line has the form
//
//	alias[, alias...] => item
func Load(path string) (*Table, error) {
	if strings.TrimSpace(path) == "" {
		return &Table{}, nil
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Table{}, nil
		}
		return nil, fmt.Errorf("failed to read aliases file %q: %w", path, err)
	}

	table, err := Parse(string(contents))
	if err != nil {
		return nil, fmt.Errorf("failed to parse aliases file %q: %w", path, err)
	}
	return table, nil
}

// Parse builds a table from alias file contents.
func Parse(contents string) (*Table, error) {
	lines := strings.Split(contents, "\n")
	seen := make(map[string]int)
	table := &Table{}

	for index, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		left, right, ok := strings.Cut(line, separator)
		if !ok {
			return nil, fmt.Errorf("line %d: expected \"alias => item\"", index+1)
		}
		target := normalizeSpace(right)
		if target == "" {
			return nil, fmt.Errorf("line %d: empty item name", index+1)
		}

		for _, name := range strings.Split(left, ",") {
			from := fold(name)
			if from == "" {
				return nil, fmt.Errorf("line %d: empty alias", index+1)
			}
			if first, dup := seen[from]; dup {
				return nil, fmt.Errorf("line %d: alias %q already defined on line %d", index+1, from, first)
			}
			seen[from] = index + 1
			table.entries = append(table.entries, alias{from: from, to: target, words: len(strings.Fields(from))})
		}
	}

	sort.SliceStable(table.entries, func(i, j int) bool {
		return table.entries[i].words > table.entries[j].words
	})
	return table, nil
}

// Len reports how many aliases are loaded.
func (t *Table) Len() int {
	return len(t.entries)
}

// Normalize rewrites every aliased word sequence in query. Matching ignores
// case and repeated whitespace; unmatched words keep their original spelling.
func (t *Table) Normalize(query string) string {
	words := strings.Fields(query)
	if len(t.entries) == 0 || len(words) == 0 {
		return strings.Join(words, " ")
	}

	folded := make([]string, len(words))
	for i, word := range words {
		folded[i] = strings.ToLower(word)
	}

	out := make([]string, 0, len(words))
	for i := 0; i < len(words); {
		matched := false
		for _, entry := range t.entries {
			if i+entry.words > len(words) {
				continue
			}
			if strings.Join(folded[i:i+entry.words], " ") != entry.from {
				continue
			}
			out = append(out, entry.to)
			i += entry.words
			matched = true
			break
		}
		if !matched {
			out = append(out, words[i])
			i++
		}
	}
	return strings.Join(out, " ")
}

func fold(value string) string {
	return strings.ToLower(normalizeSpace(value))
}

func normalizeSpace(value string) string {
	return strings.Join(strings.Fields(value), " ")
}
