package postgrest

import (
	"fmt"
	"regexp"
	"strings"
)

// Selection is a parsed projection string: the plain columns of the main
// table plus one Embed per related table.
type Selection struct {
	Columns []string
	Embeds  []Embed
}

// Embed describes one relation to fetch with a follow-up query.
//
//	user:users!shifts_user_id_fkey(id, full_name)
//	^alias ^table ^hint             ^columns
type Embed struct {
	Alias string
	Table string

	// Columns is the embed's own projection joined with ", ". It is "*"
	// when the parentheses hold no plain column.
	Columns string

	// Hint names the foreign key to follow when the table alone is
	// ambiguous. Empty when not given.
	Hint string

	Nested []Embed
}

func (e Embed) columnList() []string {
	return splitColumns(e.Columns)
}

var embedRe = regexp.MustCompile(`(?s)^(?:([A-Za-z_][A-Za-z0-9_]*)\s*:\s*)?([A-Za-z_][A-Za-z0-9_]*)\s*(?:!\s*([A-Za-z_][A-Za-z0-9_]*))?\s*\((.*)\)$`)

// ParseSelect parses a PostgREST style projection.
//
//	column
//	alias:table(projection)
//	alias:table!hint(projection)
//	table(projection)
//
// Segments are separated by commas outside parentheses. An empty string
// selects "*".
func ParseSelect(s string) (Selection, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Selection{Columns: []string{"*"}}, nil
	}

	segments, err := splitTopLevel(s, ',')
	if err != nil {
		return Selection{}, err
	}

	sel := Selection{Columns: []string{}}
	for _, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}

		if m := embedRe.FindStringSubmatch(seg); m != nil {
			inner, err := ParseSelect(m[4])
			if err != nil {
				return Selection{}, fmt.Errorf("embed %s: %w", m[2], err)
			}

			alias := m[1]
			if alias == "" {
				alias = m[2]
			}

			columns := "*"
			if len(inner.Columns) > 0 {
				columns = strings.Join(inner.Columns, ", ")
			}

			sel.Embeds = append(sel.Embeds, Embed{
				Alias:   alias,
				Table:   m[2],
				Columns: columns,
				Hint:    m[3],
				Nested:  inner.Embeds,
			})
			continue
		}

		if strings.ContainsAny(seg, "()") {
			return Selection{}, fmt.Errorf("%w: malformed embed %q", ErrInvalidSelect, seg)
		}
		if seg != "*" && !identRe.MatchString(seg) {
			return Selection{}, fmt.Errorf("%w: %q", ErrInvalidIdentifier, seg)
		}
		sel.Columns = append(sel.Columns, seg)
	}

	return sel, nil
}

// splitTopLevel splits s on sep, ignoring separators nested inside
// parentheses or double quotes.
func splitTopLevel(s string, sep rune) ([]string, error) {
	var (
		parts   []string
		depth   int
		start   int
		inQuote bool
	)

	for i, r := range s {
		if r == '"' {
			inQuote = !inQuote
			continue
		}
		if inQuote {
			continue
		}
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("%w: unexpected ')' at offset %d", ErrInvalidSelect, i)
			}
		case sep:
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}

	if inQuote {
		return nil, fmt.Errorf("%w: unterminated quote in %q", ErrInvalidSelect, s)
	}
	if depth != 0 {
		return nil, fmt.Errorf("%w: unbalanced parentheses in %q", ErrInvalidSelect, s)
	}
	return append(parts, s[start:]), nil
}

func splitColumns(s string) []string {
	var cols []string
	for _, c := range strings.Split(s, ",") {
		if c = strings.TrimSpace(c); c != "" {
			cols = append(cols, c)
		}
	}
	return cols
}
