// Package scoring implements CSV parsing and accuracy scoring for
// contest submissions.
package scoring

import (
	"strings"

	"scoreboard-service/internal/domain"
)

// Parse splits CSV text into rows of string fields. Quoted fields may embed
// commas and newlines, and a doubled quote inside a quoted field decodes to
// a literal quote. A bare quote in the middle of an unquoted field is kept
// as a literal character. The trailing row is emitted even without a
// terminating newline. Empty input yields no rows. The only failure mode is
// an unterminated quoted field, reported as domain.ErrMalformedInput.
func Parse(text string) ([][]string, error) {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")
	normalized = strings.TrimSpace(normalized)
	if normalized == "" {
		return nil, nil
	}

	var (
		rows     [][]string
		current  []string
		field    strings.Builder
		inQuotes bool
	)

	for i := 0; i < len(normalized); i++ {
		ch := normalized[i]
		if inQuotes {
			if ch != '"' {
				field.WriteByte(ch)
				continue
			}
			if i+1 < len(normalized) && normalized[i+1] == '"' {
				field.WriteByte('"')
				i++
				continue
			}
			inQuotes = false
			continue
		}
		switch ch {
		case ',':
			current = append(current, field.String())
			field.Reset()
		case '\n':
			current = append(current, field.String())
			field.Reset()
			rows = append(rows, current)
			current = nil
		case '"':
			if field.Len() == 0 {
				inQuotes = true
			} else {
				// Bare quote inside an unquoted field: keep it.
				field.WriteByte(ch)
			}
		default:
			field.WriteByte(ch)
		}
	}

	if inQuotes {
		return nil, domain.ErrMalformedInput
	}
	if len(current) > 0 || field.Len() > 0 {
		current = append(current, field.String())
		rows = append(rows, current)
	}
	return rows, nil
}

// StripHeader drops row 0 when its first cell case-insensitively matches one
// of the given header tokens. Header detection is a per-schema convention,
// so callers apply it explicitly with the tokens they expect.
func StripHeader(rows [][]string, tokens ...string) [][]string {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return rows
	}
	first := strings.ToLower(strings.TrimSpace(rows[0][0]))
	for _, token := range tokens {
		if first == token {
			return rows[1:]
		}
	}
	return rows
}
