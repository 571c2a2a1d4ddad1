package scoring

import (
	"fmt"

	"scoreboard-service/internal/domain"
)

// Answer key schemas. The three-column form is category_id,content,label;
// the legacy two-column form is id,prediction. In both, the last required
// column carries the label that submissions are compared against, and
// matching is strictly positional by row index.
var keyHeaderTokens = []string{"category_id", "id", "taskid"}

// labelColumn returns the index of the compared column for the key's schema.
func labelColumn(key [][]string) int {
	if len(key) > 0 && len(key[0]) >= 3 {
		return 2
	}
	return 1
}

// ParseKey parses a single task's answer key file. The header row is
// stripped when present. Every data row must carry at least the schema's
// required column count; anything less is domain.ErrMalformedKey.
func ParseKey(raw string) ([][]string, error) {
	rows, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	rows = StripHeader(rows, keyHeaderTokens...)
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: file is empty", domain.ErrMalformedKey)
	}
	required := labelColumn(rows) + 1
	for i, row := range rows {
		if len(row) < required {
			return nil, fmt.Errorf("%w: row %d has %d columns, expected at least %d",
				domain.ErrMalformedKey, i+1, len(row), required)
		}
	}
	return rows, nil
}

// ParseMasterKey parses a legacy master key file (taskid,id,prediction)
// covering every task at once, and splits it into per-task two-column keys.
// Rows with fewer than three columns are skipped.
func ParseMasterKey(raw string) (map[string][][]string, error) {
	rows, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	rows = StripHeader(rows, "taskid")
	keys := make(map[string][][]string)
	for _, row := range rows {
		if len(row) < 3 {
			continue
		}
		taskID := row[0]
		keys[taskID] = append(keys[taskID], []string{row[1], row[2]})
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: master key file has no usable rows", domain.ErrMalformedKey)
	}
	return keys, nil
}

// Score compares a raw submission file against a task's answer key and
// returns the accuracy in [0,100]. The submission must carry exactly as
// many data rows as the key. Comparison is positional: submission row i is
// checked against key row i on the label column. Rows too short to compare
// still count in the denominator but can never match.
func Score(raw string, key [][]string) (float64, error) {
	rows, err := Parse(raw)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, domain.ErrEmptySubmission
	}
	rows = StripHeader(rows, keyHeaderTokens...)
	if len(rows) != len(key) {
		return 0, fmt.Errorf("%w: submission has %d data rows, answer key has %d",
			domain.ErrRowCountMismatch, len(rows), len(key))
	}

	col := labelColumn(key)
	matches := 0
	for i := range key {
		if len(rows[i]) <= col || len(key[i]) <= col {
			continue
		}
		if rows[i][col] == key[i][col] {
			matches++
		}
	}
	return 100 * float64(matches) / float64(len(key)), nil
}
