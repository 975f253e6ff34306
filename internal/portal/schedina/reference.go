package schedina

import (
	"fmt"
	"strings"

	"alloggiati/internal/portal/portalerr"
)

// RowSeparator splits the columns of a reference-table row.
const RowSeparator = ";"

// KeyValue is one decoded reference-table row: a code, its description and any
// further columns the table carries (province, validity end date, ...).
type KeyValue struct {
	Key   string   `json:"key"`
	Value string   `json:"value"`
	Extra []string `json:"extra,omitempty"`
}

// DecodeReferenceRow parses one delimited row. It has no side effects.
func DecodeReferenceRow(line string) (KeyValue, error) {
	line = strings.TrimRight(line, "\r\n")
	cols := strings.Split(line, RowSeparator)
	if len(cols) < 2 {
		return KeyValue{}, fmt.Errorf("%w: reference row %q has %d column(s)", portalerr.ErrMalformedResponse, line, len(cols))
	}
	for i := range cols {
		cols[i] = strings.TrimSpace(cols[i])
	}
	if cols[0] == "" {
		return KeyValue{}, fmt.Errorf("%w: reference row %q has an empty key", portalerr.ErrMalformedResponse, line)
	}

	kv := KeyValue{Key: cols[0], Value: cols[1]}
	if len(cols) > 2 {
		kv.Extra = cols[2:]
	}
	return kv, nil
}
