package sink

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/Sternrassler/cl-extractor/pkg/record"
)

// EncodeCSV renders records as CSV. The header is the key set of the first
// record in document order. Missing keys become empty cells and keys absent
// from the header are dropped.
func EncodeCSV(records []record.Record) ([]byte, error) {
	if len(records) == 0 {
		return nil, ErrNothingToWrite
	}

	header := records[0].Keys()
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	row := make([]string, len(header))
	for i, r := range records {
		for j, key := range header {
			row[j] = r.Text(key)
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
