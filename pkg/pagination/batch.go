package pagination

import (
	"context"

	"github.com/Sternrassler/cl-extractor/pkg/record"
)

// Batch is a run of buffered records and the page range they came from.
type Batch struct {
	Records   []record.Record
	FirstPage int
	LastPage  int
}

// Empty returns true when the batch holds no records.
func (b Batch) Empty() bool {
	return len(b.Records) == 0
}

// FlushFunc persists a batch. A nil error means the batch was accepted.
type FlushFunc func(ctx context.Context, batch Batch) error

// Accumulator buffers records between flushes.
//
// A failed flush keeps the buffer, so the next flush covers the wider page
// range. The accumulator is not safe for concurrent use; it belongs to a
// single walker.
type Accumulator struct {
	threshold int
	flush     FlushFunc
	buf       Batch
}

// NewAccumulator creates an accumulator that is due every threshold pages.
// A threshold of 0 disables page-based flushing; only Flush at the end of a
// run writes the buffer.
func NewAccumulator(threshold int, flush FlushFunc) *Accumulator {
	if threshold < 0 {
		threshold = 0
	}
	return &Accumulator{
		threshold: threshold,
		flush:     flush,
	}
}

// Add appends the records of page to the buffer.
func (a *Accumulator) Add(page int, records []record.Record) {
	if a.buf.FirstPage == 0 {
		a.buf.FirstPage = page
	}
	a.buf.LastPage = page
	a.buf.Records = append(a.buf.Records, records...)
}

// Due reports whether page completes a flush interval.
func (a *Accumulator) Due(page int) bool {
	return a.threshold > 0 && page%a.threshold == 0
}

// Len returns the number of buffered records.
func (a *Accumulator) Len() int {
	return len(a.buf.Records)
}

// Pending returns the buffered batch without flushing it.
func (a *Accumulator) Pending() Batch {
	return a.buf
}

// Flush hands the buffer to the flush target. An empty buffer is not flushed
// and reports flushed == false.
func (a *Accumulator) Flush(ctx context.Context) (flushed bool, err error) {
	if a.buf.Empty() {
		a.buf = Batch{}
		return false, nil
	}
	if err := a.flush(ctx, a.buf); err != nil {
		return false, err
	}
	a.buf = Batch{}
	return true, nil
}
