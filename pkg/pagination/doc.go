// Package pagination walks a cursor-paginated endpoint one page at a time.
//
// The API links each page to the next through an absolute "next" URL, so
// pages are strictly sequential: page N+1 is only known once page N has been
// fetched. A Walker runs the following state machine per stream:
//
//	RESUME -> FETCHING -> ACCUMULATING -> CHECKPOINTING -> ADVANCE -> (FETCHING | DONE)
//
// Example usage:
//
//	acc := pagination.NewAccumulator(5, flushToSink)
//	walker := pagination.NewWalker(apiClient, store, acc, pagination.Config{
//		Stream:   "positions",
//		StartURL: apiClient.EndpointURL("positions", nil),
//		MaxPages: 20,
//	})
//	stats, err := walker.Run(ctx)
//
// The walker:
//   - Resumes from the stream's checkpoint when it carries a next link
//   - Buffers records and flushes them every FlushThreshold pages
//   - Saves the checkpoint after every page, flushed or not
//   - Stops at the last page, at MaxPages, or on context cancellation
//   - Always flushes the remaining buffer before returning
package pagination
