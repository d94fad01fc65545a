// Package checkpoint persists the pagination progress of extraction streams.
//
// A checkpoint stores only the latest state of a stream, never history: the URL
// last requested, the URL to request on resume and the last page that was
// processed. It is overwritten after every page and never deleted automatically.
//
// # Backends
//
//   - FileStore keeps one human-readable text file per stream and replaces it
//     atomically (temp file + rename).
//   - RedisStore keeps one hash per stream, written with a single HSET.
//
// # Text Format
//
//	Current URL: https://www.courtlistener.com/api/rest/v4/positions/?cursor=abc
//	Next URL: https://www.courtlistener.com/api/rest/v4/positions/?cursor=def
//	Last successfully fetched page: 7
//
// An exhausted stream stores the literal "None" as its next URL.
//
// # Basic Usage
//
//	store := checkpoint.NewFileStore("checkpoints", logger)
//	stream := checkpoint.StreamID("positions", "")
//
//	cp := store.Load(ctx, stream) // never fails
//	if cp.HasNext() {
//		// resume from cp.NextURL at page cp.LastPage+1
//	}
//
//	err := store.Save(ctx, stream, checkpoint.Checkpoint{
//		CurrentURL: url,
//		NextURL:    next,
//		LastPage:   page,
//	})
package checkpoint
