// Package pagination implements a generic resumable stream over
// token-paged listing endpoints.
//
// Gmail listings hand back an opaque nextPageToken with each page; the
// stream fetches exactly one page at a time (single-flight), buffers
// its items, and exposes the token that produced the buffered items as
// a resume checkpoint.
//
// Example usage:
//
//	stream := pagination.NewStream(fetchPage, savedToken, logger)
//	for {
//		item, err := stream.Next(ctx)
//		if errors.Is(err, pagination.Done) {
//			break
//		}
//		if err != nil {
//			return err // stream position intact, Next may be retried
//		}
//		process(item)
//		persist(stream.ResumeToken())
//	}
//
// Resuming from a persisted token replays the unconsumed remainder of
// the checkpointed page: an at-least-once checkpoint, not an exact
// cursor.
package pagination
