package pagination

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// Done signals normal end of a stream. Once returned, every further
// Next call returns it again without issuing more fetches.
var Done = errors.New("pagination: no more items in stream")

// Page is one fetched page of a listing: its items in server order, the
// continuation token for the next page (empty when this was the last
// page), and an optional server marker (e.g. a high-water history id)
// that becomes the stream's terminal marker on the final page.
type Page[T any] struct {
	Items     []T
	NextToken string
	Marker    uint64
}

// FetchFunc fetches one page of a listing. pageToken is empty for the
// first page of a fresh stream.
type FetchFunc[T any] func(ctx context.Context, pageToken string) (*Page[T], error)

// Stream is a resumable, single-flight, forward-only sequence of items
// over a paged listing endpoint. At most one page fetch is outstanding
// per stream; a Next call arriving while a fetch is in flight waits for
// that fetch instead of issuing a second one.
//
// A stream may be driven from one goroutine at a time per call site;
// concurrent Next calls are serialized internally. Abandoning a stream
// before Done is always safe: there is no server-side state to unwind.
type Stream[T any] struct {
	mu sync.Mutex

	fetch FetchFunc[T]
	log   zerolog.Logger

	buf      []T
	current  string
	previous string
	finished bool
	marker   uint64
}

// NewStream creates a stream over fetch. resumeToken is a token
// previously obtained from ResumeToken; empty means start from the
// beginning. Resuming replays the unconsumed remainder of the
// checkpointed page (at-least-once, not an exact cursor).
func NewStream[T any](fetch FetchFunc[T], resumeToken string, log zerolog.Logger) *Stream[T] {
	return &Stream[T]{
		fetch:   fetch,
		log:     log,
		current: resumeToken,
	}
}

// Next returns the next item in server order. It returns Done once the
// last page has been consumed; Done is terminal and idempotent. A fetch
// failure is returned as-is without disturbing the stream position, so
// the same Next can simply be retried.
func (s *Stream[T]) Next(ctx context.Context) (T, error) {
	var zero T

	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if len(s.buf) > 0 {
			item := s.buf[0]
			s.buf = s.buf[1:]
			return item, nil
		}

		if s.finished {
			s.log.Debug().Msg("stream finished completely")
			return zero, Done
		}

		s.log.Debug().Str("page_token", s.current).Msg("requesting next page")

		page, err := s.fetch(ctx, s.current)
		if err != nil {
			// Position untouched; the fetch may be retried.
			return zero, err
		}

		s.previous = s.current
		s.current = page.NextToken
		if s.current == "" {
			s.finished = true
			s.marker = page.Marker
		}

		s.log.Debug().
			Int("items", len(page.Items)).
			Str("next_page_token", page.NextToken).
			Bool("finished", s.finished).
			Msg("page fetched")

		s.buf = append(s.buf, page.Items...)
	}
}

// ResumeToken returns the token that produced the currently buffered
// items: persist it to resume the stream later at the page boundary
// immediately preceding the next unread item.
func (s *Stream[T]) ResumeToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.previous
}

// Finished reports whether the last page has been fetched.
func (s *Stream[T]) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// FinalMarker returns the server marker captured from the final page.
// The second return is false until the stream has finished.
func (s *Stream[T]) FinalMarker() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.finished {
		return 0, false
	}
	return s.marker, true
}
