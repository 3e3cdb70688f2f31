package pagination

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

// pagedFetch builds a FetchFunc over a fixed token-to-page map and
// counts how many fetches were issued.
func pagedFetch(pages map[string]*Page[string], calls *int) FetchFunc[string] {
	return func(ctx context.Context, pageToken string) (*Page[string], error) {
		*calls++
		page, ok := pages[pageToken]
		if !ok {
			return nil, fmt.Errorf("unknown page token %q", pageToken)
		}
		return page, nil
	}
}

func TestStreamSinglePage(t *testing.T) {
	calls := 0
	fetch := pagedFetch(map[string]*Page[string]{
		"": {Items: []string{"a", "b"}, NextToken: "", Marker: 42},
	}, &calls)

	stream := NewStream(fetch, "", zerolog.Nop())
	ctx := context.Background()

	for _, want := range []string{"a", "b"} {
		got, err := stream.Next(ctx)
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if got != want {
			t.Errorf("Next() = %q, want %q", got, want)
		}
	}

	if _, err := stream.Next(ctx); !errors.Is(err, Done) {
		t.Errorf("Next() after last item = %v, want Done", err)
	}
	// Done is terminal and idempotent.
	if _, err := stream.Next(ctx); !errors.Is(err, Done) {
		t.Errorf("second Next() after Done = %v, want Done", err)
	}

	if calls != 1 {
		t.Errorf("fetch calls = %d, want 1", calls)
	}
	if !stream.Finished() {
		t.Error("Finished() = false, want true")
	}
	if marker, ok := stream.FinalMarker(); !ok || marker != 42 {
		t.Errorf("FinalMarker() = (%d, %v), want (42, true)", marker, ok)
	}
}

func TestStreamMultiplePages(t *testing.T) {
	calls := 0
	fetch := pagedFetch(map[string]*Page[string]{
		"":   {Items: []string{"a", "b"}, NextToken: "p2"},
		"p2": {Items: []string{"c"}, NextToken: "p3"},
		"p3": {Items: []string{"d", "e"}, NextToken: ""},
	}, &calls)

	stream := NewStream(fetch, "", zerolog.Nop())
	ctx := context.Background()

	var got []string
	for {
		item, err := stream.Next(ctx)
		if errors.Is(err, Done) {
			break
		}
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		got = append(got, item)
	}

	want := []string{"a", "b", "c", "d", "e"}
	if len(got) != len(want) {
		t.Fatalf("drained %d items, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("item %d = %q, want %q", i, got[i], want[i])
		}
	}
	if calls != 3 {
		t.Errorf("fetch calls = %d, want 3", calls)
	}
}

func TestStreamSkipsEmptyPages(t *testing.T) {
	calls := 0
	fetch := pagedFetch(map[string]*Page[string]{
		"":   {Items: nil, NextToken: "p2"},
		"p2": {Items: []string{"a"}, NextToken: ""},
	}, &calls)

	stream := NewStream(fetch, "", zerolog.Nop())

	got, err := stream.Next(context.Background())
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if got != "a" {
		t.Errorf("Next() = %q, want a", got)
	}
	if calls != 2 {
		t.Errorf("fetch calls = %d, want 2", calls)
	}
}

// The resume token always names the page that produced the buffered
// items, so restarting from it replays at most one page of already-seen
// items and never skips any.
func TestStreamResumeToken(t *testing.T) {
	pages := map[string]*Page[string]{
		"":   {Items: []string{"a", "b"}, NextToken: "p2"},
		"p2": {Items: []string{"c", "d"}, NextToken: ""},
	}
	calls := 0
	stream := NewStream(pagedFetch(pages, &calls), "", zerolog.Nop())
	ctx := context.Background()

	if got := stream.ResumeToken(); got != "" {
		t.Errorf("ResumeToken() before first fetch = %q, want empty", got)
	}

	// Consume the first page plus one item of the second.
	for i := 0; i < 3; i++ {
		if _, err := stream.Next(ctx); err != nil {
			t.Fatalf("Next() error = %v", err)
		}
	}

	token := stream.ResumeToken()
	if token != "p2" {
		t.Fatalf("ResumeToken() = %q, want p2", token)
	}

	// A fresh stream resumed from the token replays the full second page.
	resumed := NewStream(pagedFetch(pages, &calls), token, zerolog.Nop())
	var got []string
	for {
		item, err := resumed.Next(ctx)
		if errors.Is(err, Done) {
			break
		}
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		got = append(got, item)
	}

	if len(got) != 2 || got[0] != "c" || got[1] != "d" {
		t.Errorf("resumed items = %v, want [c d]", got)
	}
}

func TestStreamFetchErrorKeepsPosition(t *testing.T) {
	boom := errors.New("boom")
	failNext := true
	calls := 0
	fetch := func(ctx context.Context, pageToken string) (*Page[string], error) {
		calls++
		if failNext {
			return nil, boom
		}
		if pageToken != "" {
			return nil, fmt.Errorf("unexpected token %q", pageToken)
		}
		return &Page[string]{Items: []string{"a"}, NextToken: ""}, nil
	}

	stream := NewStream[string](fetch, "", zerolog.Nop())
	ctx := context.Background()

	if _, err := stream.Next(ctx); !errors.Is(err, boom) {
		t.Fatalf("Next() error = %v, want boom", err)
	}
	if stream.Finished() {
		t.Error("Finished() = true after failed fetch")
	}

	// Retry the same Next; the stream re-requests the same page.
	failNext = false
	got, err := stream.Next(ctx)
	if err != nil {
		t.Fatalf("retried Next() error = %v", err)
	}
	if got != "a" {
		t.Errorf("retried Next() = %q, want a", got)
	}
	if calls != 2 {
		t.Errorf("fetch calls = %d, want 2", calls)
	}
}

func TestStreamFinalMarkerBeforeFinish(t *testing.T) {
	fetch := pagedFetch(map[string]*Page[string]{
		"":   {Items: []string{"a"}, NextToken: "p2", Marker: 7},
		"p2": {Items: nil, NextToken: "", Marker: 99},
	}, new(int))

	stream := NewStream(fetch, "", zerolog.Nop())
	ctx := context.Background()

	if _, ok := stream.FinalMarker(); ok {
		t.Error("FinalMarker() ok = true before any fetch")
	}

	if _, err := stream.Next(ctx); err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	// First page fetched but stream not finished; no marker yet.
	if _, ok := stream.FinalMarker(); ok {
		t.Error("FinalMarker() ok = true before final page")
	}

	if _, err := stream.Next(ctx); !errors.Is(err, Done) {
		t.Fatalf("Next() = %v, want Done", err)
	}
	if marker, ok := stream.FinalMarker(); !ok || marker != 99 {
		t.Errorf("FinalMarker() = (%d, %v), want (99, true)", marker, ok)
	}
}

func TestStreamConcurrentNext(t *testing.T) {
	const items = 100

	var mu sync.Mutex
	fetches := 0
	fetch := func(ctx context.Context, pageToken string) (*Page[string], error) {
		mu.Lock()
		fetches++
		mu.Unlock()

		// One big page; every goroutine pops from the shared buffer.
		page := &Page[string]{NextToken: ""}
		for i := 0; i < items; i++ {
			page.Items = append(page.Items, fmt.Sprintf("item-%d", i))
		}
		return page, nil
	}

	stream := NewStream[string](fetch, "", zerolog.Nop())
	ctx := context.Background()

	var wg sync.WaitGroup
	var gotMu sync.Mutex
	got := make(map[string]int)

	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				item, err := stream.Next(ctx)
				if errors.Is(err, Done) {
					return
				}
				if err != nil {
					t.Errorf("Next() error = %v", err)
					return
				}
				gotMu.Lock()
				got[item]++
				gotMu.Unlock()
			}
		}()
	}
	wg.Wait()

	if fetches != 1 {
		t.Errorf("fetch calls = %d, want 1", fetches)
	}
	if len(got) != items {
		t.Errorf("distinct items = %d, want %d", len(got), items)
	}
	for item, n := range got {
		if n != 1 {
			t.Errorf("item %q consumed %d times, want 1", item, n)
		}
	}
}
