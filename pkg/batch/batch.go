package batch

import (
	"fmt"
	"mime"
	"strconv"
	"strings"

	"github.com/mkrein/gmail-client/pkg/multipart"
)

// previewLimit bounds how many raw bytes an error message may quote.
const previewLimit = 200

// Preview returns a printable, bounded excerpt of raw bytes for
// diagnostics.
func Preview(b []byte) string {
	if len(b) > previewLimit {
		b = b[:previewLimit]
	}
	return string(b)
}

// Decode parses a batch response body into one outcome per requested
// id. boundary is the server's own boundary, taken from the response
// Content-Type. ids is the ordered id list the batch request was built
// from; response parts are correlated back to it via their
// "response-req-{n}" Content-ID.
//
// Framing errors, malformed or out-of-range Content-IDs, declared-
// length mismatches, unexpected statuses, and incomplete coverage of
// the id set are all fatal: the caller never sees a partial result.
func Decode[T Item](body []byte, boundary string, ids []string) ([]Outcome[T], error) {
	parts, err := multipart.Parse(body, boundary)
	if err != nil {
		return nil, fmt.Errorf("response multipart error (boundary %q, body %q): %w",
			boundary, Preview(body), err)
	}

	out := make([]Outcome[T], 0, len(parts))

	for i, p := range parts {
		o, err := decodePart[T](p, ids)
		if err != nil {
			return nil, fmt.Errorf("part %d: %w", i, err)
		}
		out = append(out, o)
	}

	if err := verifyCoverage(out, ids); err != nil {
		return nil, err
	}

	return out, nil
}

// decodePart correlates one part to its requested id and classifies the
// embedded response.
func decodePart[T Item](p multipart.Part, ids []string) (Outcome[T], error) {
	var zero Outcome[T]

	ctRaw, ok := p.Headers["content-type"]
	if !ok {
		return zero, fmt.Errorf("content type missing from response part")
	}
	ct, _, err := mime.ParseMediaType(ctRaw)
	if err != nil {
		return zero, fmt.Errorf("response part content type: %w", err)
	}
	if ct != "application/http" {
		return zero, fmt.Errorf("response part had wrong type: %q", ct)
	}

	cid, ok := p.Headers["content-id"]
	if !ok {
		return zero, fmt.Errorf("content id missing from response part")
	}
	idx, ok := strings.CutPrefix(cid, "response-req-")
	if !ok {
		return zero, fmt.Errorf("content id invalid in response part: %q", cid)
	}
	n, err := strconv.Atoi(idx)
	if err != nil || n < 0 || n >= len(ids) {
		return zero, fmt.Errorf("content id invalid in response part: %q", cid)
	}
	id := ids[n]

	er, err := ParseEmbedded(p.Body)
	if err != nil {
		return zero, fmt.Errorf("for %s (body %q): %w", id, Preview(p.Body), err)
	}

	return classify[T](er, id)
}

// verifyCoverage checks that the outcome set covers the requested id
// set exactly: same count, every id present exactly once. A Present
// outcome is counted under its payload's own id, so a server payload
// that answers for the wrong id is caught here too.
func verifyCoverage[T Item](out []Outcome[T], ids []string) error {
	if len(out) != len(ids) {
		return fmt.Errorf("got %d outcomes for %d requested ids", len(out), len(ids))
	}

	want := make(map[string]int, len(ids))
	for _, id := range ids {
		want[id]++
	}

	for _, o := range out {
		id := o.ID
		if o.Kind == KindPresent {
			id = o.Item.ItemID()
		}

		n, ok := want[id]
		if !ok || n == 0 {
			return fmt.Errorf("outcome for unexpected or duplicated id %q", id)
		}
		want[id] = n - 1
	}

	for id, n := range want {
		if n != 0 {
			return fmt.Errorf("no outcome for requested id %q", id)
		}
	}

	return nil
}
