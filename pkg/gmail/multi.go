package gmail

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/mkrein/gmail-client/pkg/batch"
	"github.com/mkrein/gmail-client/pkg/multipart"
)

// maxBatchIDs is the server-side cap on sub-requests per batch call.
const maxBatchIDs = 100

// MessagesGet fetches up to 100 messages by id in one batch request,
// in the minimal format. The result has exactly one outcome per id, in
// response order; not-found and rate-limited are values, not errors.
func (c *Client) MessagesGet(ctx context.Context, ids []string) ([]batch.Outcome[MessageMinimal], error) {
	return messagesGetBatch[MessageMinimal](ctx, c, "minimal", ids)
}

// MessagesGetRaw is MessagesGet in the raw format.
func (c *Client) MessagesGetRaw(ctx context.Context, ids []string) ([]batch.Outcome[MessageRaw], error) {
	return messagesGetBatch[MessageRaw](ctx, c, "raw", ids)
}

// messagesGetBatch encodes one multipart batch request for ids, posts
// it, and decodes the multipart response into outcomes. Any framing or
// integrity problem aborts the whole batch.
func messagesGetBatch[T batch.Item](ctx context.Context, c *Client, format string, ids []string) ([]batch.Outcome[T], error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > maxBatchIDs {
		return nil, fmt.Errorf("batch of %d ids exceeds the limit of %d", len(ids), maxBatchIDs)
	}

	boundary := uuid.NewString()

	lines := make([]string, 0, len(ids))
	for _, id := range ids {
		lines = append(lines, fmt.Sprintf("GET /gmail/v1/users/me/messages/%s?format=%s", id, format))
	}
	body := multipart.EncodeBatch(boundary, lines)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BatchURL,
		strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("create batch request: %w", err)
	}
	req.Header.Set("Content-Type", "multipart/mixed; boundary="+boundary)

	c.logger.Debug().
		Int("ids", len(ids)).
		Str("format", format).
		Str("boundary", boundary).
		Msg("Executing batch request")

	resp, err := c.do(ctx, "/batch/messages", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError("/batch/messages", resp)
	}

	respBoundary, err := responseBoundary(resp)
	if err != nil {
		return nil, err
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read batch response: %w", err)
	}

	out, err := batch.Decode[T](data, respBoundary, ids)
	if err != nil {
		return nil, err
	}

	for _, o := range out {
		gmailBatchOutcomesTotal.WithLabelValues(string(o.Kind)).Inc()
	}

	return out, nil
}

// responseBoundary extracts the server's own boundary from the
// response Content-Type. The server chooses its boundary independently
// of the request's; a response without one cannot be framed.
func responseBoundary(resp *http.Response) (string, error) {
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		return "", fmt.Errorf("content type missing from batch response")
	}

	_, params, err := mime.ParseMediaType(ct)
	if err != nil {
		return "", fmt.Errorf("batch response content type %q: %w", ct, err)
	}

	boundary, ok := params["boundary"]
	if !ok || boundary == "" {
		return "", fmt.Errorf("batch response content type missing boundary")
	}

	return boundary, nil
}
