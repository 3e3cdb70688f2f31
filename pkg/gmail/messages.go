package gmail

import (
	"context"
	"net/url"
	"strconv"

	"github.com/mkrein/gmail-client/pkg/pagination"
)

// MessagesCall configures a message listing before the stream starts.
// Filter parameters are immutable once Start is called.
type MessagesCall struct {
	c           *Client
	query       string
	labelIDs    []string
	spamTrash   bool
	pageSize    int
	resumeToken string
}

// Messages begins building a message listing.
func (c *Client) Messages() *MessagesCall {
	return &MessagesCall{c: c}
}

// Query restricts the listing with a Gmail search query.
func (mc *MessagesCall) Query(q string) *MessagesCall {
	mc.query = q
	return mc
}

// LabelAdd restricts the listing to messages carrying the label.
func (mc *MessagesCall) LabelAdd(labelID string) *MessagesCall {
	for _, l := range mc.labelIDs {
		if l == labelID {
			return mc
		}
	}
	mc.labelIDs = append(mc.labelIDs, labelID)
	return mc
}

// LabelsClear drops all label restrictions.
func (mc *MessagesCall) LabelsClear() *MessagesCall {
	mc.labelIDs = nil
	return mc
}

// IncludeSpamTrash includes SPAM and TRASH in the listing.
func (mc *MessagesCall) IncludeSpamTrash(include bool) *MessagesCall {
	mc.spamTrash = include
	return mc
}

// PageSize hints how many items the server should return per page.
func (mc *MessagesCall) PageSize(n int) *MessagesCall {
	mc.pageSize = n
	return mc
}

// ResumeFrom starts the stream at a previously persisted resume token
// instead of the beginning.
func (mc *MessagesCall) ResumeFrom(token string) *MessagesCall {
	mc.resumeToken = token
	return mc
}

// Start returns the stream. Items arrive in server order, one page
// fetch at a time.
func (mc *MessagesCall) Start() *pagination.Stream[MessageRef] {
	return pagination.NewStream(mc.fetchPage, mc.resumeToken,
		mc.c.logger.With().Str("stream", "messages").Logger())
}

// fetchPage fetches one page of the listing.
func (mc *MessagesCall) fetchPage(ctx context.Context, pageToken string) (*pagination.Page[MessageRef], error) {
	q := url.Values{}
	if mc.query != "" {
		q.Set("q", mc.query)
	}
	if mc.spamTrash {
		q.Set("includeSpamTrash", "true")
	}
	for _, l := range mc.labelIDs {
		q.Add("labelIds", l)
	}
	if pageToken != "" {
		q.Set("pageToken", pageToken)
	}
	if mc.pageSize > 0 {
		q.Set("maxResults", strconv.Itoa(mc.pageSize))
	}

	var page messagesPage
	if err := mc.c.getJSON(ctx, "/users/me/messages", q, &page); err != nil {
		return nil, err
	}
	gmailPageFetchesTotal.WithLabelValues("/users/me/messages").Inc()

	mc.c.logger.Debug().
		Int("messages", len(page.Messages)).
		Uint64("result_size_estimate", page.ResultSizeEstimate).
		Msg("message page fetched")

	return &pagination.Page[MessageRef]{
		Items:     page.Messages,
		NextToken: page.NextPageToken,
	}, nil
}
