package gmail

import (
	"context"
	"net/url"
	"strconv"

	"github.com/mkrein/gmail-client/pkg/pagination"
)

// HistoryCall configures a mailbox history listing. The stream's final
// marker is the history id of the last page, usable as the next
// listing's start point.
type HistoryCall struct {
	c            *Client
	startAt      uint64
	labelID      string
	historyTypes []string
	pageSize     int
}

// History begins building a history listing starting after the given
// history id.
func (c *Client) History(startAt uint64) *HistoryCall {
	return &HistoryCall{c: c, startAt: startAt}
}

// LabelID restricts the listing to changes affecting the label.
func (hc *HistoryCall) LabelID(labelID string) *HistoryCall {
	hc.labelID = labelID
	return hc
}

// TypeAdd restricts the listing to the given history type
// (messageAdded, messageDeleted, labelAdded, labelRemoved).
func (hc *HistoryCall) TypeAdd(historyType string) *HistoryCall {
	for _, t := range hc.historyTypes {
		if t == historyType {
			return hc
		}
	}
	hc.historyTypes = append(hc.historyTypes, historyType)
	return hc
}

// TypesClear drops all history type restrictions.
func (hc *HistoryCall) TypesClear() *HistoryCall {
	hc.historyTypes = nil
	return hc
}

// PageSize hints how many records the server should return per page.
func (hc *HistoryCall) PageSize(n int) *HistoryCall {
	hc.pageSize = n
	return hc
}

// Start returns the stream. Once it finishes, FinalMarker carries the
// mailbox's high-water history id.
func (hc *HistoryCall) Start() *pagination.Stream[HistoryRecord] {
	return pagination.NewStream(hc.fetchPage, "",
		hc.c.logger.With().Str("stream", "history").Logger())
}

// fetchPage fetches one page of the history listing.
func (hc *HistoryCall) fetchPage(ctx context.Context, pageToken string) (*pagination.Page[HistoryRecord], error) {
	q := url.Values{}
	q.Set("startHistoryId", strconv.FormatUint(hc.startAt, 10))
	if hc.labelID != "" {
		q.Set("labelId", hc.labelID)
	}
	for _, t := range hc.historyTypes {
		q.Add("historyTypes", t)
	}
	if pageToken != "" {
		q.Set("pageToken", pageToken)
	}
	if hc.pageSize > 0 {
		q.Set("maxResults", strconv.Itoa(hc.pageSize))
	}

	var page historyPage
	if err := hc.c.getJSON(ctx, "/users/me/history", q, &page); err != nil {
		return nil, err
	}
	gmailPageFetchesTotal.WithLabelValues("/users/me/history").Inc()

	hc.c.logger.Debug().
		Int("records", len(page.History)).
		Uint64("history_id", uint64(page.HistoryID)).
		Msg("history page fetched")

	return &pagination.Page[HistoryRecord]{
		Items:     page.History,
		NextToken: page.NextPageToken,
		Marker:    uint64(page.HistoryID),
	}, nil
}
