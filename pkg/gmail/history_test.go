package gmail

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/mkrein/gmail-client/internal/testutil"
	"github.com/mkrein/gmail-client/pkg/pagination"
)

func TestHistoryStream(t *testing.T) {
	mock := testutil.NewMockGmail()
	defer mock.Close()
	mock.SetPages("/gmail/v1/users/me/history", map[string]string{
		"": `{
			"history":[
				{"id":"101","messagesAdded":[{"message":{"id":"m1","threadId":"t1","labelIds":["INBOX"]}}]},
				{"id":"102","labelsRemoved":[{"labelIds":["UNREAD"],"message":{"id":"m1","threadId":"t1"}}]}
			],
			"nextPageToken":"p2","historyId":"150"
		}`,
		"p2": `{
			"history":[{"id":"103","messagesDeleted":[{"message":{"id":"m0","threadId":"t0"}}]}],
			"historyId":"150"
		}`,
	})

	client := testClient(t, mock)
	stream := client.History(100).Start()
	ctx := context.Background()

	var records []HistoryRecord
	for {
		rec, err := stream.Next(ctx)
		if errors.Is(err, pagination.Done) {
			break
		}
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		records = append(records, rec)
	}

	if len(records) != 3 {
		t.Fatalf("drained %d records, want 3", len(records))
	}
	if uint64(records[0].ID) != 101 {
		t.Errorf("record 0 id = %d, want 101", records[0].ID)
	}
	if got := records[0].MessagesAdded; len(got) != 1 || got[0].Message.ID != "m1" {
		t.Errorf("record 0 messagesAdded = %+v", got)
	}
	if got := records[1].LabelsRemoved; len(got) != 1 || got[0].LabelIDs[0] != "UNREAD" {
		t.Errorf("record 1 labelsRemoved = %+v", got)
	}

	// The final page's historyId is the stream's terminal marker,
	// usable as the next listing's start point.
	marker, ok := stream.FinalMarker()
	if !ok || marker != 150 {
		t.Errorf("FinalMarker() = (%d, %v), want (150, true)", marker, ok)
	}
}

func TestHistoryCallQueryParams(t *testing.T) {
	mock := testutil.NewMockGmail()
	defer mock.Close()

	mock.SetHandler("/gmail/v1/users/me/history", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if got := q.Get("startHistoryId"); got != "42" {
			t.Errorf("startHistoryId = %q", got)
		}
		if got := q.Get("labelId"); got != "INBOX" {
			t.Errorf("labelId = %q", got)
		}
		if got := q["historyTypes"]; len(got) != 2 || got[0] != "messageAdded" || got[1] != "messageDeleted" {
			t.Errorf("historyTypes = %v", got)
		}
		if got := q.Get("maxResults"); got != "25" {
			t.Errorf("maxResults = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"history":[],"historyId":"42"}`))
	})

	client := testClient(t, mock)
	stream := client.History(42).
		LabelID("INBOX").
		TypeAdd("messageAdded").
		TypeAdd("messageDeleted").
		TypeAdd("messageAdded"). // duplicate, ignored
		PageSize(25).
		Start()

	if _, err := stream.Next(context.Background()); !errors.Is(err, pagination.Done) {
		t.Errorf("Next() = %v, want Done for empty history", err)
	}
}

func TestHistoryStreamExpiredStartID(t *testing.T) {
	mock := testutil.NewMockGmail()
	defer mock.Close()
	// Gmail answers 404 when startHistoryId is too old.
	mock.SetResponse("/gmail/v1/users/me/history", testutil.MockResponse{
		StatusCode: http.StatusNotFound,
		Body:       `{"error":{"code":404,"message":"Requested entity was not found."}}`,
	})

	client := testClient(t, mock)
	stream := client.History(1).Start()

	_, err := stream.Next(context.Background())
	var ae *APIError
	if !errors.As(err, &ae) || ae.StatusCode != http.StatusNotFound {
		t.Errorf("Next() error = %v, want 404 APIError", err)
	}
}
