package gmail

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/mkrein/gmail-client/internal/testutil"
	"github.com/mkrein/gmail-client/pkg/auth"
)

// testClient wires a client against the mock server, routing both the
// API and the token endpoint there.
func testClient(t *testing.T, mock *testutil.MockGmail) *Client {
	t.Helper()

	authenticator, err := auth.New(auth.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		AuthURI:      mock.URL() + "/auth",
		TokenURI:     mock.TokenURL(),
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("auth.New() error = %v", err)
	}
	authenticator.SetRefreshToken("refresh-token")

	client, err := New(Config{
		Auth:     authenticator,
		BaseURL:  mock.URL() + "/gmail/v1",
		BatchURL: mock.URL() + "/batch/gmail/v1",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return client
}

func TestNewRequiresAuth(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New() without authenticator expected error")
	}
}

func TestProfile(t *testing.T) {
	mock := testutil.NewMockGmail()
	defer mock.Close()
	mock.SetJSON("/gmail/v1/users/me/profile",
		`{"emailAddress":"user@example.com","messagesTotal":1234,"threadsTotal":567,"historyId":"987654"}`)

	client := testClient(t, mock)

	profile, err := client.Profile(context.Background())
	if err != nil {
		t.Fatalf("Profile() error = %v", err)
	}
	if profile.EmailAddress != "user@example.com" {
		t.Errorf("EmailAddress = %q", profile.EmailAddress)
	}
	if profile.MessagesTotal != 1234 {
		t.Errorf("MessagesTotal = %d", profile.MessagesTotal)
	}
	if uint64(profile.HistoryID) != 987654 {
		t.Errorf("HistoryID = %d", profile.HistoryID)
	}

	if got := mock.LastAuthHeader; got != "Bearer test-token-1" {
		t.Errorf("Authorization = %q, want Bearer test-token-1", got)
	}
}

func TestLabelsList(t *testing.T) {
	mock := testutil.NewMockGmail()
	defer mock.Close()
	mock.SetJSON("/gmail/v1/users/me/labels",
		`{"labels":[{"id":"Label_1","name":"zebra","type":"user"},{"id":"INBOX","name":"INBOX","type":"system"}]}`)

	client := testClient(t, mock)

	labels, err := client.LabelsList(context.Background())
	if err != nil {
		t.Fatalf("LabelsList() error = %v", err)
	}
	if len(labels) != 2 {
		t.Fatalf("got %d labels, want 2", len(labels))
	}

	names := labels.Names()
	if names[0] != "INBOX" || names[1] != "zebra" {
		t.Errorf("Names() = %v, want sorted [INBOX zebra]", names)
	}
	if id, ok := labels.IDOf("zebra"); !ok || id != "Label_1" {
		t.Errorf("IDOf(zebra) = (%q, %v)", id, ok)
	}
	if _, ok := labels.IDOf("nope"); ok {
		t.Error("IDOf(nope) = true, want false")
	}
}

func TestLabelsListMissingKey(t *testing.T) {
	mock := testutil.NewMockGmail()
	defer mock.Close()
	mock.SetJSON("/gmail/v1/users/me/labels", `{}`)

	client := testClient(t, mock)

	if _, err := client.LabelsList(context.Background()); err == nil {
		t.Error("LabelsList() expected error for response without labels")
	}
}

func TestMessageGet(t *testing.T) {
	mock := testutil.NewMockGmail()
	defer mock.Close()
	mock.SetHandler("/gmail/v1/users/me/messages/m1", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("format"); got != "metadata" {
			t.Errorf("format = %q, want metadata", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id":"m1","threadId":"t1","historyId":"555","internalDate":"1700000000000",
			"payload":{"mimeType":"text/plain","headers":[
				{"name":"Subject","value":"Hello"},
				{"name":"X-Mailer","value":"TestMailer 1.0"},
				{"name":"Received","value":"first"},
				{"name":"Received","value":"second"}
			]}
		}`))
	})

	client := testClient(t, mock)

	m, err := client.MessageGet(context.Background(), "m1")
	if err != nil {
		t.Fatalf("MessageGet() error = %v", err)
	}
	if m.Subject() != "Hello" {
		t.Errorf("Subject() = %q", m.Subject())
	}
	if m.Mailer() != "TestMailer 1.0" {
		t.Errorf("Mailer() = %q", m.Mailer())
	}
	if got := m.HeaderAll("received"); len(got) != 2 || got[0] != "first" {
		t.Errorf("HeaderAll(received) = %v", got)
	}
	if got := m.HeaderOrBlank("absent"); got != "" {
		t.Errorf("HeaderOrBlank(absent) = %q", got)
	}
}

func TestMessageGetRaw(t *testing.T) {
	mock := testutil.NewMockGmail()
	defer mock.Close()
	// "raw message" in unpadded URL-safe base64.
	mock.SetJSON("/gmail/v1/users/me/messages/m1",
		`{"id":"m1","threadId":"t1","raw":"cmF3IG1lc3NhZ2U"}`)

	client := testClient(t, mock)

	data, err := client.MessageGetRaw(context.Background(), "m1")
	if err != nil {
		t.Fatalf("MessageGetRaw() error = %v", err)
	}
	if string(data) != "raw message" {
		t.Errorf("decoded = %q, want raw message", data)
	}
}

func TestThreadRemoveLabel(t *testing.T) {
	mock := testutil.NewMockGmail()
	defer mock.Close()

	var gotBody string
	mock.SetHandler("/gmail/v1/users/me/threads/t1/modify", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"t1"}`))
	})

	client := testClient(t, mock)

	if err := client.ThreadRemoveLabel(context.Background(), "t1", "Label_7"); err != nil {
		t.Fatalf("ThreadRemoveLabel() error = %v", err)
	}
	if !strings.Contains(gotBody, `"removeLabelIds":["Label_7"]`) {
		t.Errorf("request body = %q", gotBody)
	}
}

func TestAPIError(t *testing.T) {
	mock := testutil.NewMockGmail()
	defer mock.Close()
	mock.SetResponse("/gmail/v1/users/me/profile", testutil.MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error":{"code":500,"message":"backend error"}}`,
	})

	client := testClient(t, mock)

	_, err := client.Profile(context.Background())
	if err == nil {
		t.Fatal("Profile() expected error, got nil")
	}

	var ae *APIError
	if !errors.As(err, &ae) {
		t.Fatalf("error type = %T, want *APIError", err)
	}
	if ae.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d, want 500", ae.StatusCode)
	}
	if ae.Endpoint != "/users/me/profile" {
		t.Errorf("Endpoint = %q", ae.Endpoint)
	}
	if !strings.Contains(ae.Error(), "backend error") {
		t.Errorf("Error() = %q, want body excerpt", ae.Error())
	}
}
