package gmail

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Uint64String is a uint64 that the API may encode as either a JSON
// number or a quoted decimal string (historyId, internalDate).
type Uint64String uint64

// UnmarshalJSON accepts both "123" and 123.
func (u *Uint64String) UnmarshalJSON(data []byte) error {
	s := string(bytes.Trim(data, `"`))
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("parse numeric string %s: %w", data, err)
	}
	*u = Uint64String(v)
	return nil
}

// Profile is the account profile of the authenticated mailbox.
type Profile struct {
	EmailAddress  string       `json:"emailAddress"`
	MessagesTotal uint64       `json:"messagesTotal"`
	ThreadsTotal  uint64       `json:"threadsTotal"`
	HistoryID     Uint64String `json:"historyId"`
}

// Label is one mailbox label.
type Label struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Labels is a list of labels with lookup helpers.
type Labels []Label

// Names returns all label names, sorted.
func (ls Labels) Names() []string {
	names := make([]string, 0, len(ls))
	for _, l := range ls {
		names = append(names, l.Name)
	}
	sort.Strings(names)
	return names
}

// IDOf returns the id of the label with the given name.
func (ls Labels) IDOf(name string) (string, bool) {
	for _, l := range ls {
		if l.Name == name {
			return l.ID, true
		}
	}
	return "", false
}

// MessageRef is the id/thread pair returned by the message listing.
type MessageRef struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId"`
}

// MessageHeader is one RFC 2822 header of a message payload.
type MessageHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// MessagePayload is the parsed message structure of the metadata
// format.
type MessagePayload struct {
	Headers  []MessageHeader `json:"headers"`
	MimeType string          `json:"mimeType"`
}

// MessageMinimal is a message in the "minimal" format.
type MessageMinimal struct {
	ID           string       `json:"id"`
	ThreadID     string       `json:"threadId"`
	LabelIDs     []string     `json:"labelIds"`
	Snippet      string       `json:"snippet"`
	SizeEstimate uint64       `json:"sizeEstimate"`
	HistoryID    Uint64String `json:"historyId"`
	InternalDate Uint64String `json:"internalDate"`
}

// ItemID implements batch.Item.
func (m MessageMinimal) ItemID() string {
	return m.ID
}

// Date returns the message's internal date.
func (m MessageMinimal) Date() time.Time {
	return time.UnixMilli(int64(m.InternalDate))
}

// AgeDays returns the message age in fractional days.
func (m MessageMinimal) AgeDays() float64 {
	return time.Since(m.Date()).Seconds() / 86_400
}

// MessageRaw is a message in the "raw" format: the full RFC 2822 text,
// URL-safe base64 encoded.
type MessageRaw struct {
	ID           string       `json:"id"`
	ThreadID     string       `json:"threadId"`
	LabelIDs     []string     `json:"labelIds"`
	HistoryID    Uint64String `json:"historyId"`
	InternalDate Uint64String `json:"internalDate"`
	Raw          string       `json:"raw"`
}

// ItemID implements batch.Item.
func (m MessageRaw) ItemID() string {
	return m.ID
}

// Decode returns the decoded RFC 2822 message bytes. The API emits
// URL-safe base64 with or without padding depending on vintage, so the
// input is padded out before decoding.
func (m MessageRaw) Decode() ([]byte, error) {
	s := m.Raw
	if n := len(s) % 4; n != 0 {
		s += strings.Repeat("=", 4-n)
	}
	return base64.URLEncoding.DecodeString(s)
}

// Message is a message in the "metadata" format.
type Message struct {
	ID           string         `json:"id"`
	ThreadID     string         `json:"threadId"`
	HistoryID    Uint64String   `json:"historyId"`
	InternalDate Uint64String   `json:"internalDate"`
	LabelIDs     []string       `json:"labelIds"`
	Payload      MessagePayload `json:"payload"`
	SizeEstimate uint64         `json:"sizeEstimate"`
	Snippet      string         `json:"snippet"`
}

// HeaderAll returns every value of the named header, matched
// case-insensitively.
func (m *Message) HeaderAll(name string) []string {
	var out []string
	for _, h := range m.Payload.Headers {
		if strings.EqualFold(h.Name, name) {
			out = append(out, h.Value)
		}
	}
	return out
}

// HeaderOrBlank returns the first value of the named header, or "".
func (m *Message) HeaderOrBlank(name string) string {
	if hs := m.HeaderAll(name); len(hs) > 0 {
		return hs[0]
	}
	return ""
}

// Subject returns the message subject, or "".
func (m *Message) Subject() string {
	return m.HeaderOrBlank("subject")
}

// Mailer returns the X-Mailer header, or "".
func (m *Message) Mailer() string {
	return m.HeaderOrBlank("x-mailer")
}

// Date returns the message's internal date.
func (m *Message) Date() time.Time {
	return time.UnixMilli(int64(m.InternalDate))
}

// HistoryMessage is the message reference carried by history records.
type HistoryMessage struct {
	ID       string   `json:"id"`
	ThreadID string   `json:"threadId"`
	LabelIDs []string `json:"labelIds"`
}

// HistoryMessageWrap wraps a message in added/deleted history entries.
type HistoryMessageWrap struct {
	Message HistoryMessage `json:"message"`
}

// HistoryLabels records a label change for one message.
type HistoryLabels struct {
	LabelIDs []string       `json:"labelIds"`
	Message  HistoryMessage `json:"message"`
}

// HistoryRecord is one entry of the mailbox change history.
type HistoryRecord struct {
	ID              Uint64String         `json:"id"`
	Messages        []MessageRef         `json:"messages"`
	MessagesAdded   []HistoryMessageWrap `json:"messagesAdded"`
	MessagesDeleted []HistoryMessageWrap `json:"messagesDeleted"`
	LabelsAdded     []HistoryLabels      `json:"labelsAdded"`
	LabelsRemoved   []HistoryLabels      `json:"labelsRemoved"`
}

// messagesPage is the wire shape of the message listing endpoint.
type messagesPage struct {
	Messages           []MessageRef `json:"messages"`
	NextPageToken      string       `json:"nextPageToken"`
	ResultSizeEstimate uint64       `json:"resultSizeEstimate"`
}

// historyPage is the wire shape of the history listing endpoint.
type historyPage struct {
	History       []HistoryRecord `json:"history"`
	NextPageToken string          `json:"nextPageToken"`
	HistoryID     Uint64String    `json:"historyId"`
}

// labelsPage is the wire shape of the labels listing endpoint.
type labelsPage struct {
	Labels []Label `json:"labels"`
}
