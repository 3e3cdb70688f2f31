// Package batch decodes Gmail batch (multipart/mixed) responses into
// per-sub-request outcomes: the embedded HTTP response parser, the
// status classifier, and the Content-ID correlator live here.
package batch

import (
	"encoding/json"
	"fmt"
	"mime"
)

// Kind classifies the outcome of one sub-request within a batch.
type Kind string

const (
	// KindPresent means the sub-request succeeded and carries a payload.
	KindPresent Kind = "present"

	// KindMissing means the server reported the item does not exist.
	KindMissing Kind = "missing"

	// KindRateLimited means the server refused the sub-request due to
	// rate limiting. The caller decides whether and how to retry.
	KindRateLimited Kind = "rate_limited"
)

// Item is a batch payload that can name its own identifier, used to
// verify response coverage against the requested id set.
type Item interface {
	ItemID() string
}

// Outcome is the classified result of one sub-request: a payload, a
// not-found marker, or a rate-limit marker. ID is always the requested
// id the outcome was correlated to.
type Outcome[T Item] struct {
	Kind Kind
	ID   string

	// Item is valid only when Kind is KindPresent.
	Item T
}

// googleError is the structured error body Google APIs attach to
// non-200 statuses.
type googleError struct {
	Error struct {
		Errors []struct {
			Domain  string `json:"domain"`
			Reason  string `json:"reason"`
			Message string `json:"message"`
		} `json:"errors"`
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// classify maps one embedded response to an outcome for id.
//
// 403 gets special handling: a quota error (domain usageLimits, reason
// userRateLimitExceeded or rateLimitExceeded) is an ordinary
// rate-limited outcome, anything else is fatal for the whole batch.
func classify[T Item](er *EmbeddedResponse, id string) (Outcome[T], error) {
	var zero Outcome[T]

	switch er.Status {
	case 200:
		ct, _, err := mime.ParseMediaType(er.Header("Content-Type"))
		if err != nil {
			return zero, fmt.Errorf("embedded response content type for %s: %w", id, err)
		}
		if ct != "application/json" {
			return zero, fmt.Errorf("embedded response for %s had wrong type: %q", id, ct)
		}

		var item T
		if err := json.Unmarshal(er.Body, &item); err != nil {
			return zero, fmt.Errorf("decode embedded payload for %s: %w", id, err)
		}
		return Outcome[T]{Kind: KindPresent, ID: id, Item: item}, nil

	case 404:
		return Outcome[T]{Kind: KindMissing, ID: id}, nil

	case 429:
		return Outcome[T]{Kind: KindRateLimited, ID: id}, nil

	case 403:
		var ge googleError
		if err := json.Unmarshal(er.Body, &ge); err != nil {
			return zero, fmt.Errorf("could not parse 403 for %s: %w", id, err)
		}
		for _, e := range ge.Error.Errors {
			if e.Domain == "usageLimits" &&
				(e.Reason == "userRateLimitExceeded" || e.Reason == "rateLimitExceeded") {
				return Outcome[T]{Kind: KindRateLimited, ID: id}, nil
			}
		}
		return zero, fmt.Errorf("403 error for %s: %s", id, ge.Error.Message)

	default:
		return zero, fmt.Errorf("embedded response had wrong status: %d for %s", er.Status, id)
	}
}
