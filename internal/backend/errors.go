package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Kind classifies a backend failure the way the UI reacts to it.
type Kind string

const (
	// KindTransport is a network failure; callers log and fall back.
	KindTransport Kind = "Transport"
	// KindUnauthorized is a 401; the session must be ended.
	KindUnauthorized Kind = "Unauthorized"
	// KindValidation carries a backend message meant for inline display.
	KindValidation Kind = "Validation"
	// KindServer is any other unexpected status.
	KindServer Kind = "Server"
)

// Error describes a failed call to the Knowledge Sharing backend.
type Error struct {
	Op      string
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return "backend error"
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s (status %d)", e.Op, e.Message, e.Status)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsUnauthorized reports whether err is a backend 401.
func IsUnauthorized(err error) bool {
	return KindOf(err) == KindUnauthorized
}

// KindOf returns the Kind of a backend error, or "" for other errors.
func KindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return ""
}

// KindForStatus maps an HTTP status to a Kind.
func KindForStatus(status int) Kind {
	switch status {
	case http.StatusUnauthorized:
		return KindUnauthorized
	case http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity:
		return KindValidation
	default:
		return KindServer
	}
}

// errorBody matches the backend's ErrorResponse shape plus common variants.
type errorBody struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

const maxErrorBody = 64 << 10

func statusError(op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	msg := ""
	var body errorBody
	if err := json.Unmarshal(raw, &body); err == nil {
		msg = body.Message
		if msg == "" {
			msg = body.Error
		}
	} else {
		msg = strings.TrimSpace(string(raw))
	}

	return &Error{
		Op:      op,
		Kind:    KindForStatus(resp.StatusCode),
		Status:  resp.StatusCode,
		Message: msg,
		Err:     fmt.Errorf("unexpected status %d", resp.StatusCode),
	}
}

func wrapError(op string, kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Kind: kind, Err: err}
}
