package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

var (
	ErrValidation   = errors.New("validation")   // 400
	ErrUnauthorized = errors.New("unauthorized") // 401, re-login required
	ErrForbidden    = errors.New("forbidden")    // 403
	ErrNotFound     = errors.New("not found")    // 404
	ErrRemote       = errors.New("service failure") // 5xx and transport, retryable
)

// classify maps a non-2xx response to the error taxonomy, keeping the
// service-provided detail when the body carries one.
func classify(resp *http.Response) error {
	detail := fmt.Sprintf("status %d", resp.StatusCode)
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Error != "" {
			detail = payload.Error
		} else if payload.Message != "" {
			detail = payload.Message
		}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrUnauthorized, detail)
	case resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrForbidden, detail)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, detail)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s", ErrRemote, detail)
	default:
		return fmt.Errorf("%w: %s", ErrValidation, detail)
	}
}

// Retryable reports whether the operation may be retried safely: it failed
// before any remote or local state changed.
func Retryable(err error) bool {
	return errors.Is(err, ErrRemote)
}
