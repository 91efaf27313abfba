package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/gluk-w/ftpgate/internal/ftpproxy"
	"github.com/gluk-w/ftpgate/internal/result"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 64 << 10

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeSuccess(w http.ResponseWriter, payload interface{}) {
	writeJSON(w, http.StatusOK, result.Success(payload))
}

// writeOpError maps a manager error onto an HTTP status and an error envelope.
func writeOpError(w http.ResponseWriter, err error) {
	code := ftpproxy.ErrorCode(err)
	if code == "" {
		code = "ftp.failed_action"
	}
	var rlErr *ftpproxy.RateLimitError
	if errors.As(err, &rlErr) {
		secs := int(math.Ceil(rlErr.RetryAfter.Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
	}
	writeJSON(w, statusFor(err), result.Error(code).WithDetail(err.Error()))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ftpproxy.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, ftpproxy.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ftpproxy.ErrNoSession):
		return http.StatusNotFound
	case errors.Is(err, ftpproxy.ErrKeyInUse):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// decodeBody reads a JSON object into v. An empty body is an error.
func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
