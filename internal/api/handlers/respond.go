// Package handlers exposes the lifecycle boundary operations over HTTP.
// Each entity is serialized in exactly one place: the domain model's own
// JSON shape, written by these handlers.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/oakwellcare/clinic-engagement/internal/faults"
	"github.com/oakwellcare/clinic-engagement/pkg/logging"
)

// errorBody is the stable machine-readable failure shape.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

// writeFault maps the error taxonomy to stable HTTP statuses. The message
// always names the violated invariant; callers branch on the code, never
// the text.
func writeFault(w http.ResponseWriter, logger *logging.Logger, err error) {
	code := faults.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case faults.CodeValidation:
		status = http.StatusBadRequest
	case faults.CodeAuthorization:
		status = http.StatusForbidden
	case faults.CodeNotFound:
		status = http.StatusNotFound
	case faults.CodeConflict:
		status = http.StatusConflict
	case faults.CodeDependency:
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "error", err, "code", string(code))
	}
	writeJSON(w, status, errorBody{Code: string(code), Message: faultMessage(err)})
}

// faultMessage strips wrapping noise when the underlying fault carries the
// caller-facing message.
func faultMessage(err error) string {
	var f *faults.Fault
	if errors.As(err, &f) {
		return f.Message
	}
	return err.Error()
}

// decodeStrict parses a request body, rejecting unknown fields so schema
// drift surfaces at the boundary instead of deep in domain logic.
func decodeStrict(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return faults.Validation("request body is required")
		}
		return faults.Validation("invalid request body: %v", err)
	}
	return nil
}

func parseID(raw, field string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, faults.Validation("%s must be a valid uuid", field)
	}
	return id, nil
}
