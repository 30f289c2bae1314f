// Package apierr renders RFC 7807 Problem Detail responses for
// tecp-ledgerd, adapted from core/pkg/api/apierror.go: the same
// ProblemDetail shape and Write*-per-status helpers, extended with a
// mapping from the errcodes.Code taxonomy to HTTP status so handlers
// can pass a single errcodes.Error straight through.
package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/tecp-protocol/tecp/pkg/errcodes"
)

// ProblemDetail implements RFC 7807 (Problem Details for HTTP APIs).
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	Code     string `json:"code,omitempty"`
	TraceID  string `json:"trace_id,omitempty"`
}

func (p *ProblemDetail) Error() string {
	return fmt.Sprintf("%s: %s", p.Title, p.Detail)
}

// statusForCode maps the stable error taxonomy (spec §7) to an HTTP
// status. Codes not listed here fall back to 400.
var statusForCode = map[errcodes.Code]int{
	errcodes.ECanonFloat:     http.StatusBadRequest,
	errcodes.ECanonDuplicate: http.StatusBadRequest,
	errcodes.ECanonType:      http.StatusBadRequest,
	errcodes.EStructMissing:  http.StatusBadRequest,
	errcodes.EStructType:     http.StatusBadRequest,
	errcodes.EStructLen:      http.StatusBadRequest,
	errcodes.ETSFuture:       http.StatusBadRequest,
	errcodes.ETSExpired:      http.StatusUnprocessableEntity,
	errcodes.ESigInvalid:     http.StatusUnprocessableEntity,
	errcodes.EKeyUnknown:     http.StatusUnprocessableEntity,
	errcodes.EKeyExpired:     http.StatusUnprocessableEntity,
	errcodes.EProofMalformed: http.StatusBadRequest,
	errcodes.EProofMismatch:  http.StatusUnprocessableEntity,
	errcodes.ESTHUnsigned:    http.StatusUnprocessableEntity,
	errcodes.ESTHExpired:     http.StatusUnprocessableEntity,
	errcodes.EPolicyUnknown:  http.StatusUnprocessableEntity,
	errcodes.EPolicyDenied:   http.StatusForbidden,
	errcodes.EStoreIO:        http.StatusInternalServerError,
	errcodes.EStoreCorrupt:   http.StatusInternalServerError,
	errcodes.EDuplicate:      http.StatusConflict,
	errcodes.ENotFound:       http.StatusNotFound,
}

// WriteTECPError writes a Problem Detail response for err, unwrapping an
// *errcodes.Error to pick both the HTTP status and the machine-readable
// code. Any other error is treated as an opaque internal failure: logged
// server-side, never echoed to the client.
func WriteTECPError(w http.ResponseWriter, r *http.Request, err error) {
	var ce *errcodes.Error
	if errors.As(err, &ce) {
		status, ok := statusForCode[ce.Code]
		if !ok {
			status = http.StatusBadRequest
		}
		writeProblem(w, r, status, string(ce.Code), ce.Detail)
		return
	}
	WriteInternal(w, err)
}

func writeProblem(w http.ResponseWriter, r *http.Request, status int, code, detail string) {
	problem := &ProblemDetail{
		Type:   fmt.Sprintf("https://tecp.dev/errors/%d", status),
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
		Code:   code,
	}
	if r != nil {
		problem.Instance = r.URL.Path
		problem.TraceID = w.Header().Get("X-Request-ID")
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problem)
}

// WriteBadRequest writes a 400 error response.
func WriteBadRequest(w http.ResponseWriter, detail string) {
	writeProblem(w, nil, http.StatusBadRequest, "", detail)
}

// WriteNotFound writes a 404 error response.
func WriteNotFound(w http.ResponseWriter, detail string) {
	writeProblem(w, nil, http.StatusNotFound, "", detail)
}

// WriteMethodNotAllowed writes a 405 error response.
func WriteMethodNotAllowed(w http.ResponseWriter) {
	writeProblem(w, nil, http.StatusMethodNotAllowed, "", "method not supported for this endpoint")
}

// WriteTooManyRequests writes a 429 error response with Retry-After.
func WriteTooManyRequests(w http.ResponseWriter, retryAfterSecs int) {
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSecs))
	writeProblem(w, nil, http.StatusTooManyRequests, "", "rate limit exceeded")
}

// WriteInternal writes a 500 error response. err is logged but never
// exposed to the client.
func WriteInternal(w http.ResponseWriter, err error) {
	slog.Error("internal server error", "error", err)
	writeProblem(w, nil, http.StatusInternalServerError, "", "an unexpected error occurred")
}
