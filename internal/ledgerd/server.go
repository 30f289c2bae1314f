// Package ledgerd implements the tecp-ledgerd HTTP surface: the
// append-only log's wire API (spec §6) wired over pkg/ledgerstore and
// pkg/sth, following the http.NewServeMux + per-route handler style of
// core/pkg/console/server.go.
package ledgerd

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/tecp-protocol/tecp/internal/apierr"
	"github.com/tecp-protocol/tecp/internal/archive"
	"github.com/tecp-protocol/tecp/internal/telemetry"
	"github.com/tecp-protocol/tecp/pkg/ledgerstore"
	"github.com/tecp-protocol/tecp/pkg/sth"
)

// Server wires the ledger's HTTP API.
type Server struct {
	ledger   *ledgerstore.Ledger
	keyring  *sth.Keyring
	metrics  *telemetry.Provider
	archiver *archive.Archiver
}

// New constructs a Server over ledger, serving JWKS from keyring. A nil
// metrics provider disables instrumentation entirely.
func New(ledger *ledgerstore.Ledger, keyring *sth.Keyring) *Server {
	return &Server{ledger: ledger, keyring: keyring}
}

// WithMetrics attaches a telemetry.Provider so every handler records
// RED metrics (request count, error count, duration) under its "op".
func (s *Server) WithMetrics(m *telemetry.Provider) *Server {
	s.metrics = m
	return s
}

// WithArchiver attaches an S3 archiver: every successful append fires
// an async PutSTH of the freshly-signed tree head, best-effort and
// never blocking or failing the request.
func (s *Server) WithArchiver(a *archive.Archiver) *Server {
	s.archiver = a
	return s
}

// track wraps a handler's work with a metrics observation, a no-op
// when no provider is attached.
func (s *Server) track(ctx context.Context, op string) func(error) {
	if s.metrics == nil {
		return func(error) {}
	}
	return s.metrics.Track(ctx, op)
}

// Mux builds the route table, wrapped with a request-ID middleware so
// every response (including error responses written via internal/apierr)
// carries a fresh X-Request-ID header; Problem Details written through
// apierr.WriteTECPError also report it as trace_id.
func (s *Server) Mux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/log/entries", s.handleEntries)
	mux.HandleFunc("/v1/log/entries/", s.handleEntryByID)
	mux.HandleFunc("/v1/log/proof", s.handleProof)
	mux.HandleFunc("/v1/log/sth", s.handleSTH)
	mux.HandleFunc("/.well-known/tecp-log-jwks", s.handleJWKS)
	return withRequestID(mux)
}

// withRequestID stamps every response with a fresh request ID, giving
// internal/apierr's Problem Details a trace_id to report without handlers
// having to generate one themselves.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-ID", uuid.NewString())
		next.ServeHTTP(w, r)
	})
}

type appendRequest struct {
	LeafHash string                 `json:"leaf_hash"` // hex-encoded sha256 leaf
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

type appendResponse struct {
	Seq      uint64  `json:"seq"`
	Replayed bool    `json:"replayed"`
	STH      sth.STH `json:"sth"`
}

func (s *Server) handleEntries(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.appendEntry(w, r)
	case http.MethodGet:
		s.listEntries(w, r)
	default:
		apierr.WriteMethodNotAllowed(w)
	}
}

func (s *Server) appendEntry(w http.ResponseWriter, r *http.Request) {
	done := s.track(r.Context(), "append")
	var req appendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.WriteBadRequest(w, "invalid JSON body: "+err.Error())
		done(err)
		return
	}
	leafBytes, err := hex.DecodeString(req.LeafHash)
	if err != nil || len(leafBytes) != 32 {
		apierr.WriteBadRequest(w, "leaf_hash must be 32 bytes of hex")
		done(errors.New("invalid leaf_hash"))
		return
	}
	var leaf [32]byte
	copy(leaf[:], leafBytes)

	result, err := s.ledger.Append(r.Context(), leaf, req.Metadata)
	done(err)
	if err != nil {
		apierr.WriteTECPError(w, r, err)
		return
	}
	if s.archiver != nil && !result.Replayed {
		go func(head sth.STH) {
			if err := s.archiver.PutSTH(context.Background(), head); err != nil {
				slog.Default().Warn("STH archive failed", "size", head.Size, "error", err)
			}
		}(result.STH)
	}

	writeJSON(w, http.StatusOK, appendResponse{Seq: result.Seq, Replayed: result.Replayed, STH: result.STH})
}

// entryDTO is the wire shape of a ledgerstore.Entry: a hex leaf instead
// of a raw [32]byte array, which encoding/json would otherwise render
// as a JSON array of 32 small integers.
type entryDTO struct {
	Seq       uint64                 `json:"seq"`
	Leaf      string                 `json:"leaf"`
	CreatedAt string                 `json:"created_at"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

func toEntryDTO(e ledgerstore.Entry) entryDTO {
	return entryDTO{
		Seq:       e.Seq,
		Leaf:      hex.EncodeToString(e.Leaf[:]),
		CreatedAt: e.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z"),
		Metadata:  e.Metadata,
	}
}

func (s *Server) listEntries(w http.ResponseWriter, r *http.Request) {
	offset := parseUintParam(r, "offset", 0)
	limit := parseUintParam(r, "limit", 100)

	entries, err := s.ledger.Range(r.Context(), offset, limit)
	if err != nil {
		apierr.WriteTECPError(w, r, err)
		return
	}
	dtos := make([]entryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (s *Server) handleEntryByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		apierr.WriteMethodNotAllowed(w)
		return
	}
	seqStr := strings.TrimPrefix(r.URL.Path, "/v1/log/entries/")
	seq, err := strconv.ParseUint(seqStr, 10, 64)
	if err != nil {
		apierr.WriteBadRequest(w, "seq must be a non-negative integer")
		return
	}
	entry, err := s.ledger.Entry(r.Context(), seq)
	if err != nil {
		apierr.WriteTECPError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTO(entry))
}

type proofResponse struct {
	Seq       uint64   `json:"seq"`
	AuditPath []string `json:"audit_path"`
	STH       sth.STH  `json:"sth"`
}

func (s *Server) handleProof(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		apierr.WriteMethodNotAllowed(w)
		return
	}
	done := s.track(r.Context(), "proof")
	seq := parseUintParam(r, "seq", 0)
	if seq == 0 {
		apierr.WriteBadRequest(w, "seq query parameter is required")
		done(errors.New("missing seq"))
		return
	}
	path, err := s.ledger.InclusionProof(seq)
	done(err)
	if err != nil {
		apierr.WriteTECPError(w, r, err)
		return
	}
	hexPath := make([]string, len(path))
	for i, h := range path {
		hexPath[i] = hex.EncodeToString(h[:])
	}
	writeJSON(w, http.StatusOK, proofResponse{Seq: seq, AuditPath: hexPath, STH: s.ledger.CurrentSTH()})
}

func (s *Server) handleSTH(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		apierr.WriteMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, s.ledger.CurrentSTH())
}

func (s *Server) handleJWKS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		apierr.WriteMethodNotAllowed(w)
		return
	}
	set, err := s.keyring.JWKS()
	if err != nil {
		apierr.WriteTECPError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func parseUintParam(r *http.Request, name string, def uint64) uint64 {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}
