package client_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tecp-protocol/tecp-sdk-go/client"
)

func TestAppend_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/log/entries" || r.Method != http.MethodPost {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req client.AppendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(client.AppendResponse{
			Seq:      1,
			Replayed: false,
			STH:      client.STH{Size: 1, Root: "abc", Kid: "kid1"},
		})
	}))
	defer srv.Close()

	c := client.New(srv.URL)
	resp, err := c.Append(client.AppendRequest{LeafHash: "deadbeef"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if resp.Seq != 1 {
		t.Errorf("Seq = %d, want 1", resp.Seq)
	}
	if resp.STH.Root != "abc" {
		t.Errorf("STH.Root = %s, want abc", resp.STH.Root)
	}
}

func TestAppend_ErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(client.ProblemDetail{
			Status: 400,
			Detail: "leaf_hash must be 32 bytes of hex",
			Code:   "E_STRUCT_TYPE",
		})
	}))
	defer srv.Close()

	c := client.New(srv.URL)
	_, err := c.Append(client.AppendRequest{LeafHash: "not-hex"})
	if err == nil {
		t.Fatal("expected an error")
	}
	apiErr, ok := err.(*client.APIError)
	if !ok {
		t.Fatalf("expected *client.APIError, got %T", err)
	}
	if apiErr.Status != 400 || apiErr.Code != "E_STRUCT_TYPE" {
		t.Errorf("unexpected APIError: %+v", apiErr)
	}
}

func TestSTHCurrentAndJWKS(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/log/sth", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(client.STH{Size: 5, Root: "deadbeef", Kid: "kid1"})
	})
	mux.HandleFunc("/.well-known/tecp-log-jwks", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(client.JWKSet{Keys: []client.JWK{{Kty: "OKP", Crv: "Ed25519", Kid: "kid1"}}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := client.New(srv.URL, client.WithAPIKey("test-key"))

	sth, err := c.STHCurrent()
	if err != nil {
		t.Fatalf("STHCurrent: %v", err)
	}
	if sth.Size != 5 {
		t.Errorf("Size = %d, want 5", sth.Size)
	}

	jwks, err := c.JWKS()
	if err != nil {
		t.Fatalf("JWKS: %v", err)
	}
	if len(jwks.Keys) != 1 || jwks.Keys[0].Kid != "kid1" {
		t.Errorf("unexpected JWKS: %+v", jwks)
	}
}

func TestEntryAndProof(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/log/entries/1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(client.Entry{Seq: 1, Leaf: "ab", CreatedAt: "2026-01-01T00:00:00.000Z"})
	})
	mux.HandleFunc("/v1/log/proof", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("seq"); got != "1" {
			t.Fatalf("seq = %s, want 1", got)
		}
		json.NewEncoder(w).Encode(client.ProofResponse{Seq: 1, AuditPath: []string{}, STH: client.STH{Size: 1}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := client.New(srv.URL)
	entry, err := c.Entry(1)
	if err != nil {
		t.Fatalf("Entry: %v", err)
	}
	if entry.Leaf != "ab" {
		t.Errorf("Leaf = %s, want ab", entry.Leaf)
	}

	proof, err := c.Proof(1)
	if err != nil {
		t.Fatalf("Proof: %v", err)
	}
	if proof.Seq != 1 {
		t.Errorf("Seq = %d, want 1", proof.Seq)
	}
}
