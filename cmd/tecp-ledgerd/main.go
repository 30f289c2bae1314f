// Command tecp-ledgerd runs the append-only ledger service: it exposes
// spec §6's HTTP surface (append, range, inclusion proof, STH, JWKS)
// over whichever Store backend is configured.
package main

import (
	"context"
	"crypto/ed25519"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/tecp-protocol/tecp/internal/archive"
	"github.com/tecp-protocol/tecp/internal/config"
	"github.com/tecp-protocol/tecp/internal/ledgerd"
	"github.com/tecp-protocol/tecp/internal/ratelimit"
	"github.com/tecp-protocol/tecp/internal/telemetry"
	"github.com/tecp-protocol/tecp/pkg/ledgerstore"
	"github.com/tecp-protocol/tecp/pkg/signer"
	"github.com/tecp-protocol/tecp/pkg/sth"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.Load()
	logger := slog.Default()
	ctx := context.Background()

	store, closeFn, err := openStore(ctx, cfg)
	if err != nil {
		log.Printf("[tecp-ledgerd] store init failed: %v", err)
		return 1
	}
	defer closeFn()

	keyring, activeKid, activeProvider, err := bootstrapKeyring(cfg)
	if err != nil {
		log.Printf("[tecp-ledgerd] keyring bootstrap failed: %v", err)
		return 1
	}
	sths := sth.NewService(keyring, activeKid, activeProvider)

	ledger, err := ledgerstore.New(ctx, store, sths, nil)
	if err != nil {
		log.Printf("[tecp-ledgerd] ledger startup failed: %v", err)
		return 1
	}
	if cfg.RedisAddr != "" {
		ledger = ledger.WithIdempotencyCache(ledgerstore.NewIdempotencyCache(cfg.RedisAddr, "", 0, time.Hour))
	}

	metrics, err := telemetry.New(ctx, telemetry.Config{OTLPEndpoint: cfg.OTLPEndpoint, Insecure: true})
	if err != nil {
		log.Printf("[tecp-ledgerd] telemetry init failed: %v", err)
		return 1
	}
	defer metrics.Shutdown(ctx)

	srv := ledgerd.New(ledger, keyring).WithMetrics(metrics)
	if cfg.S3Bucket != "" {
		archiver, err := archive.New(ctx, archive.Config{
			Bucket: cfg.S3Bucket, Region: cfg.S3Region, Endpoint: cfg.S3Endpoint, Prefix: cfg.S3Prefix,
		})
		if err != nil {
			log.Printf("[tecp-ledgerd] archive init failed: %v", err)
			return 1
		}
		srv = srv.WithArchiver(archiver)
	}
	limiter := ratelimit.New(cfg.RateLimitRPS, int(cfg.RateLimitRPS)*2)
	defer limiter.Close()

	handler := limiter.Middleware(srv.Mux())

	logger.Info("tecp-ledgerd starting", "port", cfg.Port, "store_driver", cfg.StoreDriver)
	if err := http.ListenAndServe(":"+cfg.Port, handler); err != nil {
		log.Printf("[tecp-ledgerd] server exited: %v", err)
		return 1
	}
	return 0
}

// openStore constructs the configured Store backend and a cleanup func.
func openStore(ctx context.Context, cfg *config.Config) (ledgerstore.Store, func(), error) {
	switch cfg.StoreDriver {
	case "memory", "":
		return ledgerstore.NewMemoryStore(nil), func() {}, nil

	case "postgres":
		db, err := sql.Open("postgres", cfg.StoreDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			return nil, nil, fmt.Errorf("ping postgres: %w", err)
		}
		store := ledgerstore.NewPostgresStore(db)
		if err := store.Init(ctx); err != nil {
			return nil, nil, fmt.Errorf("init postgres schema: %w", err)
		}
		return store, func() { _ = db.Close() }, nil

	case "sqlite":
		db, err := sql.Open("sqlite", cfg.StoreDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		store := ledgerstore.NewSQLiteStore(db)
		if err := store.Init(ctx); err != nil {
			return nil, nil, fmt.Errorf("init sqlite schema: %w", err)
		}
		return store, func() { _ = db.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown TECP_STORE_DRIVER %q", cfg.StoreDriver)
	}
}

// bootstrapKeyring builds the signing keyring from the YAML issuer
// config if one is configured, otherwise generates a single ephemeral
// key — acceptable for dev/test instances only.
func bootstrapKeyring(cfg *config.Config) (*sth.Keyring, string, signer.KeyProvider, error) {
	kr := sth.NewKeyring()

	if cfg.IssuerFile == "" {
		p, err := signer.NewMemoryKeyProvider()
		if err != nil {
			return nil, "", nil, err
		}
		kid := sth.DeriveKid(p.PublicKey())
		kr.Add(sth.KeyEntry{Kid: kid, Alg: "Ed25519", PubKey: p.PublicKey(), Status: sth.StatusActive})
		log.Printf("[tecp-ledgerd] no issuer config; generated ephemeral signing key kid=%s", kid)
		return kr, kid, p, nil
	}

	ic, err := config.LoadIssuerConfig(cfg.IssuerFile)
	if err != nil {
		return nil, "", nil, err
	}

	var activeProvider signer.KeyProvider
	for _, k := range ic.Keys {
		seed, err := hex.DecodeString(k.SeedHex)
		if err != nil || len(seed) != ed25519.SeedSize {
			return nil, "", nil, fmt.Errorf("key %s: seed_hex must decode to %d bytes", k.Kid, ed25519.SeedSize)
		}
		provider, err := signer.FromSeed(seed)
		if err != nil {
			return nil, "", nil, fmt.Errorf("key %s: %w", k.Kid, err)
		}
		kr.Add(sth.KeyEntry{
			Kid:       k.Kid,
			Alg:       "Ed25519",
			PubKey:    provider.PublicKey(),
			Status:    sth.Status(k.Status),
			NotBefore: k.NotBefore,
			NotAfter:  k.NotAfter,
		})
		if k.Kid == ic.ActiveKid {
			activeProvider = provider
		}
	}
	if activeProvider == nil {
		return nil, "", nil, fmt.Errorf("issuer config active_kid %q matches no configured key", ic.ActiveKid)
	}
	return kr, ic.ActiveKid, activeProvider, nil
}
