package main

import (
	"context"
	"crypto/ed25519"
	"database/sql"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
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

// runServeCmd is a thin wrapper over the same wiring cmd/tecp-ledgerd
// uses, letting `tecp serve` stand in for the dedicated ledger binary
// during local development. Configuration is read the same way
// (TECP_* environment variables); --port overrides TECP_PORT.
func runServeCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("serve", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var port string
	cmd.StringVar(&port, "port", "", "override the listen port (defaults to TECP_PORT or 8088)")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	cfg := config.Load()
	if port != "" {
		cfg.Port = port
	}
	ctx := context.Background()

	store, closeFn, err := openStore(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "store init failed: %v\n", err)
		return 1
	}
	defer closeFn()

	keyring, activeKid, activeProvider, err := bootstrapKeyring(cfg, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "keyring bootstrap failed: %v\n", err)
		return 1
	}
	sths := sth.NewService(keyring, activeKid, activeProvider)

	ledger, err := ledgerstore.New(ctx, store, sths, nil)
	if err != nil {
		fmt.Fprintf(stderr, "ledger startup failed: %v\n", err)
		return 1
	}
	if cfg.RedisAddr != "" {
		ledger = ledger.WithIdempotencyCache(ledgerstore.NewIdempotencyCache(cfg.RedisAddr, "", 0, time.Hour))
	}

	metrics, err := telemetry.New(ctx, telemetry.Config{OTLPEndpoint: cfg.OTLPEndpoint, Insecure: true})
	if err != nil {
		fmt.Fprintf(stderr, "telemetry init failed: %v\n", err)
		return 1
	}
	defer metrics.Shutdown(ctx)

	srv := ledgerd.New(ledger, keyring).WithMetrics(metrics)
	if cfg.S3Bucket != "" {
		archiver, err := archive.New(ctx, archive.Config{
			Bucket: cfg.S3Bucket, Region: cfg.S3Region, Endpoint: cfg.S3Endpoint, Prefix: cfg.S3Prefix,
		})
		if err != nil {
			fmt.Fprintf(stderr, "archive init failed: %v\n", err)
			return 1
		}
		srv = srv.WithArchiver(archiver)
	}
	limiter := ratelimit.New(cfg.RateLimitRPS, int(cfg.RateLimitRPS)*2)
	defer limiter.Close()

	fmt.Fprintf(stdout, "tecp serve: listening on :%s (store=%s)\n", cfg.Port, cfg.StoreDriver)
	slog.Default().Info("tecp serve starting", "port", cfg.Port, "store_driver", cfg.StoreDriver)
	if err := http.ListenAndServe(":"+cfg.Port, limiter.Middleware(srv.Mux())); err != nil {
		fmt.Fprintf(stderr, "server exited: %v\n", err)
		return 1
	}
	return 0
}

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
		s := ledgerstore.NewPostgresStore(db)
		if err := s.Init(ctx); err != nil {
			return nil, nil, fmt.Errorf("init postgres schema: %w", err)
		}
		return s, func() { _ = db.Close() }, nil

	case "sqlite":
		db, err := sql.Open("sqlite", cfg.StoreDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		s := ledgerstore.NewSQLiteStore(db)
		if err := s.Init(ctx); err != nil {
			return nil, nil, fmt.Errorf("init sqlite schema: %w", err)
		}
		return s, func() { _ = db.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown TECP_STORE_DRIVER %q", cfg.StoreDriver)
	}
}

func bootstrapKeyring(cfg *config.Config, stderr io.Writer) (*sth.Keyring, string, signer.KeyProvider, error) {
	kr := sth.NewKeyring()

	if cfg.IssuerFile == "" {
		p, err := signer.NewMemoryKeyProvider()
		if err != nil {
			return nil, "", nil, err
		}
		kid := sth.DeriveKid(p.PublicKey())
		kr.Add(sth.KeyEntry{Kid: kid, Alg: "Ed25519", PubKey: p.PublicKey(), Status: sth.StatusActive})
		fmt.Fprintf(stderr, "no issuer config; generated ephemeral signing key kid=%s\n", kid)
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
