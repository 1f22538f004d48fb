package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/louisbranch/recovery.space/internal/recovery/lifecycle"
	"github.com/louisbranch/recovery.space/internal/recovery/provider"
	"github.com/louisbranch/recovery.space/internal/recovery/storage"
	"github.com/louisbranch/recovery.space/internal/recovery/storage/memory"
	"github.com/louisbranch/recovery.space/internal/recovery/storage/sqlite"
	"github.com/louisbranch/recovery.space/internal/recovery/token"
)

const appName = "recovery.space"

// Server hosts the relying-party endpoints of the delegated account
// recovery flow.
type Server struct {
	config    Config
	lifecycle *lifecycle.Manager
	signer    *token.Signer
	provider  *provider.Client
	tracer    trace.Tracer
}

// NewServer builds a recovery server over the given collaborators.
func NewServer(config Config, manager *lifecycle.Manager, signer *token.Signer, providerClient *provider.Client) *Server {
	return &Server{
		config:    config,
		lifecycle: manager,
		signer:    signer,
		provider:  providerClient,
		tracer:    otel.Tracer(appName),
	}
}

// RegisterRoutes registers the recovery HTTP endpoints on the provided mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	if mux == nil {
		return
	}
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/save-token", s.handleSaveToken)
	mux.HandleFunc("/save-token/return", s.handleSaveTokenReturn)
	mux.HandleFunc("/invalidate-token", s.handleInvalidateToken)
	mux.HandleFunc(provider.WellKnownPath, s.handleConfiguration)
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
}

// Run assembles the service from its configuration and serves HTTP until
// the context ends.
func Run(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	key, err := token.ParsePrivateKey(cfg.PrivateKeyPEM)
	if err != nil {
		return fmt.Errorf("load signing key: %w", err)
	}
	signer, err := token.NewSigner(key, cfg.Issuer)
	if err != nil {
		return fmt.Errorf("configure signer: %w", err)
	}

	var store storage.RecordStore
	if cfg.StoragePath != "" {
		sqliteStore, err := sqlite.Open(cfg.StoragePath)
		if err != nil {
			return fmt.Errorf("open record store: %w", err)
		}
		defer sqliteStore.Close()
		store = sqliteStore
	} else {
		log.Printf("no storage path configured; token records will not survive a restart")
		store = memory.NewStore()
	}

	var providerClient *provider.Client
	if cfg.ProviderConfigURL != "" {
		providerClient = provider.NewClient(cfg.ProviderConfigURL, cfg.ProviderCacheTTL)
	} else {
		providerClient = provider.NewStaticClient(provider.Config{
			Issuer:    cfg.ProviderIssuer,
			SaveToken: cfg.ProviderSaveToken,
		})
	}

	server := NewServer(cfg, lifecycle.NewManager(store), signer, providerClient)
	mux := http.NewServeMux()
	server.RegisterRoutes(mux)

	listener, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.HTTPAddr, err)
	}
	httpServer := &http.Server{Handler: mux}

	log.Printf("recovery server listening at %v", listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.Serve(listener)
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http: %w", err)
		}
		return nil
	}
}
