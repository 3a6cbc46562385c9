package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/saveriodangelo-cyber/Cooksy/internal/auth/api/rest"
	"github.com/saveriodangelo-cyber/Cooksy/internal/auth/delivery"
	"github.com/saveriodangelo-cyber/Cooksy/internal/auth/otp"
	"github.com/saveriodangelo-cyber/Cooksy/internal/auth/passkey"
	"github.com/saveriodangelo-cyber/Cooksy/internal/auth/session"
	"github.com/saveriodangelo-cyber/Cooksy/internal/auth/storage/sqlite"
)

const cleanupInterval = 5 * time.Minute

// Server hosts the identity service.
type Server struct {
	listener   net.Listener
	httpServer *http.Server
	store      *sqlite.Store
	sessions   *session.Manager
	passkeys   *passkey.Manager
}

// New creates a configured identity server listening on the provided address.
//
// When sender is nil, codes are queued in the durable mail outbox for an
// external mailer. Codes never reach the logs.
func New(httpAddr string, sender otp.Sender) (*Server, error) {
	listener, err := net.Listen("tcp", httpAddr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", httpAddr, err)
	}

	store, err := openIdentityStore()
	if err != nil {
		_ = listener.Close()
		return nil, err
	}

	if sender == nil {
		sender = delivery.NewOutboxSender(store)
	}
	otpManager := otp.NewManager(store, sender, otp.LoadConfigFromEnv())
	passkeyManager, err := passkey.NewManager(store, store, passkey.LoadConfigFromEnv())
	if err != nil {
		_ = listener.Close()
		_ = store.Close()
		return nil, err
	}
	sessions := session.NewManager(store, store, store, otpManager, passkeyManager, session.LoadConfigFromEnv())

	mux := http.NewServeMux()
	if err := rest.NewServer(sessions, passkeyManager).RegisterRoutes(mux); err != nil {
		_ = listener.Close()
		_ = store.Close()
		return nil, fmt.Errorf("register routes: %w", err)
	}

	return &Server{
		listener:   listener,
		httpServer: &http.Server{Handler: mux},
		store:      store,
		sessions:   sessions,
		passkeys:   passkeyManager,
	}, nil
}

// Addr returns the listener address for the identity server.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Sessions exposes the session manager for command tooling.
func (s *Server) Sessions() *session.Manager {
	if s == nil {
		return nil
	}
	return s.sessions
}

// Run creates and serves an identity server until the context ends.
func Run(ctx context.Context, httpAddr string, sender otp.Sender) error {
	server, err := New(httpAddr, sender)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve starts the identity server and blocks until it stops or the context
// ends.
func (s *Server) Serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	serverCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.closeStore()

	s.startCleanup(serverCtx, cleanupInterval)

	log.Printf("identity server listening at %v", s.listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.httpServer.Serve(s.listener)
	}()

	shutdown := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
	}

	select {
	case <-ctx.Done():
		shutdown()
		err := <-serveErr
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve HTTP: %w", err)
	case err := <-serveErr:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve HTTP: %w", err)
	}
}

// startCleanup periodically removes expired sessions, ceremony challenges,
// and verification codes.
//
// This keeps short-lived records from accumulating without requiring a
// separate maintenance process.
func (s *Server) startCleanup(ctx context.Context, interval time.Duration) {
	if s == nil || s.store == nil || interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				now := time.Now().UTC()
				if err := s.store.DeleteExpiredSessions(ctx, now); err != nil {
					log.Printf("cleanup sessions: %v", err)
				}
				if err := s.store.DeleteExpiredPasskeyChallenges(ctx, now); err != nil {
					log.Printf("cleanup challenges: %v", err)
				}
				if err := s.store.DeleteExpiredOtp(ctx, now); err != nil {
					log.Printf("cleanup otp codes: %v", err)
				}
			}
		}
	}()
}

func (s *Server) closeStore() {
	if s == nil || s.store == nil {
		return
	}
	if err := s.store.Close(); err != nil {
		log.Printf("close identity store: %v", err)
	}
}

func openIdentityStore() (*sqlite.Store, error) {
	path := strings.TrimSpace(os.Getenv("COOKSY_IDENTITY_DB_PATH"))
	if path == "" {
		path = filepath.Join("data", "identity.db")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}

	store, err := sqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open identity sqlite store: %w", err)
	}
	return store, nil
}
