// ABOUTME: HTTP surface of the dashboard relay.
// ABOUTME: WebSocket endpoints for agents and identities plus health probes.

// Package server exposes the relay over HTTP.
//
// Two WebSocket endpoints attach connections to the relay core: /ws/agent
// for remote bot agents (shared-secret handshake, version gated) and
// /ws/user for dashboard identities (bearer credential resolved through
// the profile provider). Handshake failures on the agent endpoint are
// reported as close codes after the upgrade, because agents read the close
// code to decide whether to retry; identity failures are plain HTTP errors
// before the upgrade.
//
// /health and /health/ready serve liveness and readiness probes.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/harmonia-bot/dashboard/internal/config"
	"github.com/harmonia-bot/dashboard/internal/provider"
	"github.com/harmonia-bot/dashboard/internal/relay"
	"github.com/harmonia-bot/dashboard/internal/version"
)

const shutdownTimeout = 10 * time.Second

// Server is the HTTP front of the relay.
type Server struct {
	cfg       *config.Config
	core      *relay.Core
	provider  relay.ProfileProvider
	countries provider.CountryResolver
	logger    *slog.Logger

	httpServer *http.Server
	upgrader   websocket.Upgrader
}

// New creates a Server around an existing relay core.
func New(cfg *config.Config, core *relay.Core, prov relay.ProfileProvider, countries provider.CountryResolver, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if countries == nil {
		countries = provider.NoopResolver{}
	}
	s := &Server{
		cfg:       cfg,
		core:      core,
		provider:  prov,
		countries: countries,
		logger:    logger.With("component", "server"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The dashboard frontend is served from a different origin
			// than the relay; credentials are checked per endpoint.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/agent", s.handleAgent)
	mux.HandleFunc("/ws/user", s.handleIdentity)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/health/ready", s.handleReady)

	s.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Run serves until the context is canceled or the listener fails, then
// shuts down gracefully: live relay channels are closed first so blocked
// receive loops unwind, then the HTTP server drains.
func (s *Server) Run(ctx context.Context) error {
	if window := s.cfg.Registry.EvictionAfter; window > 0 {
		go s.evictLoop(ctx, window)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.cfg.Server.HTTPAddr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	s.core.DisconnectAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// evictLoop sweeps long-disconnected registry entries once per window.
func (s *Server) evictLoop(ctx context.Context, window time.Duration) {
	ticker := time.NewTicker(window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.core.EvictIdle(window)
		}
	}
}

// handleAgent runs the agent handshake and hands the connection to the
// relay. The handshake outcome is delivered as a close code so the agent
// can distinguish a bad secret from an outdated client.
func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	secret := r.Header.Get("Authorization")
	agentID := r.Header.Get("User-Id")
	clientVersion := r.Header.Get("Client-Version")

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("agent upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}
	conn := newWSConn(ws)

	switch {
	case secret != s.cfg.Relay.SharedSecret:
		s.logger.Warn("agent rejected: bad secret", "remote", r.RemoteAddr)
		_ = conn.Close(relay.CloseAuthFailure, "authentication failed")
		return
	case agentID == "":
		s.logger.Warn("agent rejected: missing id", "remote", r.RemoteAddr)
		_ = conn.Close(relay.CloseMissingIdentity, "missing agent id")
		return
	case !version.AtLeast(clientVersion, s.cfg.Relay.MinAgentVersion):
		s.logger.Warn("agent rejected: version too old",
			"agent_id", agentID,
			"client_version", clientVersion,
			"min_version", s.cfg.Relay.MinAgentVersion,
		)
		_ = conn.Close(relay.CloseVersionMismatch, "unsupported client version")
		return
	}

	s.logger.Info("agent connected", "agent_id", agentID, "client_version", clientVersion)
	if err := s.core.ConnectAgent(r.Context(), agentID, conn); err != nil {
		s.logger.Error("agent loop failed", "agent_id", agentID, "error", err)
	}
}

// handleIdentity resolves the bearer credential into an identity, then
// hands the connection to the relay.
func (s *Server) handleIdentity(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		http.Error(w, "missing credential", http.StatusUnauthorized)
		return
	}

	ident := s.core.Identities().GetByCredential(token)
	if ident == nil {
		profile, err := s.provider.FetchProfile(r.Context(), token)
		if err != nil {
			s.logger.Warn("credential resolution failed", "error", err, "remote", r.RemoteAddr)
			http.Error(w, "invalid credential", http.StatusUnauthorized)
			return
		}
		ident, err = s.core.Identities().Add(profile)
		if err != nil {
			s.logger.Error("identity registration failed", "error", err)
			http.Error(w, "invalid credential", http.StatusUnauthorized)
			return
		}
	}
	if ident.Locale() == "" {
		ident.SetLocale(s.localeFor(r))
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("identity upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	s.logger.Info("identity connected", "identity_id", ident.ID)
	if err := s.core.ConnectIdentity(r.Context(), ident, newWSConn(ws)); err != nil {
		s.logger.Error("identity loop failed", "identity_id", ident.ID, "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"server": s.core.ServerID(),
	})
}

// handleReady reports ready only while at least one agent holds a live
// channel; a relay with no agents cannot route anything.
func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	connected := s.core.Agents().ConnectedCount()
	status := http.StatusOK
	state := "ready"
	if connected == 0 {
		status = http.StatusServiceUnavailable
		state = "no agents connected"
	}
	writeJSON(w, status, map[string]any{
		"status":           state,
		"identities":       s.core.Identities().Len(),
		"agents":           s.core.Agents().Len(),
		"agents_connected": connected,
	})
}

// localeFor derives a display locale from the client's apparent country.
// Resolution failures fall back to the default locale; locale is cosmetic
// and must never block a connect.
func (s *Server) localeFor(r *http.Request) string {
	ip := clientIP(r)
	if ip == "" {
		return provider.DefaultLocale
	}
	country, err := s.countries.LookupCountry(ip)
	if err != nil || country == "" {
		return provider.DefaultLocale
	}
	return provider.LocaleForCountry(country)
}

// bearerToken extracts the credential from the Authorization header or,
// for browser WebSocket clients that cannot set headers, the token query
// parameter.
func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// clientIP prefers the first X-Forwarded-For hop, set by the reverse
// proxy in front of the relay.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
