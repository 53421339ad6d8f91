package server

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	oauth "github.com/sparcrpg/sparc-oauth"
	"github.com/sparcrpg/sparc-oauth/instrumentation"
	"github.com/sparcrpg/sparc-oauth/internal/util"
	"github.com/sparcrpg/sparc-oauth/security"
	"github.com/sparcrpg/sparc-oauth/storage"
)

// Server implements the authorization server core: the authorization flow,
// token exchange, token validation and the authorization ledger. It holds no
// mutable per-request state and is safe for concurrent use.
type Server struct {
	store                    storage.Store
	Auditor                  *security.Auditor
	SecurityEventRateLimiter *security.RateLimiter // Rate limiter for security event logging (DoS prevention)
	Logger                   *slog.Logger
	Config                   *Config

	clock           security.Clock
	instrumentation *instrumentation.Instrumentation
	metrics         *instrumentation.Metrics
	tracer          trace.Tracer
}

// New creates a new authorization server over store.
func New(store storage.Store, config *Config, logger *slog.Logger) (*Server, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if config == nil {
		config = &Config{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	config = applySecureDefaults(config, logger)
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// Instruments are no-ops until SetInstrumentation is called.
	inst, err := instrumentation.New(instrumentation.Config{Enabled: false})
	if err != nil {
		return nil, fmt.Errorf("failed to create instrumentation: %w", err)
	}

	srv := &Server{
		store:  store,
		Config: config,
		Logger: logger,
		clock:  security.SystemClock,
	}
	srv.setInstrumentation(inst)

	return srv, nil
}

// SetAuditor sets the security auditor
func (s *Server) SetAuditor(aud *security.Auditor) {
	s.Auditor = aud
}

// SetSecurityEventRateLimiter sets the rate limiter for security event logging
// This prevents log flooding from a single user:client pair
func (s *Server) SetSecurityEventRateLimiter(rl *security.RateLimiter) {
	s.SecurityEventRateLimiter = rl
}

// SetInstrumentation enables metrics and tracing for server operations.
func (s *Server) SetInstrumentation(inst *instrumentation.Instrumentation) {
	if inst == nil {
		return
	}
	s.setInstrumentation(inst)
}

func (s *Server) setInstrumentation(inst *instrumentation.Instrumentation) {
	s.instrumentation = inst
	s.metrics = inst.Metrics()
	s.tracer = inst.Tracer("server")
}

// SetClock replaces the time source used for issuing and expiring
// credentials.
func (s *Server) SetClock(c security.Clock) {
	if c == nil {
		c = security.SystemClock
	}
	s.clock = c
}

// Store returns the storage backend the server was created with.
func (s *Server) Store() storage.Store {
	return s.store
}

// allowSecurityEvent reports whether a security event for key may be logged.
func (s *Server) allowSecurityEvent(key string) bool {
	return s.SecurityEventRateLimiter == nil || s.SecurityEventRateLimiter.Allow(key)
}

// auditAuthFailure logs a failed request to the auditor, rate limited per
// user:client pair.
func (s *Server) auditAuthFailure(userID, clientID, reason string) {
	if s.Auditor == nil || !s.allowSecurityEvent(userID+":"+clientID) {
		return
	}
	s.Auditor.LogAuthFailure(userID, clientID, reason)
}

// auditSecurityEvent logs a security event, rate limited per user:client pair.
func (s *Server) auditSecurityEvent(eventType, userID, clientID string, details map[string]any) {
	if s.Auditor == nil || !s.allowSecurityEvent(userID+":"+clientID) {
		return
	}
	s.Auditor.LogEvent(security.Event{
		Type:     eventType,
		UserID:   userID,
		ClientID: clientID,
		Details:  details,
	})
}

// storageError converts a backend failure into a server_error that keeps
// the cause for logging.
func (s *Server) storageError(ctx context.Context, op string, err error) *oauth.OAuthError {
	s.Logger.ErrorContext(ctx, "Storage operation failed", "operation", op, "error", err)
	return oauth.ErrServerErrorCause("storage unavailable", fmt.Errorf("%s: %w", op, err))
}

// finishSpan records err on span. Protocol errors carry their code.
func finishSpan(span trace.Span, err error) {
	if err == nil {
		instrumentation.SetSpanSuccess(span)
		return
	}
	if oauthErr := oauth.AsOAuthError(err); oauthErr != nil {
		instrumentation.AddOAuthErrorAttributes(span, string(oauthErr.Code))
	}
	instrumentation.RecordError(span, err)
}

// resultOf maps an error to a metric result label.
func resultOf(err error) string {
	if err == nil {
		return instrumentation.ResultSuccess
	}
	if e := oauth.AsOAuthError(err); e != nil && e.Code == oauth.ErrorCodeServerError {
		return instrumentation.ResultError
	}
	return instrumentation.ResultFailure
}

// tokenPrefix returns a log-safe prefix of a credential.
func tokenPrefix(token string) string {
	return util.SafeTruncate(token, 8)
}
