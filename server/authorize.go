package server

import (
	"context"
	"errors"
	"fmt"
	"slices"

	oauth "github.com/sparcrpg/sparc-oauth"
	"github.com/sparcrpg/sparc-oauth/instrumentation"
	"github.com/sparcrpg/sparc-oauth/scope"
	"github.com/sparcrpg/sparc-oauth/security"
	"github.com/sparcrpg/sparc-oauth/storage"
)

// ValidatedAuthorization is an authorization request that passed
// validation. The consent screen shows Scopes to the resource owner.
type ValidatedAuthorization struct {
	Client *storage.Client
	Scopes []string
}

// ValidateAuthorizationRequest checks an authorization request against the
// registered client. Checks run in a fixed order: client, redirect URI,
// scope containment, then response type, PKCE parameters and empty scope.
func (s *Server) ValidateAuthorizationRequest(ctx context.Context, req *oauth.AuthorizationRequest) (_ *ValidatedAuthorization, err error) {
	if req == nil {
		return nil, oauth.ErrInvalidRequest("missing authorization request")
	}

	ctx, span := s.tracer.Start(ctx, "server.ValidateAuthorizationRequest")
	defer span.End()
	defer func() {
		finishSpan(span, err)
		s.metrics.RecordAuthorizationValidated(ctx, req.ClientID, resultOf(err))
	}()

	instrumentation.AddOAuthFlowAttributes(span, req.ClientID, "", req.Scope)

	client, err := s.store.GetClient(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, storage.ErrClientNotFound) {
			s.Logger.DebugContext(ctx, "Authorization request for unknown client", "client_id", req.ClientID)
			return nil, oauth.ErrUnauthorizedClient("unknown client")
		}
		return nil, s.storageError(ctx, "get_client", err)
	}

	// Exact match only; prefix or pattern matching would allow open redirects.
	if !slices.Contains(client.RedirectURIs, req.RedirectURI) {
		s.Logger.DebugContext(ctx, "Authorization request validation failed",
			"reason", "redirect_uri_not_registered",
			"client_id", client.ClientID,
			"redirect_uri", req.RedirectURI)
		s.auditSecurityEvent(security.EventInvalidRedirect, "", client.ClientID, map[string]any{
			"redirect_uri": req.RedirectURI,
		})
		return nil, oauth.ErrInvalidRequest("redirect_uri is not registered for this client")
	}

	requested := scope.Parse(req.Scope)
	if res := scope.Validate(requested, client.AllowedScopes); !res.OK() {
		s.auditSecurityEvent(security.EventScopeEscalationAttempt, "", client.ClientID, map[string]any{
			"invalid_scopes": res.Invalid,
		})
		return nil, oauth.ErrInvalidScope(fmt.Sprintf("client may not request scopes: %s", scope.Format(res.Invalid)))
	}

	if req.ResponseType != oauth.ResponseTypeCode {
		return nil, oauth.ErrUnsupportedResponseType("response_type must be \"code\"")
	}
	if req.CodeChallenge == "" {
		return nil, oauth.ErrInvalidRequest("code_challenge is required")
	}
	if req.CodeChallengeMethod != oauth.PKCEMethodS256 {
		return nil, oauth.ErrInvalidRequest("code_challenge_method must be S256")
	}
	if len(requested) == 0 && !s.Config.AllowEmptyScope {
		return nil, oauth.ErrInvalidScope("at least one scope is required")
	}

	if s.Auditor != nil {
		s.Auditor.LogEvent(security.Event{
			Type:     security.EventAuthorizationRequestValidated,
			ClientID: client.ClientID,
			AppID:    client.AppID,
			Details: map[string]any{
				"scope": scope.Format(requested),
			},
		})
	}

	return &ValidatedAuthorization{Client: client, Scopes: requested}, nil
}

// AuthorizationCodeParams binds a new authorization code to the request the
// resource owner approved.
type AuthorizationCodeParams struct {
	ClientID      string
	UserID        string
	RedirectURI   string
	Scopes        []string
	CodeChallenge string
}

// CreateAuthorizationCode mints a single-use authorization code. Only the
// code's hash is stored; the plaintext is returned once for the redirect.
func (s *Server) CreateAuthorizationCode(ctx context.Context, params AuthorizationCodeParams) (_ string, err error) {
	ctx, span := s.tracer.Start(ctx, "server.CreateAuthorizationCode")
	defer span.End()
	defer func() { finishSpan(span, err) }()

	instrumentation.AddOAuthFlowAttributes(span, params.ClientID, params.UserID, scope.Format(params.Scopes))

	switch {
	case params.ClientID == "":
		return "", oauth.ErrInvalidRequest("client_id is required")
	case params.UserID == "":
		return "", oauth.ErrInvalidRequest("user is required")
	case params.RedirectURI == "":
		return "", oauth.ErrInvalidRequest("redirect_uri is required")
	case params.CodeChallenge == "":
		return "", oauth.ErrInvalidRequest("code_challenge is required")
	}

	code := security.GenerateToken(security.PrefixAuthorizationCode)
	now := s.clock.Now()

	authCode := &storage.AuthorizationCode{
		CodeHash:      security.HashToken(code),
		ClientID:      params.ClientID,
		UserID:        params.UserID,
		RedirectURI:   params.RedirectURI,
		Scopes:        slices.Clone(params.Scopes),
		CodeChallenge: params.CodeChallenge,
		ExpiresAt:     s.clock.CalculateExpiry(s.Config.AuthorizationCodeTTL),
		CreatedAt:     now,
	}
	if err := s.store.SaveAuthCode(ctx, authCode); err != nil {
		return "", s.storageError(ctx, "save_auth_code", err)
	}

	s.metrics.RecordCodeIssued(ctx, params.ClientID)
	if s.Auditor != nil {
		s.Auditor.LogAuthorizationCodeIssued(params.UserID, params.ClientID, scope.Format(params.Scopes))
	}
	s.Logger.DebugContext(ctx, "Issued authorization code",
		"client_id", params.ClientID,
		"code_prefix", tokenPrefix(code))

	return code, nil
}
