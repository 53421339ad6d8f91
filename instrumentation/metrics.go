package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Result attribute values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultError   = "error"
)

// Metrics holds all metric instruments for the authorization server
type Metrics struct {
	// Flow metrics
	AuthorizationValidated metric.Int64Counter
	CodeIssued             metric.Int64Counter
	CodeExchanged          metric.Int64Counter
	TokenRefreshed         metric.Int64Counter
	TokenValidated         metric.Int64Counter
	TokenRevoked           metric.Int64Counter
	ClientRegistered       metric.Int64Counter

	// Security metrics
	PKCEValidationFailed metric.Int64Counter
	CodeReuseDetected    metric.Int64Counter
	ClientAuthFailed     metric.Int64Counter

	// Storage metrics
	StorageOperationTotal      metric.Int64Counter
	StorageOperationDuration   metric.Float64Histogram
	StorageClientsCount        metric.Int64ObservableGauge
	StorageAuthCodesCount      metric.Int64ObservableGauge
	StorageAccessTokensCount   metric.Int64ObservableGauge
	StorageRefreshTokensCount  metric.Int64ObservableGauge
	StorageAuthorizationsCount metric.Int64ObservableGauge
}

type counterSpec struct {
	dst  *metric.Int64Counter
	name string
	desc string
	unit string
}

type gaugeSpec struct {
	dst  *metric.Int64ObservableGauge
	name string
	desc string
}

// newMetrics creates and registers all metric instruments
func newMetrics(inst *Instrumentation) (*Metrics, error) {
	m := &Metrics{}
	serverMeter := inst.Meter("server")
	storageMeter := inst.Meter("storage")

	serverCounters := []counterSpec{
		{&m.AuthorizationValidated, "oauth.authorization.validated", "Authorization requests validated", "{request}"},
		{&m.CodeIssued, "oauth.code.issued", "Authorization codes issued", "{code}"},
		{&m.CodeExchanged, "oauth.code.exchanged", "Authorization code exchange attempts", "{exchange}"},
		{&m.TokenRefreshed, "oauth.token.refreshed", "Refresh grant attempts", "{refresh}"},
		{&m.TokenValidated, "oauth.token.validated", "Access token validations", "{validation}"},
		{&m.TokenRevoked, "oauth.token.revoked", "Tokens and authorizations revoked", "{revocation}"},
		{&m.ClientRegistered, "oauth.client.registered", "Clients registered", "{client}"},
		{&m.PKCEValidationFailed, "oauth.pkce.validation_failed", "PKCE verifier mismatches", "{failure}"},
		{&m.CodeReuseDetected, "oauth.code.reuse_detected", "Redemptions of consumed or unknown codes", "{attempt}"},
		{&m.ClientAuthFailed, "oauth.client.auth_failed", "Client authentication failures", "{failure}"},
	}
	for _, c := range serverCounters {
		counter, err := serverMeter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit))
		if err != nil {
			return nil, fmt.Errorf("failed to create %s counter: %w", c.name, err)
		}
		*c.dst = counter
	}

	var err error
	m.StorageOperationTotal, err = storageMeter.Int64Counter(
		"storage.operation.total",
		metric.WithDescription("Total storage operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.operation.total counter: %w", err)
	}

	m.StorageOperationDuration, err = storageMeter.Float64Histogram(
		"storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.operation.duration histogram: %w", err)
	}

	gauges := []gaugeSpec{
		{&m.StorageClientsCount, "storage.clients.count", "Registered clients"},
		{&m.StorageAuthCodesCount, "storage.auth_codes.count", "Outstanding authorization codes"},
		{&m.StorageAccessTokensCount, "storage.access_tokens.count", "Stored access tokens"},
		{&m.StorageRefreshTokensCount, "storage.refresh_tokens.count", "Stored refresh tokens"},
		{&m.StorageAuthorizationsCount, "storage.authorizations.count", "User authorization records"},
	}
	for _, g := range gauges {
		gauge, err := storageMeter.Int64ObservableGauge(g.name, metric.WithDescription(g.desc), metric.WithUnit("{item}"))
		if err != nil {
			return nil, fmt.Errorf("failed to create %s gauge: %w", g.name, err)
		}
		*g.dst = gauge
	}

	return m, nil
}

// RecordAuthorizationValidated records the outcome of validateAuthorizationRequest
func (m *Metrics) RecordAuthorizationValidated(ctx context.Context, clientID, result string) {
	m.AuthorizationValidated.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrClientID, clientID),
		attribute.String("result", result),
	))
}

// RecordCodeIssued records a newly minted authorization code
func (m *Metrics) RecordCodeIssued(ctx context.Context, clientID string) {
	m.CodeIssued.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrClientID, clientID)))
}

// RecordCodeExchange records an authorization_code grant attempt
func (m *Metrics) RecordCodeExchange(ctx context.Context, clientID, result string) {
	m.CodeExchanged.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrClientID, clientID),
		attribute.String("result", result),
	))
}

// RecordTokenRefresh records a refresh_token grant attempt
func (m *Metrics) RecordTokenRefresh(ctx context.Context, clientID, result string) {
	m.TokenRefreshed.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrClientID, clientID),
		attribute.String("result", result),
	))
}

// RecordTokenValidation records an access token validation; result is
// "valid", "missing" or "expired"
func (m *Metrics) RecordTokenValidation(ctx context.Context, result string) {
	m.TokenValidated.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordTokenRevocation records revoked credentials of the given kind
func (m *Metrics) RecordTokenRevocation(ctx context.Context, kind string, count int) {
	if count <= 0 {
		return
	}
	m.TokenRevoked.Add(ctx, int64(count), metric.WithAttributes(attribute.String(AttrTokenType, kind)))
}

// RecordClientRegistration records a client registration
func (m *Metrics) RecordClientRegistration(ctx context.Context, clientType string) {
	m.ClientRegistered.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrClientType, clientType)))
}

// RecordPKCEValidationFailed records a PKCE verifier mismatch
func (m *Metrics) RecordPKCEValidationFailed(ctx context.Context, clientID string) {
	m.PKCEValidationFailed.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrClientID, clientID)))
}

// RecordCodeReuseDetected records a redemption of a consumed or unknown code
func (m *Metrics) RecordCodeReuseDetected(ctx context.Context) {
	m.CodeReuseDetected.Add(ctx, 1)
}

// RecordClientAuthFailed records a failed client authentication
func (m *Metrics) RecordClientAuthFailed(ctx context.Context, clientID string) {
	m.ClientAuthFailed.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrClientID, clientID)))
}

// RecordStorageOperation records a storage operation and its duration
func (m *Metrics) RecordStorageOperation(ctx context.Context, operation, result string, durationMs float64) {
	m.StorageOperationTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrStorageOperation, operation),
		attribute.String(AttrStorageResult, result),
	))
	m.StorageOperationDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String(AttrStorageOperation, operation),
	))
}
