// Package instrumentation provides OpenTelemetry metrics and tracing for the
// authorization server core and its storage backends.
//
// Instrumentation is opt-in. When Config.Enabled is false, no-op providers
// are used. When enabled, the providers passed in Config are used, falling
// back to the otel global providers.
//
//	inst, err := instrumentation.New(instrumentation.Config{
//		ServiceName:    "sparc-oauth",
//		ServiceVersion: "1.0.0",
//		Enabled:        true,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer inst.Shutdown(context.Background())
//
//	srv.SetInstrumentation(inst)
//	store.SetInstrumentation(inst)
//
// # Metrics
//
// Flows:
//   - oauth.authorization.validated{client_id, result}
//   - oauth.code.issued{client_id}
//   - oauth.code.exchanged{client_id, result}
//   - oauth.token.refreshed{client_id, result}
//   - oauth.token.validated{result}
//   - oauth.token.revoked{oauth.token_type}
//   - oauth.client.registered{oauth.client_type}
//
// Security:
//   - oauth.pkce.validation_failed{client_id}
//   - oauth.code.reuse_detected
//   - oauth.client.auth_failed{client_id}
//
// Storage:
//   - storage.operation.total{operation, result}
//   - storage.operation.duration{operation} in milliseconds
//   - storage.{clients,auth_codes,access_tokens,refresh_tokens,authorizations}.count
//
// client_id labels are one series per registered client. Deployments with a
// very large number of clients should drop that label with a view.
//
// # Tracing
//
// Each server operation opens a span under the "server" tracer and each
// storage call a child span under "storage":
//
//	oauth.server.exchange_code
//	├── storage.get_client
//	├── storage.consume_auth_code
//	├── storage.save_access_token
//	├── storage.save_refresh_token
//	└── storage.save_user_authorization
package instrumentation
