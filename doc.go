// Package oauth holds the wire-level types shared by the sparc-oauth
// authorization server: the typed authorization and token requests, the
// token response, and OAuthError with its closed set of RFC 6749 codes.
//
// The flows themselves live in package server. Storage backends live under
// storage/.
package oauth
