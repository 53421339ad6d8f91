// Package testutil provides testing utilities and helpers for the sparc-oauth module.
package testutil
