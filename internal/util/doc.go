// Package util provides small helpers shared across the module: safe
// truncation of credentials for log prefixes and sortable record ids.
package util
