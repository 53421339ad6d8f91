package scope

import "strings"

// Parse splits a space-delimited scope string into its tokens. Repeated
// whitespace is ignored and duplicates are dropped, keeping first-seen order.
func Parse(s string) []string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil
	}
	out := make([]string, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// Format joins scopes into their space-delimited wire form.
func Format(scopes []string) string {
	return strings.Join(scopes, " ")
}

// Result is the outcome of Validate.
type Result struct {
	Valid   []string
	Invalid []string
}

// OK reports whether no requested scope was rejected.
func (r Result) OK() bool {
	return len(r.Invalid) == 0
}

// Validate splits requested into the scopes contained in allowed and those
// that are not.
func Validate(requested, allowed []string) Result {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		allowedSet[a] = struct{}{}
	}

	var res Result
	for _, r := range requested {
		if _, ok := allowedSet[r]; ok {
			res.Valid = append(res.Valid, r)
		} else {
			res.Invalid = append(res.Invalid, r)
		}
	}
	return res
}

// Unknown returns the scopes in requested that are not in the registry.
func Unknown(requested []string) []string {
	var out []string
	for _, r := range requested {
		if !Scope(r).Known() {
			out = append(out, r)
		}
	}
	return out
}

// HasScope reports whether granted contains required.
func HasScope(granted []string, required string) bool {
	for _, g := range granted {
		if g == required {
			return true
		}
	}
	return false
}

// HasAllScopes reports whether granted contains every required scope. An
// empty required list is trivially satisfied.
func HasAllScopes(granted, required []string) bool {
	for _, r := range required {
		if !HasScope(granted, r) {
			return false
		}
	}
	return true
}

// HasAnyScope reports whether granted contains at least one required scope.
func HasAnyScope(granted, required []string) bool {
	for _, r := range required {
		if HasScope(granted, r) {
			return true
		}
	}
	return false
}
