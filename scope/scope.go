// Package scope defines the closed set of permissions an application can be
// granted, and the helpers used to parse, validate and check scope sets.
//
// Scope strings follow RFC 6749 §3.3: a space-delimited list of
// case-sensitive tokens.
package scope

import "sort"

// Scope is a single grantable permission.
type Scope string

// Grantable scopes.
const (
	ProfileRead     Scope = "profile:read"
	ProfileWrite    Scope = "profile:write"
	CharactersRead  Scope = "characters:read"
	CharactersWrite Scope = "characters:write"
	CampaignsRead   Scope = "campaigns:read"
	CampaignsWrite  Scope = "campaigns:write"
	SessionsRead    Scope = "sessions:read"
	SessionsWrite   Scope = "sessions:write"
	DiceRoll        Scope = "dice:roll"
	DiceHistoryRead Scope = "dice:history:read"
)

// descriptions are shown to the resource owner on the consent screen.
var descriptions = map[Scope]string{
	ProfileRead:     "Read your profile and display name",
	ProfileWrite:    "Update your profile",
	CharactersRead:  "View your characters",
	CharactersWrite: "Create, edit and delete your characters",
	CampaignsRead:   "View campaigns you belong to",
	CampaignsWrite:  "Create and manage your campaigns",
	SessionsRead:    "View game sessions and turn order",
	SessionsWrite:   "Join, start and manage game sessions",
	DiceRoll:        "Roll dice on your behalf",
	DiceHistoryRead: "View your dice roll history",
}

// String returns the wire form of s.
func (s Scope) String() string {
	return string(s)
}

// Known reports whether s belongs to the registry.
func (s Scope) Known() bool {
	_, ok := descriptions[s]
	return ok
}

// Description returns the human-readable description of s, or "" for an
// unknown scope.
func (s Scope) Description() string {
	return descriptions[s]
}

// Lookup resolves a wire value to a registered scope.
func Lookup(value string) (Scope, bool) {
	s := Scope(value)
	return s, s.Known()
}

// All returns every registered scope in lexical order.
func All() []Scope {
	out := make([]Scope, 0, len(descriptions))
	for s := range descriptions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Descriptions returns a copy of the scope description table.
func Descriptions() map[Scope]string {
	out := make(map[Scope]string, len(descriptions))
	for s, d := range descriptions {
		out[s] = d
	}
	return out
}
