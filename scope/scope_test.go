package scope

import (
	"reflect"
	"testing"
)

func TestRegistry(t *testing.T) {
	all := All()
	if len(all) != len(descriptions) {
		t.Fatalf("All() returned %d scopes, want %d", len(all), len(descriptions))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1] >= all[i] {
			t.Errorf("All() not sorted at %d: %q >= %q", i, all[i-1], all[i])
		}
	}
	for _, s := range all {
		if s.Description() == "" {
			t.Errorf("scope %q has no description", s)
		}
	}
}

func TestLookup(t *testing.T) {
	tests := []struct {
		value  string
		wantOK bool
	}{
		{"profile:read", true},
		{"characters:write", true},
		{"campaigns:write", true},
		{"admin", false},
		{"Profile:Read", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			s, ok := Lookup(tt.value)
			if ok != tt.wantOK {
				t.Errorf("Lookup(%q) ok = %v, want %v", tt.value, ok, tt.wantOK)
			}
			if string(s) != tt.value {
				t.Errorf("Lookup(%q) = %q", tt.value, s)
			}
		})
	}
}

func TestDescriptions_ReturnsCopy(t *testing.T) {
	d := Descriptions()
	d[ProfileRead] = "changed"
	if ProfileRead.Description() == "changed" {
		t.Error("Descriptions() must not expose the registry table")
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   []string
		format string
	}{
		{"empty", "", nil, ""},
		{"whitespace only", "   ", nil, ""},
		{"single", "profile:read", []string{"profile:read"}, "profile:read"},
		{"multiple", "profile:read characters:read", []string{"profile:read", "characters:read"}, "profile:read characters:read"},
		{"extra whitespace", "  profile:read \t characters:read  ", []string{"profile:read", "characters:read"}, "profile:read characters:read"},
		{"duplicates dropped", "profile:read profile:read dice:roll", []string{"profile:read", "dice:roll"}, "profile:read dice:roll"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Parse(%q) = %v, want %v", tt.input, got, tt.want)
			}
			if f := Format(got); f != tt.format {
				t.Errorf("Format(Parse(%q)) = %q, want %q", tt.input, f, tt.format)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		requested   []string
		allowed     []string
		wantValid   []string
		wantInvalid []string
	}{
		{
			name:      "subset",
			requested: []string{"profile:read"},
			allowed:   []string{"profile:read", "characters:read"},
			wantValid: []string{"profile:read"},
		},
		{
			name:        "excess scope",
			requested:   []string{"campaigns:write"},
			allowed:     []string{"profile:read"},
			wantInvalid: []string{"campaigns:write"},
		},
		{
			name:        "mixed",
			requested:   []string{"profile:read", "campaigns:write", "dice:roll"},
			allowed:     []string{"profile:read", "dice:roll"},
			wantValid:   []string{"profile:read", "dice:roll"},
			wantInvalid: []string{"campaigns:write"},
		},
		{
			name:    "nothing requested",
			allowed: []string{"profile:read"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Validate(tt.requested, tt.allowed)
			if !reflect.DeepEqual(got.Valid, tt.wantValid) {
				t.Errorf("Valid = %v, want %v", got.Valid, tt.wantValid)
			}
			if !reflect.DeepEqual(got.Invalid, tt.wantInvalid) {
				t.Errorf("Invalid = %v, want %v", got.Invalid, tt.wantInvalid)
			}
			if got.OK() != (len(tt.wantInvalid) == 0) {
				t.Errorf("OK() = %v", got.OK())
			}
		})
	}
}

func TestUnknown(t *testing.T) {
	got := Unknown([]string{"profile:read", "admin", "dice:roll", "root"})
	want := []string{"admin", "root"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Unknown() = %v, want %v", got, want)
	}
}

func TestHasScopes(t *testing.T) {
	granted := []string{"profile:read", "characters:read"}

	if !HasScope(granted, "profile:read") {
		t.Error("HasScope(profile:read) = false")
	}
	if HasScope(granted, "characters:write") {
		t.Error("HasScope(characters:write) = true")
	}

	tests := []struct {
		name     string
		required []string
		wantAll  bool
		wantAny  bool
	}{
		{"all present", []string{"profile:read", "characters:read"}, true, true},
		{"one present", []string{"profile:read", "campaigns:write"}, false, true},
		{"none present", []string{"campaigns:write"}, false, false},
		{"empty", nil, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasAllScopes(granted, tt.required); got != tt.wantAll {
				t.Errorf("HasAllScopes() = %v, want %v", got, tt.wantAll)
			}
			if got := HasAnyScope(granted, tt.required); got != tt.wantAny {
				t.Errorf("HasAnyScope() = %v, want %v", got, tt.wantAny)
			}
		})
	}
}
