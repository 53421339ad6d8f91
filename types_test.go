package oauth

import (
	"encoding/json"
	"testing"
)

func TestTokenResponse_JSON(t *testing.T) {
	tests := []struct {
		name string
		resp TokenResponse
		want string
	}{
		{
			name: "with refresh token",
			resp: TokenResponse{
				AccessToken:  "sparc_at_abc",
				TokenType:    TokenTypeBearer,
				ExpiresIn:    3600,
				RefreshToken: "sparc_rt_def",
				Scope:        "profile:read",
			},
			want: `{"access_token":"sparc_at_abc","token_type":"Bearer","expires_in":3600,"refresh_token":"sparc_rt_def","scope":"profile:read"}`,
		},
		{
			name: "refresh response omits refresh token",
			resp: TokenResponse{
				AccessToken: "sparc_at_xyz",
				TokenType:   TokenTypeBearer,
				ExpiresIn:   3600,
				Scope:       "profile:read characters:read",
			},
			want: `{"access_token":"sparc_at_xyz","token_type":"Bearer","expires_in":3600,"scope":"profile:read characters:read"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.resp)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			if string(data) != tt.want {
				t.Errorf("Marshal() = %s, want %s", data, tt.want)
			}
		})
	}
}
