package httpapi

import "testing"

func TestExtractBearerToken(t *testing.T) {
	cases := []struct {
		name   string
		header string
		want   string
		ok     bool
	}{
		{"plain", "Bearer abc.def.ghi", "abc.def.ghi", true},
		{"case insensitive scheme", "bearer token-1", "token-1", true},
		{"padded", "  Bearer   token-2  ", "token-2", true},
		{"empty", "", "", false},
		{"wrong scheme", "Basic dXNlcjpwYXNz", "", false},
		{"scheme only", "Bearer ", "", false},
	}
	for _, tc := range cases {
		got, err := extractBearerToken(tc.header)
		if tc.ok && (err != nil || got != tc.want) {
			t.Errorf("%s: got %q err=%v, want %q", tc.name, got, err, tc.want)
		}
		if !tc.ok && err == nil {
			t.Errorf("%s: expected error, got %q", tc.name, got)
		}
	}
}

func TestPublicPaths(t *testing.T) {
	for _, path := range []string{"/healthz", "/readyz", "/metrics", "/v1/auth/login", "/v1/info", "/"} {
		if !isPublicPath(path) {
			t.Errorf("expected %s to be public", path)
		}
	}
	for _, path := range []string{"/v1/assessments", "/v1/assessments/abc", "/v1/events"} {
		if isPublicPath(path) {
			t.Errorf("expected %s to require auth", path)
		}
	}
}
