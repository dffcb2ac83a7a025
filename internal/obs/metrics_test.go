package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                      "/",
		"/metrics":                              "/metrics",
		"/v1/assessments":                       "/v1/assessments",
		"/v1/assessments/abc":                   "/v1/assessments/:id",
		"/v1/assessments/abc/responses":         "/v1/assessments/:id/responses",
		"/v1/assessments/abc/non-conformities":  "/v1/assessments/:id/non-conformities",
		"/v1/non-conformities/n1/status":        "/v1/non-conformities/:id/status",
		"/v1/corrective-actions/a1/verify":      "/v1/corrective-actions/:id/verify",
		"/v1/assessments?status=DRAFT":          "/v1/assessments",
		"/v1/assessments/abc/scores?refresh=1":  "/v1/assessments/:id/scores",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
