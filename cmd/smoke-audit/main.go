// Command smoke-audit drives one full assessment cycle against a running API
// instance: login, create, respond, score, generate NCRs. Intended for
// post-deploy checks.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"
)

func main() {
	baseURL := os.Getenv("CONFORMA_API_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	email := os.Getenv("CONFORMA_SMOKE_EMAIL")
	password := os.Getenv("CONFORMA_SMOKE_PASSWORD")
	if email == "" || password == "" {
		log.Fatal("set CONFORMA_SMOKE_EMAIL and CONFORMA_SMOKE_PASSWORD")
	}

	c := &client{baseURL: baseURL, http: &http.Client{Timeout: 10 * time.Second}}

	var login struct {
		Token string `json:"token"`
	}
	c.call(http.MethodPost, "/v1/auth/login", map[string]any{
		"email":    email,
		"password": password,
	}, &login)
	c.token = login.Token

	var assessment struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	c.call(http.MethodPost, "/v1/assessments", map[string]any{
		"title":      fmt.Sprintf("smoke %d", time.Now().Unix()),
		"audit_type": "internal",
	}, &assessment)
	if assessment.Status != "DRAFT" {
		log.Fatalf("new assessment status %q", assessment.Status)
	}

	var questions struct {
		Items []struct {
			ID string `json:"id"`
		} `json:"items"`
	}
	c.call(http.MethodGet, "/v1/standard/questions", nil, &questions)
	if len(questions.Items) == 0 {
		log.Fatal("no active questions seeded")
	}

	// Score the first question as a failure so generation has work to do.
	c.call(http.MethodPut, "/v1/assessments/"+assessment.ID+"/responses", map[string]any{
		"question_id": questions.Items[0].ID,
		"score":       1,
	}, nil)

	var scored struct {
		OverallScore *float64 `json:"overall_score"`
	}
	c.call(http.MethodGet, "/v1/assessments/"+assessment.ID, nil, &scored)
	if scored.OverallScore == nil {
		log.Fatal("overall score not computed after response write")
	}

	var generated struct {
		Items []struct {
			ID       string `json:"id"`
			Severity string `json:"severity"`
		} `json:"items"`
	}
	c.call(http.MethodPost, "/v1/assessments/"+assessment.ID+"/non-conformities/generate", nil, &generated)
	if len(generated.Items) != 1 || generated.Items[0].Severity != "MAJOR" {
		log.Fatalf("unexpected generation result: %+v", generated.Items)
	}

	// Re-running must be a no-op.
	var second struct {
		Items []json.RawMessage `json:"items"`
	}
	c.call(http.MethodPost, "/v1/assessments/"+assessment.ID+"/non-conformities/generate", nil, &second)
	if len(second.Items) != 0 {
		log.Fatalf("generation is not idempotent: %d new NCRs", len(second.Items))
	}

	// Assessments with recorded responses cannot be deleted; archive instead.
	c.call(http.MethodPost, "/v1/assessments/"+assessment.ID+"/status", map[string]any{
		"status": "ARCHIVED",
	}, nil)

	fmt.Printf("✅ audit smoke test passed: assessment=%s score=%.1f\n", assessment.ID, *scored.OverallScore)
}

type client struct {
	baseURL string
	token   string
	http    *http.Client
}

func (c *client) call(method, path string, body any, out any) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			log.Fatalf("%s %s: marshal: %v", method, path, err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		log.Fatalf("%s %s: %v", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		log.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var errBody map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		log.Fatalf("%s %s: status %d: %v", method, path, resp.StatusCode, errBody["error"])
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			log.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
}
