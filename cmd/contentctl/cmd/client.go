package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type agentView struct {
	AgentID   string          `json:"agentId"`
	Name      string          `json:"name"`
	Status    string          `json:"status"`
	StartTime *time.Time      `json:"startTime,omitempty"`
	EndTime   *time.Time      `json:"endTime,omitempty"`
	Error     string          `json:"error,omitempty"`
	Output    json.RawMessage `json:"output,omitempty"`
}

type jobView struct {
	ID        string          `json:"id"`
	Status    string          `json:"status"`
	Progress  int             `json:"progress"`
	Request   json.RawMessage `json:"request,omitempty"`
	Agents    []agentView     `json:"agents"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

func (j jobView) terminal() bool {
	return j.Status == "completed" || j.Status == "failed"
}

type jobsListResponse struct {
	Jobs []jobView `json:"jobs"`
}

type apiError struct {
	Message string `json:"message"`
}

// callAPI sends a request and returns the body when the status is want.
func callAPI(method, path string, body []byte, want int) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, GetAPIURL()+path, rd)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to API: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != want {
		return nil, responseError(resp.StatusCode, data)
	}
	return data, nil
}

func responseError(status int, body []byte) error {
	var e apiError
	if json.Unmarshal(body, &e) == nil && e.Message != "" {
		return fmt.Errorf("API error (status %d): %s", status, e.Message)
	}
	return fmt.Errorf("API error (status %d): %s", status, string(body))
}

func fetchJob(id string) (jobView, error) {
	var j jobView
	data, err := callAPI(http.MethodGet, "/jobs/"+id, nil, http.StatusOK)
	if err != nil {
		return j, err
	}
	if err := json.Unmarshal(data, &j); err != nil {
		return j, fmt.Errorf("failed to parse response: %w", err)
	}
	return j, nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
