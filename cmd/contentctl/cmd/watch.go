package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch <job-id>",
	Short: "Follow a job over its event stream until it finishes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return watchJob(cmd.Context(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

// readEvents parses a text/event-stream body and calls fn once per event.
// Comment lines are skipped; multi-line data is joined with "\n".
func readEvents(r io.Reader, fn func(event, data string) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var event string
	var data []string
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if event == "" && len(data) == 0 {
				continue
			}
			if event == "" {
				event = "message"
			}
			if err := fn(event, strings.Join(data, "\n")); err != nil {
				return err
			}
			event, data = "", nil
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	return sc.Err()
}

// errStreamDone stops readEvents once the server reports a terminal state.
var errStreamDone = errors.New("stream done")

func watchJob(ctx context.Context, id string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, GetAPIURL()+"/jobs/"+id+"/events", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := streamClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to API: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return responseError(resp.StatusCode, body)
	}

	var last jobView
	var finalStatus string
	err = readEvents(resp.Body, func(event, data string) error {
		switch event {
		case "job":
			var j jobView
			if err := json.Unmarshal([]byte(data), &j); err != nil {
				return fmt.Errorf("failed to parse job event: %w", err)
			}
			last = j
			if IsJSONOutput() {
				fmt.Println(data)
			} else {
				fmt.Println(progressLine(j))
			}
		case "done":
			var d struct {
				Status string `json:"status"`
			}
			_ = json.Unmarshal([]byte(data), &d)
			finalStatus = d.Status
			return errStreamDone
		case "timeout":
			return fmt.Errorf("stream closed by server before job %s finished; run watch again to resume", id)
		case "error":
			return fmt.Errorf("server stream error: %s", data)
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStreamDone) {
		return err
	}
	if finalStatus == "" {
		return fmt.Errorf("stream ended before job %s finished", id)
	}
	if finalStatus == "failed" {
		if last.Error != "" {
			return fmt.Errorf("job %s failed: %s", id, last.Error)
		}
		return fmt.Errorf("job %s failed", id)
	}
	if !IsJSONOutput() {
		fmt.Printf("Job %s %s\n", id, finalStatus)
	}
	return nil
}

func progressLine(j jobView) string {
	current := "-"
	for _, a := range j.Agents {
		if a.Status == "running" {
			current = a.AgentID
			break
		}
	}
	return fmt.Sprintf("[%3d%%] %-9s agent=%s", j.Progress, j.Status, current)
}
