package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var (
	// submit flags
	topic       string
	prompt      string
	contentType string
	audience    string
	tone        string
	keywords    []string
	requestFile string
	watchAfter  bool

	listLimit int
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a content job",
	Long: `Submit a content request. Either build it from flags or pass a JSON file
with --file (use - for stdin); unknown fields in the file are kept on the job.

Example:
  contentctl submit --topic "Spring running shoes" --audience "new runners" --keyword shoes --keyword sale
  contentctl submit --file request.json --watch`,
	RunE: runSubmit,
}

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show a job and its agents",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent jobs",
	RunE:  runList,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <job-id>",
	Short: "Delete a job record",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var resultCmd = &cobra.Command{
	Use:   "result <job-id>",
	Short: "Print the result of a completed job",
	Args:  cobra.ExactArgs(1),
	RunE:  runResult,
}

func init() {
	rootCmd.AddCommand(submitCmd, statusCmd, listCmd, deleteCmd, resultCmd)

	submitCmd.Flags().StringVar(&topic, "topic", "", "content topic")
	submitCmd.Flags().StringVar(&prompt, "prompt", "", "free-form instructions")
	submitCmd.Flags().StringVar(&contentType, "type", "", "content type, e.g. blog-post, email, social-post")
	submitCmd.Flags().StringVar(&audience, "audience", "", "target audience")
	submitCmd.Flags().StringVar(&tone, "tone", "", "tone of voice")
	submitCmd.Flags().StringSliceVar(&keywords, "keyword", nil, "keyword to include (repeatable)")
	submitCmd.Flags().StringVarP(&requestFile, "file", "f", "", "JSON request file, - for stdin")
	submitCmd.Flags().BoolVarP(&watchAfter, "watch", "w", false, "follow the job until it finishes")

	listCmd.Flags().IntVar(&listLimit, "limit", 20, "max jobs to list")
}

func buildRequest() ([]byte, error) {
	if requestFile != "" {
		var data []byte
		var err error
		if requestFile == "-" {
			data, err = io.ReadAll(os.Stdin)
		} else {
			data, err = os.ReadFile(requestFile)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read request: %w", err)
		}
		return data, nil
	}

	req := map[string]any{}
	for k, v := range map[string]string{
		"topic":       topic,
		"prompt":      prompt,
		"contentType": contentType,
		"audience":    audience,
		"tone":        tone,
	} {
		if v != "" {
			req[k] = v
		}
	}
	if len(keywords) > 0 {
		req["keywords"] = keywords
	}
	if req["topic"] == nil && req["prompt"] == nil {
		return nil, fmt.Errorf("--topic, --prompt or --file is required")
	}
	return json.Marshal(req)
}

func runSubmit(cmd *cobra.Command, args []string) error {
	body, err := buildRequest()
	if err != nil {
		return err
	}
	data, err := callAPI(http.MethodPost, "/jobs", body, http.StatusAccepted)
	if err != nil {
		return err
	}
	var created struct {
		JobID string `json:"jobId"`
	}
	if err := json.Unmarshal(data, &created); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if watchAfter {
		if !IsJSONOutput() {
			fmt.Printf("Job %s submitted, following...\n", created.JobID)
		}
		return watchJob(cmd.Context(), created.JobID)
	}
	if IsJSONOutput() {
		return printJSON(created)
	}
	fmt.Println(created.JobID)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	j, err := fetchJob(args[0])
	if err != nil {
		return err
	}
	if IsJSONOutput() {
		return printJSON(j)
	}
	renderJob(j)
	return nil
}

func renderJob(j jobView) {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Field", "Value")
	table.Append("ID", j.ID)
	table.Append("Status", j.Status)
	table.Append("Progress", fmt.Sprintf("%d%%", j.Progress))
	table.Append("Created", j.CreatedAt.Format(time.RFC3339))
	table.Append("Updated", j.UpdatedAt.Format(time.RFC3339))
	if j.Error != "" {
		table.Append("Error", j.Error)
	}
	table.Render()

	agents := tablewriter.NewWriter(os.Stdout)
	agents.Header("Agent", "Status", "Duration", "Error")
	for _, a := range j.Agents {
		agents.Append(a.AgentID, a.Status, agentDuration(a), a.Error)
	}
	agents.Render()
}

func agentDuration(a agentView) string {
	if a.StartTime == nil {
		return "-"
	}
	end := time.Now()
	if a.EndTime != nil {
		end = *a.EndTime
	}
	return end.Sub(*a.StartTime).Round(100 * time.Millisecond).String()
}

func runList(cmd *cobra.Command, args []string) error {
	data, err := callAPI(http.MethodGet, "/jobs?limit="+strconv.Itoa(listLimit), nil, http.StatusOK)
	if err != nil {
		return err
	}
	var result jobsListResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if IsJSONOutput() {
		return printJSON(result)
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "Status", "Progress", "Created", "Error")
	for _, j := range result.Jobs {
		table.Append(j.ID, j.Status, fmt.Sprintf("%d%%", j.Progress), j.CreatedAt.Format(time.RFC3339), j.Error)
	}
	table.Render()
	fmt.Printf("\n%d jobs\n", len(result.Jobs))
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	if _, err := callAPI(http.MethodDelete, "/jobs/"+args[0], nil, http.StatusNoContent); err != nil {
		return err
	}
	if !IsJSONOutput() {
		fmt.Printf("Job %s deleted\n", args[0])
	}
	return nil
}

func runResult(cmd *cobra.Command, args []string) error {
	data, err := callAPI(http.MethodGet, "/jobs/"+args[0]+"/result", nil, http.StatusOK)
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("failed to parse result: %w", err)
	}
	return printJSON(v)
}
