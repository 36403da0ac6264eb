package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/phrazzld/taskforge/internal/api"
	"github.com/phrazzld/taskforge/internal/task"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// statusOptions holds the flags of the status command.
type statusOptions struct {
	addr    string
	output  string
	timeout time.Duration
	noColor bool
}

func newStatusCmd() *cobra.Command {
	opts := &statusOptions{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the status of a running server",
		Long:  `Fetch /api/status from a running server and print workers, queues and task counts.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch opts.output {
			case "table", "json", "yaml":
			default:
				return fmt.Errorf("invalid output format %q: supported formats are table, json, yaml", opts.output)
			}

			ctx, cancel := context.WithTimeout(contextOrBackground(cmd.Context()), opts.timeout)
			defer cancel()

			status, err := fetchStatus(ctx, http.DefaultClient, opts.addr)
			if err != nil {
				return err
			}
			return renderStatus(cmd.OutOrStdout(), status, opts)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "http://localhost:8080", "base URL of the server")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "table", "output format: table|json|yaml")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 5*time.Second, "request timeout")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "disable colored worker status")
	return cmd
}

// fetchStatus calls GET {addr}/api/status.
func fetchStatus(ctx context.Context, client *http.Client, addr string) (api.StatusResponse, error) {
	var status api.StatusResponse

	url := strings.TrimRight(addr, "/") + "/api/status"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return status, fmt.Errorf("invalid server address %q: %w", addr, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return status, fmt.Errorf("failed to reach server: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&apiErr)
		if apiErr.Error == "" {
			apiErr.Error = http.StatusText(resp.StatusCode)
		}
		return status, fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
	}

	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return status, fmt.Errorf("failed to decode status response: %w", err)
	}
	return status, nil
}

func renderStatus(w io.Writer, status api.StatusResponse, opts *statusOptions) error {
	switch opts.output {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	case "yaml":
		return renderYAML(w, status)
	default:
		renderTables(w, status, opts.noColor)
		return nil
	}
}

// renderYAML goes through JSON first so the keys match the API.
func renderYAML(w io.Writer, status api.StatusResponse) error {
	raw, err := json.Marshal(status)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}

func renderTables(w io.Writer, status api.StatusResponse, noColor bool) {
	fmt.Fprintf(w, "Phase: %s\n\n", status.Phase)

	summary := newTable(w)
	summary.SetHeader([]string{"Metric", "Value"})
	summary.AppendBulk([][]string{
		{"workers (idle/busy/unreachable)", fmt.Sprintf("%d (%d/%d/%d)",
			status.Workers.Total, status.Workers.Idle, status.Workers.Busy, status.Workers.Unreachable)},
		{"queued (high/normal/low/scheduled)", fmt.Sprintf("%d (%d/%d/%d/%d)",
			status.Queues.Total(), status.Queues.High, status.Queues.Normal, status.Queues.Low, status.Queues.Scheduled)},
		{"tasks running", strconv.Itoa(status.Tasks.Running)},
		{"tasks completed", strconv.Itoa(status.Tasks.Completed)},
		{"tasks failed", strconv.Itoa(status.Tasks.Failed)},
		{"tasks cancelled", strconv.Itoa(status.Tasks.Cancelled)},
		{"tasks total", strconv.Itoa(status.Tasks.Total)},
	})
	if status.Process != nil {
		summary.Append([]string{"goroutines", strconv.Itoa(status.Process.Goroutines)})
		summary.Append([]string{"uptime", (time.Duration(status.Process.UptimeSeconds * float64(time.Second))).Round(time.Second).String()})
	}
	summary.Render()

	if len(status.Pool) == 0 {
		return
	}
	fmt.Fprintln(w)

	colors := statusColors(noColor)
	workers := append([]task.WorkerInfo(nil), status.Pool...)
	sort.SliceStable(workers, func(i, j int) bool {
		if workers[i].Category != workers[j].Category {
			return workers[i].Category < workers[j].Category
		}
		return workers[i].ID < workers[j].ID
	})

	table := newTable(w)
	table.SetHeader([]string{"Worker", "Category", "Status", "Current Task", "Completed", "Last Heartbeat"})
	for _, wk := range workers {
		st := string(wk.Status)
		if paint, ok := colors[wk.Status]; ok {
			st = paint(st)
		}
		heartbeat := "-"
		if !wk.LastHeartbeat.IsZero() {
			heartbeat = wk.LastHeartbeat.Format(time.RFC3339)
		}
		current := wk.CurrentTaskID
		if current == "" {
			current = "-"
		}
		table.Append([]string{wk.ID, wk.Category, st, current, strconv.Itoa(wk.CompletedCount), heartbeat})
	}
	table.Render()
}

func newTable(w io.Writer) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)
	return table
}

func statusColors(noColor bool) map[task.WorkerStatus]func(a ...interface{}) string {
	palette := map[task.WorkerStatus]*color.Color{
		task.WorkerIdle:        color.New(color.FgGreen),
		task.WorkerBusy:        color.New(color.FgYellow),
		task.WorkerUnreachable: color.New(color.FgRed),
	}
	out := make(map[task.WorkerStatus]func(a ...interface{}) string, len(palette))
	for st, c := range palette {
		if noColor {
			c.DisableColor()
		}
		out[st] = c.SprintFunc()
	}
	return out
}
