package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/yourusername/ytmux/internal/app"
	"github.com/yourusername/ytmux/internal/domain"
)

var (
	serverURL   string
	noAutoStart bool
	rootCmd     = &cobra.Command{
		Use:   "ytmux",
		Short: "ytmux CLI - audio/video downloader built on yt-dlp and ffmpeg",
		Long: `A command-line interface for queueing downloads on a ytmux server, or
fetching a single URL in-process. Audio and video streams are fetched separately
with yt-dlp and muxed into one container with ffmpeg.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.PersistentFlags().BoolVar(&noAutoStart, "no-auto-start", false, "Don't auto-start server if not running")

	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(fetchCmd)
}

// ensureServer checks if server is running and starts it if needed (unless --no-auto-start)
func ensureServer() {
	if noAutoStart {
		return
	}
	if err := ensureServerRunning(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
}

// apiError is the error body every endpoint returns on failure
type apiError struct {
	Error string `json:"error"`
}

// call sends a request to the server and decodes a successful response into out
func call(method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, serverURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr apiError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s (HTTP %d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(data))
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var addCmd = &cobra.Command{
	Use:   "add [url]",
	Short: "Add a download to the queue",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		dest, _ := cmd.Flags().GetString("dest")
		wait, _ := cmd.Flags().GetBool("wait")

		payload := map[string]string{"url": args[0]}
		if dest != "" {
			// the server resolves relative paths against its own working directory
			abs, err := filepath.Abs(dest)
			exitOnError(err)
			payload["destination_dir"] = abs
		}

		var download domain.Download
		exitOnError(call(http.MethodPost, "/api/v1/downloads", payload, &download))

		fmt.Printf("Download added successfully!\n")
		fmt.Printf("ID: %s\n", download.ID)
		fmt.Printf("Status: %s\n", download.Status)
		fmt.Printf("Destination: %s\n", download.DestinationDir)

		if !wait {
			return
		}
		final, err := watchDownload(cmd.Context(), download.ID)
		exitOnError(err)
		if final.Status != domain.StatusCompleted {
			os.Exit(1)
		}
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all downloads",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		status, _ := cmd.Flags().GetString("status")
		dest, _ := cmd.Flags().GetString("dest")

		query := url.Values{}
		if status != "" {
			query.Set("status", status)
		}
		if dest != "" {
			abs, err := filepath.Abs(dest)
			exitOnError(err)
			query.Set("destination_dir", abs)
		}
		path := "/api/v1/downloads"
		if len(query) > 0 {
			path += "?" + query.Encode()
		}

		var downloads []domain.Download
		exitOnError(call(http.MethodGet, path, nil, &downloads))

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tURL\tSTATUS\tSTAGE\tPROGRESS\tCREATED")
		for _, d := range downloads {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.0f%%\t%s\n",
				truncate(d.ID, 8),
				truncate(d.URL, 40),
				d.Status,
				d.Stage,
				d.Progress,
				d.CreatedAt.Local().Format(time.DateTime))
		}
		w.Flush()
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show download statistics",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		var stats domain.DownloadStats
		exitOnError(call(http.MethodGet, "/api/v1/downloads/stats", nil, &stats))

		fmt.Println("Download Statistics:")
		fmt.Printf("  Total:      %d\n", stats.Total)
		fmt.Printf("  Queued:     %d\n", stats.Queued)
		fmt.Printf("  Processing: %d\n", stats.Processing)
		fmt.Printf("  Completed:  %d\n", stats.Completed)
		fmt.Printf("  Failed:     %d\n", stats.Failed)
		fmt.Printf("  Cancelled:  %d\n", stats.Cancelled)
	},
}

var getCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Get download details",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		var d domain.Download
		exitOnError(call(http.MethodGet, "/api/v1/downloads/"+args[0], nil, &d))

		fmt.Printf("Download Details:\n")
		fmt.Printf("  ID:          %s\n", d.ID)
		fmt.Printf("  URL:         %s\n", d.URL)
		fmt.Printf("  Destination: %s\n", d.DestinationDir)
		fmt.Printf("  Status:      %s\n", d.Status)
		if d.Stage != "" {
			fmt.Printf("  Stage:       %s\n", d.Stage)
		}
		fmt.Printf("  Progress:    %.1f%%\n", d.Progress)
		fmt.Printf("  Created:     %s\n", d.CreatedAt.Local().Format(time.DateTime))
		if d.CompletedAt != nil {
			fmt.Printf("  Finished:    %s\n", d.CompletedAt.Local().Format(time.DateTime))
		}
		if d.FilePath != "" {
			fmt.Printf("  File:        %s\n", d.FilePath)
		}
		if d.ErrorMessage != "" {
			fmt.Printf("  Error:       [%s] %s\n", d.ErrorKind, d.ErrorMessage)
		}
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel [id]",
	Short: "Cancel a queued or running download",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		exitOnError(call(http.MethodPost, "/api/v1/downloads/"+args[0]+"/cancel", nil, nil))
		fmt.Println("Cancellation requested")
	},
}

var retryCmd = &cobra.Command{
	Use:   "retry [id]",
	Short: "Retry a failed or cancelled download",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		exitOnError(call(http.MethodPost, "/api/v1/downloads/"+args[0]+"/retry", nil, nil))
		fmt.Println("Download queued for retry")
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Remove a download record",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		exitOnError(call(http.MethodDelete, "/api/v1/downloads/"+args[0], nil, nil))
		fmt.Println("Download deleted")
	},
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Show running jobs",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		var jobs []app.JobSnapshot
		exitOnError(call(http.MethodGet, "/api/v1/jobs", nil, &jobs))

		if len(jobs) == 0 {
			fmt.Println("No running jobs")
			return
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tURL\tSTAGE\tPROGRESS\tACTIVE\tOUTPUT")
		for _, j := range jobs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%.0f%%\t%v\t%s\n",
				truncate(j.ID, 8),
				truncate(j.URL, 40),
				j.Stage,
				j.Progress,
				j.Active,
				j.OutputPath)
		}
		w.Flush()
	},
}

// logsResponse is the body of the log listing and search endpoints
type logsResponse struct {
	Count   int `json:"count"`
	Entries []struct {
		Timestamp string                 `json:"timestamp"`
		Level     string                 `json:"level"`
		Message   string                 `json:"message"`
		Fields    map[string]interface{} `json:"fields"`
	} `json:"entries"`
}

var logsCmd = &cobra.Command{
	Use:   "logs [category]",
	Short: "View server logs (queue, error, process)",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		category := "queue"
		if len(args) == 1 {
			category = args[0]
		}
		follow, _ := cmd.Flags().GetBool("follow")
		limit, _ := cmd.Flags().GetInt("limit")
		search, _ := cmd.Flags().GetString("search")
		jsonOutput, _ := cmd.Flags().GetBool("json")

		if follow {
			exitOnError(followLogs(cmd.Context(), category, jsonOutput))
			return
		}

		query := url.Values{}
		query.Set("limit", strconv.Itoa(limit))
		path := "/api/v1/logs/" + url.PathEscape(category)
		if search != "" {
			query.Set("q", search)
			path += "/search"
		}

		var result logsResponse
		exitOnError(call(http.MethodGet, path+"?"+query.Encode(), nil, &result))

		for _, e := range result.Entries {
			if jsonOutput {
				line, _ := json.Marshal(e)
				fmt.Println(string(line))
				continue
			}
			fmt.Println(formatLogLine(e.Timestamp, e.Level, e.Message, e.Fields))
		}
	},
}

func init() {
	addCmd.Flags().StringP("dest", "d", "", "Destination directory (defaults to the server's)")
	addCmd.Flags().BoolP("wait", "w", false, "Follow progress until the download finishes")
	listCmd.Flags().StringP("status", "s", "", "Filter by status")
	listCmd.Flags().StringP("dest", "d", "", "Filter by destination directory")
	logsCmd.Flags().BoolP("follow", "f", false, "Stream new entries")
	logsCmd.Flags().IntP("limit", "n", 100, "Number of entries to show")
	logsCmd.Flags().StringP("search", "q", "", "Only show entries containing this text")
	logsCmd.Flags().BoolP("json", "j", false, "Output in JSON format")
}

func formatLogLine(ts, level, msg string, fields map[string]interface{}) string {
	line := fmt.Sprintf("%s %-5s %s", ts, level, msg)
	if len(fields) > 0 {
		data, _ := json.Marshal(fields)
		line += " " + string(data)
	}
	return line
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
