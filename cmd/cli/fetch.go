package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yourusername/ytmux/internal/app"
	"github.com/yourusername/ytmux/internal/domain"
	"github.com/yourusername/ytmux/pkg/logger"
)

// exitCancelled follows the shell convention for SIGINT
const exitCancelled = 130

var fetchCmd = &cobra.Command{
	Use:   "fetch [url] [dest]",
	Short: "Download one URL in-process without a server",
	Long: `Fetch runs a single download in this process: probe the title, fetch the
audio and video streams with yt-dlp and mux them with ffmpeg. Ctrl-C cancels the
download and removes its partial files.`,
	Args: cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		configPath, _ := cmd.Flags().GetString("config")
		parallel, _ := cmd.Flags().GetBool("parallel")
		verbose, _ := cmd.Flags().GetBool("verbose")

		config, err := app.LoadConfig(configPath)
		exitOnError(err)
		if cmd.Flags().Changed("parallel") {
			config.Download.ParallelFetch = parallel
		}

		dest := config.Download.DestinationDir
		if len(args) == 2 {
			dest = args[1]
		} else {
			exitOnError(os.MkdirAll(dest, 0755))
		}
		dest, err = filepath.Abs(dest)
		exitOnError(err)
		exitOnError(os.MkdirAll(config.Download.LogsDir, 0755))

		level := "warn"
		if verbose {
			level = "debug"
		}
		log, err := logger.New(logger.Config{Name: "fetch", Level: level, Format: "console", OutputPath: "stderr"})
		exitOnError(err)
		defer log.Sync()

		exitOnError(app.CheckTools(&config.Tools))

		orchestrator := app.NewOrchestratorFromConfig(config, log)
		bar := newProgressBar()

		output, err := orchestrator.Run(cmd.Context(), domain.DownloadRequest{
			URL:            args[0],
			DestinationDir: dest,
		}, func(e domain.ProgressEvent) {
			bar.render(e.Stage, e.Stream, e.Percent)
		})
		bar.finish()

		if err != nil {
			log.Debug("Fetch failed", zap.String("url", args[0]), zap.Error(err))
			if domain.IsCancelled(err) {
				fmt.Fprintln(os.Stderr, "Cancelled")
				os.Exit(exitCancelled)
			}
			fmt.Fprintf(os.Stderr, "Error [%s]: %v\n", domain.KindOf(err), err)
			os.Exit(1)
		}

		size := "unknown size"
		if info, err := os.Stat(output); err == nil {
			size = humanize.Bytes(uint64(info.Size()))
		}
		fmt.Printf("Saved: %s (%s)\n", output, size)
	},
}

func init() {
	fetchCmd.Flags().StringP("config", "c", "", "Path to config file")
	fetchCmd.Flags().Bool("parallel", false, "Fetch audio and video concurrently")
	fetchCmd.Flags().BoolP("verbose", "v", false, "Log orchestration details to stderr")
}
