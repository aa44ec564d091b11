package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"github.com/yourusername/ytmux/internal/domain"
)

// EnvPrefix is the prefix of environment variable overrides, e.g. YTMUX_SERVER_PORT
const EnvPrefix = "YTMUX"

// LoadConfig loads configuration from file and environment
func LoadConfig(configPath string) (*domain.Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// every key needs a default for AutomaticEnv to reach it through Unmarshal
	for key, value := range configValues(domain.DefaultConfig()) {
		v.SetDefault(key, value)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.ytmux")
		v.AddConfigPath("/etc/ytmux")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config = expandPaths(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// configValues flattens a config into viper keys
func configValues(c *domain.Config) map[string]interface{} {
	return map[string]interface{}{
		"server.host": c.Server.Host,
		"server.port": c.Server.Port,

		"download.destination_dir":     c.Download.DestinationDir,
		"download.logs_dir":            c.Download.LogsDir,
		"download.container":           c.Download.Container,
		"download.min_output_size":     c.Download.MinOutputSize,
		"download.settle_step_delay":   c.Download.SettleStepDelay.String(),
		"download.terminate_grace":     c.Download.TerminateGrace.String(),
		"download.parallel_fetch":      c.Download.ParallelFetch,
		"download.artifact_extensions": c.Download.ArtifactExtensions,
		"download.auto_start_workers":  c.Download.AutoStartWorkers,

		"tools.ytdlp_binary":  c.Tools.YTDLPBinary,
		"tools.ffmpeg_binary": c.Tools.FFmpegBinary,
		"tools.audio_format":  c.Tools.AudioFormat,
		"tools.video_format":  c.Tools.VideoFormat,
		"tools.audio_codec":   c.Tools.AudioCodec,
		"tools.cookie_file":   c.Tools.CookieFile,
		"tools.probe_backend": c.Tools.ProbeBackend,

		"queue.database_path":      c.Queue.DatabasePath,
		"queue.check_interval":     c.Queue.CheckInterval.String(),
		"queue.auto_exit_on_empty": c.Queue.AutoExitOnEmpty,
		"queue.empty_wait_time":    c.Queue.EmptyWaitTime.String(),

		"notification.enabled":          c.Notification.Enabled,
		"notification.sound":            c.Notification.Sound,
		"notification.method":           c.Notification.Method,
		"notification.telegram_token":   c.Notification.TelegramToken,
		"notification.telegram_chat_id": c.Notification.TelegramChatID,

		"logging.level":       c.Logging.Level,
		"logging.format":      c.Logging.Format,
		"logging.output_path": c.Logging.OutputPath,
	}
}

// expandPaths expands environment variables in path configurations
func expandPaths(config *domain.Config) *domain.Config {
	config.Download.DestinationDir = expandPath(config.Download.DestinationDir)
	config.Download.LogsDir = expandPath(config.Download.LogsDir)
	config.Queue.DatabasePath = expandPath(config.Queue.DatabasePath)
	config.Tools.CookieFile = expandPath(config.Tools.CookieFile)

	if config.Logging.OutputPath != "stdout" && config.Logging.OutputPath != "stderr" {
		config.Logging.OutputPath = expandPath(config.Logging.OutputPath)
	}

	return config
}

// expandPath expands environment variables and ~ in paths
func expandPath(path string) string {
	// $HOME first so it resolves even when the variable is unset
	if strings.Contains(path, "$HOME") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = strings.ReplaceAll(path, "$HOME", home)
		}
	}

	path = os.ExpandEnv(path)

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	}

	return path
}

// validateConfig validates the configuration
func validateConfig(config *domain.Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Download.DestinationDir == "" {
		return fmt.Errorf("download destination directory not configured")
	}

	if config.Download.Container == "" {
		return fmt.Errorf("output container not configured")
	}

	if config.Download.MinOutputSize < 0 {
		return fmt.Errorf("min output size cannot be negative")
	}

	if config.Download.SettleStepDelay < 0 || config.Download.TerminateGrace < 0 {
		return fmt.Errorf("durations cannot be negative")
	}

	if len(config.Download.ArtifactExtensions) == 0 {
		return fmt.Errorf("at least one artifact extension is required")
	}

	if config.Tools.YTDLPBinary == "" || config.Tools.FFmpegBinary == "" {
		return fmt.Errorf("yt-dlp and ffmpeg binaries must be configured")
	}

	switch config.Tools.ProbeBackend {
	case domain.ProbeBackendYTDLP, domain.ProbeBackendNative:
	default:
		return fmt.Errorf("unknown probe backend: %s", config.Tools.ProbeBackend)
	}

	if config.Queue.DatabasePath == "" {
		return fmt.Errorf("queue database path not configured")
	}

	if config.Queue.CheckInterval <= 0 {
		return fmt.Errorf("queue check interval must be positive")
	}

	if config.Notification.Enabled && config.Notification.Method == "telegram" {
		if config.Notification.TelegramToken == "" || config.Notification.TelegramChatID == 0 {
			return fmt.Errorf("telegram notifications need a token and chat id")
		}
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}

	switch config.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("unknown log format: %s", config.Logging.Format)
	}

	return nil
}

// SaveConfig saves configuration to file
func SaveConfig(config *domain.Config, path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	for key, value := range configValues(config) {
		v.Set(key, value)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
