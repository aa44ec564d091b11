package domain

import "time"

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Download     DownloadConfig     `mapstructure:"download"`
	Tools        ToolsConfig        `mapstructure:"tools"`
	Queue        QueueConfig        `mapstructure:"queue"`
	Notification NotificationConfig `mapstructure:"notification"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DownloadConfig contains orchestration-related configuration
type DownloadConfig struct {
	DestinationDir     string        `mapstructure:"destination_dir"`
	LogsDir            string        `mapstructure:"logs_dir"`
	Container          string        `mapstructure:"container"`
	MinOutputSize      int64         `mapstructure:"min_output_size"`
	SettleStepDelay    time.Duration `mapstructure:"settle_step_delay"`
	TerminateGrace     time.Duration `mapstructure:"terminate_grace"`
	ParallelFetch      bool          `mapstructure:"parallel_fetch"`
	ArtifactExtensions []string      `mapstructure:"artifact_extensions"`
	AutoStartWorkers   bool          `mapstructure:"auto_start_workers"`
}

// ToolsConfig contains the external tool settings
type ToolsConfig struct {
	YTDLPBinary  string `mapstructure:"ytdlp_binary"`
	FFmpegBinary string `mapstructure:"ffmpeg_binary"`
	AudioFormat  string `mapstructure:"audio_format"`
	VideoFormat  string `mapstructure:"video_format"`
	AudioCodec   string `mapstructure:"audio_codec"`
	CookieFile   string `mapstructure:"cookie_file"`
	ProbeBackend string `mapstructure:"probe_backend"` // ytdlp, native
}

// QueueConfig contains queue-related configuration
type QueueConfig struct {
	DatabasePath    string        `mapstructure:"database_path"`
	CheckInterval   time.Duration `mapstructure:"check_interval"`
	AutoExitOnEmpty bool          `mapstructure:"auto_exit_on_empty"`
	EmptyWaitTime   time.Duration `mapstructure:"empty_wait_time"`
}

// NotificationConfig contains notification-related configuration
type NotificationConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Sound          bool   `mapstructure:"sound"`
	Method         string `mapstructure:"method"` // osascript, notify-send, telegram
	TelegramToken  string `mapstructure:"telegram_token"`
	TelegramChatID int64  `mapstructure:"telegram_chat_id"`
}

// LoggingConfig contains logging-related configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, or file path
}

// Probe backends
const (
	ProbeBackendYTDLP  = "ytdlp"
	ProbeBackendNative = "native"
)

// DefaultMinOutputSize is the size under which a container file is treated as an
// incomplete mux artifact.
const DefaultMinOutputSize int64 = 5 * 1024 * 1024

// DefaultArtifactExtensions lists the extensions yt-dlp produces for audio-only and
// video-only streams.
var DefaultArtifactExtensions = []string{".m4a", ".webm", ".mp4", ".opus", ".mkv", ".mp3", ".ogg"}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
		},
		Download: DownloadConfig{
			DestinationDir:     "$HOME/Downloads/ytmux",
			LogsDir:            "$HOME/.ytmux/logs",
			Container:          "mp4",
			MinOutputSize:      DefaultMinOutputSize,
			SettleStepDelay:    100 * time.Millisecond,
			TerminateGrace:     5 * time.Second,
			ParallelFetch:      false,
			ArtifactExtensions: append([]string(nil), DefaultArtifactExtensions...),
			AutoStartWorkers:   true,
		},
		Tools: ToolsConfig{
			YTDLPBinary:  "yt-dlp",
			FFmpegBinary: "ffmpeg",
			AudioFormat:  "bestaudio",
			VideoFormat:  "bestvideo",
			AudioCodec:   "aac",
			ProbeBackend: ProbeBackendYTDLP,
		},
		Queue: QueueConfig{
			DatabasePath:    "$HOME/.ytmux/queue.db",
			CheckInterval:   5 * time.Second,
			AutoExitOnEmpty: false,
			EmptyWaitTime:   5 * time.Minute,
		},
		Notification: NotificationConfig{
			Enabled: false,
			Sound:   true,
			Method:  "notify-send",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			OutputPath: "stdout",
		},
	}
}
