package domain

import "context"

// MetadataProber resolves a human-readable title for a media URL
type MetadataProber interface {
	ProbeTitle(ctx context.Context, url string) (string, error)
}

// FetchRequest describes one single-stream download
type FetchRequest struct {
	JobID          string
	URL            string
	Stream         StreamKind
	Format         string // format selector passed to the fetch tool, e.g. bestaudio
	DestinationDir string
	OutputTemplate string // e.g. audio.%(ext)s, relative to DestinationDir
}

// StreamFetcher starts a single-stream download process
type StreamFetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (RunningProcess, error)
}

// MuxRequest describes one audio/video combine operation
type MuxRequest struct {
	JobID      string
	VideoPath  string
	AudioPath  string
	OutputPath string
	AudioCodec string
}

// Muxer starts a process that combines a video and an audio stream
type Muxer interface {
	Mux(ctx context.Context, req MuxRequest) (RunningProcess, error)
}

// RunningProcess is a started external process.
// Progress must be drained before Wait is called.
type RunningProcess interface {
	Terminator
	Progress() ProgressSource
	Wait() error
}

// ProgressSample is one reading from a progress source, in the tool's native 0-100 range
type ProgressSample struct {
	Percent float64
	Stream  StreamKind
}

// ProgressSource is a lazy sequence of progress samples read from a running process.
// Next blocks until a sample is available and returns false once the source is exhausted.
type ProgressSource interface {
	Next() (ProgressSample, bool)
	Err() error
}
