package infrastructure

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/kkdai/youtube/v2"
	"go.uber.org/zap"
)

// NativeProber resolves titles through the YouTube player API without starting a
// process. It only understands YouTube URLs.
type NativeProber struct {
	client *youtube.Client
	logger *zap.Logger
}

// NewNativeProber creates a prober. A nil httpClient uses http.DefaultClient.
func NewNativeProber(httpClient *http.Client, logger *zap.Logger) *NativeProber {
	if logger == nil {
		logger = zap.NewNop()
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &NativeProber{
		client: &youtube.Client{HTTPClient: httpClient},
		logger: logger,
	}
}

// ProbeTitle fetches the video metadata and returns its title
func (p *NativeProber) ProbeTitle(ctx context.Context, url string) (string, error) {
	video, err := p.client.GetVideoContext(ctx, url)
	if err != nil {
		return "", fmt.Errorf("failed to fetch video metadata: %w", err)
	}

	title := strings.TrimSpace(video.Title)
	if title == "" {
		return "", fmt.Errorf("video %s has an empty title", video.ID)
	}

	p.logger.Debug("Probed title",
		zap.String("video_id", video.ID),
		zap.String("title", title),
		zap.Duration("duration", video.Duration))

	return title, nil
}
