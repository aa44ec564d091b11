package app

import (
	"sync"
	"time"

	"github.com/yourusername/ytmux/internal/domain"
)

const subscriberBuffer = 32

// ProgressUpdate is a download's state as broadcast to live listeners
type ProgressUpdate struct {
	DownloadID string                `json:"download_id"`
	Status     domain.DownloadStatus `json:"status"`
	Stage      domain.Stage          `json:"stage"`
	Stream     domain.StreamKind     `json:"stream,omitempty"`
	Percent    float64               `json:"percent"`
	FilePath   string                `json:"file_path,omitempty"`
	Error      string                `json:"error,omitempty"`
	Time       time.Time             `json:"time"`
}

// Final reports whether no further updates will follow for this download
func (u ProgressUpdate) Final() bool {
	return u.Status == domain.StatusCompleted || u.Status == domain.StatusFailed || u.Status == domain.StatusCancelled
}

type subscriber struct {
	downloadID string // empty: every download
	ch         chan ProgressUpdate
}

// ProgressHub fans progress updates out to subscribers. Publishing never blocks:
// a subscriber that falls behind loses its oldest pending update.
type ProgressHub struct {
	mu   sync.RWMutex
	subs map[*subscriber]struct{}
	last map[string]ProgressUpdate
}

// NewProgressHub creates an empty hub
func NewProgressHub() *ProgressHub {
	return &ProgressHub{
		subs: make(map[*subscriber]struct{}),
		last: make(map[string]ProgressUpdate),
	}
}

// Subscribe returns a channel of updates for downloadID, or for every download
// when downloadID is empty. The latest known update for downloadID is delivered
// first. The returned function unsubscribes and closes the channel.
func (h *ProgressHub) Subscribe(downloadID string) (<-chan ProgressUpdate, func()) {
	sub := &subscriber{downloadID: downloadID, ch: make(chan ProgressUpdate, subscriberBuffer)}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	if last, ok := h.last[downloadID]; ok && downloadID != "" {
		sub.ch <- last
	}
	h.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, sub)
			close(sub.ch)
			h.mu.Unlock()
		})
	}
}

// Publish delivers u to every matching subscriber
func (h *ProgressHub) Publish(u ProgressUpdate) {
	if u.Time.IsZero() {
		u.Time = time.Now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if u.Final() {
		delete(h.last, u.DownloadID)
	} else {
		h.last[u.DownloadID] = u
	}

	for sub := range h.subs {
		if sub.downloadID != "" && sub.downloadID != u.DownloadID {
			continue
		}
		select {
		case sub.ch <- u:
		default:
			// drop the oldest pending update to make room
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- u:
			default:
			}
		}
	}
}

// Latest returns the most recent non-final update for a download
func (h *ProgressHub) Latest(downloadID string) (ProgressUpdate, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	u, ok := h.last[downloadID]
	return u, ok
}
