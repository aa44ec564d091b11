package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/yourusername/ytmux/internal/domain"
)

// fakeProber returns a fixed title, or blocks until ctx is done when block is set
type fakeProber struct {
	title string
	err   error
	block bool
	calls int32
}

func (p *fakeProber) ProbeTitle(ctx context.Context, url string) (string, error) {
	atomic.AddInt32(&p.calls, 1)
	if p.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return p.title, p.err
}

// fakeProcess replays scripted progress samples. With hold set it keeps running
// after its samples until terminated.
type fakeProcess struct {
	stream   domain.StreamKind
	samples  []float64
	hold     bool
	exitErr  error
	onExit   func()
	next     int
	termOnce sync.Once
	term     chan struct{}
	terms    int32
}

func newFakeProcess(stream domain.StreamKind, samples []float64) *fakeProcess {
	return &fakeProcess{stream: stream, samples: samples, term: make(chan struct{})}
}

func (p *fakeProcess) Progress() domain.ProgressSource { return p }

func (p *fakeProcess) Next() (domain.ProgressSample, bool) {
	if p.next < len(p.samples) {
		s := domain.ProgressSample{Percent: p.samples[p.next], Stream: p.stream}
		p.next++
		return s, true
	}
	if p.hold {
		<-p.term
	}
	return domain.ProgressSample{}, false
}

func (p *fakeProcess) Err() error { return nil }

func (p *fakeProcess) Terminate() error {
	atomic.AddInt32(&p.terms, 1)
	p.termOnce.Do(func() { close(p.term) })
	return nil
}

func (p *fakeProcess) Terminations() int {
	return int(atomic.LoadInt32(&p.terms))
}

func (p *fakeProcess) Wait() error {
	select {
	case <-p.term:
		return &domain.ProcessExitError{Name: "fake", ExitCode: -1, Err: context.Canceled}
	default:
	}
	if p.exitErr != nil {
		return p.exitErr
	}
	if p.onExit != nil {
		p.onExit()
	}
	return nil
}

// watch terminates p when ctx is done, like exec.CommandContext
func (p *fakeProcess) watch(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			p.Terminate()
		case <-p.term:
		}
	}()
}

// fetchScript describes how the fake fetcher behaves for one stream
type fetchScript struct {
	samples  []float64
	hold     bool
	exitErr  error
	startErr error
	artifact string // written into the destination on successful exit
	partial  string // written into the destination as soon as the fetch starts
}

type fakeFetcher struct {
	mu       sync.Mutex
	scripts  map[domain.StreamKind]fetchScript
	requests []domain.FetchRequest
	procs    map[domain.StreamKind]*fakeProcess
	started  chan domain.StreamKind
}

func newFakeFetcher(audio, video fetchScript) *fakeFetcher {
	return &fakeFetcher{
		scripts: map[domain.StreamKind]fetchScript{domain.StreamAudio: audio, domain.StreamVideo: video},
		procs:   make(map[domain.StreamKind]*fakeProcess),
		started: make(chan domain.StreamKind, 2),
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, req domain.FetchRequest) (domain.RunningProcess, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	script := f.scripts[req.Stream]
	f.mu.Unlock()

	if script.startErr != nil {
		return nil, script.startErr
	}
	if script.partial != "" {
		writeSized(filepath.Join(req.DestinationDir, script.partial), 16)
	}

	p := newFakeProcess(req.Stream, script.samples)
	p.hold = script.hold
	p.exitErr = script.exitErr
	if script.artifact != "" {
		p.onExit = func() {
			if script.partial != "" {
				os.Remove(filepath.Join(req.DestinationDir, script.partial))
			}
			writeSized(filepath.Join(req.DestinationDir, script.artifact), 64)
		}
	}
	p.watch(ctx)

	f.mu.Lock()
	f.procs[req.Stream] = p
	f.mu.Unlock()
	f.started <- req.Stream
	return p, nil
}

func (f *fakeFetcher) Requests() []domain.FetchRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.FetchRequest(nil), f.requests...)
}

func (f *fakeFetcher) Process(stream domain.StreamKind) *fakeProcess {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.procs[stream]
}

// fakeMuxer writes an output of size bytes, or part of one when exitErr is set
type fakeMuxer struct {
	mu       sync.Mutex
	size     int
	exitErr  error
	requests []domain.MuxRequest
}

func (m *fakeMuxer) Mux(ctx context.Context, req domain.MuxRequest) (domain.RunningProcess, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	p := newFakeProcess(domain.StreamMux, nil)
	if m.exitErr != nil {
		writeSized(req.OutputPath, 8)
		p.exitErr = m.exitErr
	} else {
		p.onExit = func() { writeSized(req.OutputPath, m.size) }
	}
	p.watch(ctx)
	return p, nil
}

func (m *fakeMuxer) Requests() []domain.MuxRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.MuxRequest(nil), m.requests...)
}

// eventRecorder collects progress events
type eventRecorder struct {
	mu     sync.Mutex
	events []domain.ProgressEvent
	hook   func(domain.ProgressEvent)
}

func (r *eventRecorder) record(ev domain.ProgressEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	hook := r.hook
	r.mu.Unlock()
	if hook != nil {
		hook(ev)
	}
}

func (r *eventRecorder) Events() []domain.ProgressEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.ProgressEvent(nil), r.events...)
}

func writeSized(path string, size int) {
	os.WriteFile(path, []byte(strings.Repeat("x", size)), 0644)
}

func dirNames(dir string) []string {
	entries, _ := os.ReadDir(dir)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

// memoryRepo is a goroutine-safe domain.DownloadRepository that stores copies
type memoryRepo struct {
	mu        sync.Mutex
	downloads []*domain.Download
	orphans   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{}
}

func (m *memoryRepo) Create(download *domain.Download) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := *download
	m.downloads = append(m.downloads, &d)
	return nil
}

func (m *memoryRepo) Update(download *domain.Download) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, d := range m.downloads {
		if d.ID == download.ID {
			cp := *download
			m.downloads[i] = &cp
			return nil
		}
	}
	return nil
}

func (m *memoryRepo) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, d := range m.downloads {
		if d.ID == id {
			m.downloads = append(m.downloads[:i], m.downloads[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *memoryRepo) FindByID(id string) (*domain.Download, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.downloads {
		if d.ID == id {
			cp := *d
			return &cp, nil
		}
	}
	return nil, nil
}

// hookRepo runs callbacks before reads and writes reach the memory repository
type hookRepo struct {
	*memoryRepo
	onFind   func(id string)
	onUpdate func(download *domain.Download)
}

func (h *hookRepo) FindByID(id string) (*domain.Download, error) {
	if h.onFind != nil {
		h.onFind(id)
	}
	return h.memoryRepo.FindByID(id)
}

func (h *hookRepo) Update(download *domain.Download) error {
	if h.onUpdate != nil {
		h.onUpdate(download)
	}
	return h.memoryRepo.Update(download)
}

func (m *memoryRepo) FindByURL(url string, statuses []domain.DownloadStatus) (*domain.Download, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.downloads) - 1; i >= 0; i-- {
		d := m.downloads[i]
		if d.URL != url {
			continue
		}
		for _, s := range statuses {
			if d.Status == s {
				cp := *d
				return &cp, nil
			}
		}
	}
	return nil, nil
}

func (m *memoryRepo) FindByStatus(status domain.DownloadStatus) ([]*domain.Download, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Download
	for _, d := range m.downloads {
		if d.Status == status {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memoryRepo) FindPending() ([]*domain.Download, error) {
	return m.FindByStatus(domain.StatusQueued)
}

func (m *memoryRepo) FindAll(filters map[string]interface{}) ([]*domain.Download, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Download, 0, len(m.downloads))
	for _, d := range m.downloads {
		cp := *d
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memoryRepo) ResetOrphanedProcessing() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, d := range m.downloads {
		if d.Status == domain.StatusProcessing {
			d.Status = domain.StatusQueued
			n++
		}
	}
	m.orphans += n
	return n, nil
}

func (m *memoryRepo) Count() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.downloads)), nil
}

func (m *memoryRepo) GetStats() (*domain.DownloadStats, error) {
	return &domain.DownloadStats{}, nil
}

func (m *memoryRepo) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.downloads)
}

// get returns the stored download or nil
func (m *memoryRepo) get(id string) *domain.Download {
	d, _ := m.FindByID(id)
	return d
}

// recordingNotifier counts lifecycle notifications
type recordingNotifier struct {
	mu        sync.Mutex
	started   []string
	completed []string
	failed    []string
	cancelled []string
}

func (n *recordingNotifier) NotifyDownloadStarted(url string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.started = append(n.started, url)
}

func (n *recordingNotifier) NotifyDownloadCompleted(url, filePath string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed = append(n.completed, filePath)
}

func (n *recordingNotifier) NotifyDownloadFailed(url string, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, url)
}

func (n *recordingNotifier) NotifyDownloadCancelled(url string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancelled = append(n.cancelled, url)
}

func (n *recordingNotifier) counts() (started, completed, failed, cancelled int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.started), len(n.completed), len(n.failed), len(n.cancelled)
}
