package app

import (
	"context"
	"sort"
	"sync"

	"github.com/yourusername/ytmux/internal/domain"
	"go.uber.org/zap"
)

// Job is the live state of one orchestration run
type Job struct {
	ID      string
	Request domain.DownloadRequest

	orch       *Orchestrator
	onProgress domain.ProgressFunc
	logger     *zap.Logger

	ctx       context.Context
	cancelCtx context.CancelFunc

	mu          sync.Mutex
	stage       domain.Stage
	progress    float64
	streamPct   map[domain.StreamKind]float64
	outputPath  string
	active      map[domain.StreamKind]domain.RunningProcess
	cancelled   bool
	muxStarted  bool
	temps       []string
	residues    []domain.CleanupResidue
	result      string
	err         error
	cleanupOnce sync.Once

	// serializes onProgress calls and keeps the emitted sequence non-decreasing
	emitMu sync.Mutex

	done chan struct{}
}

// JobSnapshot is a point-in-time copy of a job's state
type JobSnapshot struct {
	ID             string                  `json:"id"`
	URL            string                  `json:"url"`
	DestinationDir string                  `json:"destination_dir"`
	OutputPath     string                  `json:"output_path,omitempty"`
	Stage          domain.Stage            `json:"stage"`
	Progress       float64                 `json:"progress"`
	Active         []domain.StreamKind     `json:"active,omitempty"`
	Cancelled      bool                    `json:"cancelled"`
	TempPaths      []string                `json:"temp_paths,omitempty"`
	Residues       []domain.CleanupResidue `json:"residues,omitempty"`
	Error          string                  `json:"error,omitempty"`
}

// Cancel requests cooperative cancellation. Every active process is asked to
// terminate. Safe to call from any goroutine, any number of times.
func (j *Job) Cancel() {
	j.mu.Lock()
	if j.stage.IsTerminal() || j.cancelled {
		j.mu.Unlock()
		return
	}
	j.cancelled = true
	procs := make([]domain.RunningProcess, 0, len(j.active))
	for _, p := range j.active {
		procs = append(procs, p)
	}
	j.mu.Unlock()

	j.logger.Info("Cancelling job", zap.Int("active_processes", len(procs)))

	for _, p := range procs {
		if err := p.Terminate(); err != nil {
			j.logger.Warn("Failed to terminate process", zap.Error(err))
		}
	}
	j.cancelCtx()
}

// Stage returns the current stage
func (j *Job) Stage() domain.Stage {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.stage
}

// Progress returns the overall progress in [0, 100]
func (j *Job) Progress() float64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.progress
}

// OutputPath returns the target path once the title has been resolved
func (j *Job) OutputPath() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.outputPath
}

// Residues returns the temporary files cleanup could not remove
func (j *Job) Residues() []domain.CleanupResidue {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]domain.CleanupResidue(nil), j.residues...)
}

// Snapshot returns a copy of the job state
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()

	snap := JobSnapshot{
		ID:             j.ID,
		URL:            j.Request.URL,
		DestinationDir: j.Request.DestinationDir,
		OutputPath:     j.outputPath,
		Stage:          j.stage,
		Progress:       j.progress,
		Cancelled:      j.cancelled,
		TempPaths:      append([]string(nil), j.temps...),
		Residues:       append([]domain.CleanupResidue(nil), j.residues...),
	}
	for stream := range j.active {
		snap.Active = append(snap.Active, stream)
	}
	sort.Slice(snap.Active, func(a, b int) bool { return snap.Active[a] < snap.Active[b] })
	if j.err != nil {
		snap.Error = j.err.Error()
	}
	return snap
}

// Done is closed once the job has reached a terminal stage
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job finishes and returns the output path or the failure
func (j *Job) Wait() (string, error) {
	<-j.done
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result, j.err
}

func (j *Job) isCancelled() bool {
	j.mu.Lock()
	cancelled := j.cancelled
	j.mu.Unlock()
	return cancelled || j.ctx.Err() != nil
}

func (j *Job) cancelError() error {
	return domain.NewDownloadError(domain.KindCancelled, j.Stage(), "job cancelled", context.Cause(j.ctx))
}

// fail builds the failure for the current step, reporting cancellation instead
// when the step failed because the job was cancelled
func (j *Job) fail(kind domain.ErrorKind, stage domain.Stage, detail string, err error) error {
	if j.isCancelled() {
		return j.cancelError()
	}
	return domain.NewDownloadError(kind, stage, detail, err)
}

// enter moves the job to stage unless it has been cancelled
func (j *Job) enter(stage domain.Stage) error {
	if j.isCancelled() {
		return j.cancelError()
	}
	j.setStage(stage)
	return nil
}

func (j *Job) setStage(stage domain.Stage) {
	j.mu.Lock()
	prev := j.stage
	j.stage = stage
	j.mu.Unlock()

	if prev != stage {
		j.logger.Debug("Stage changed",
			zap.String("from", string(prev)),
			zap.String("to", string(stage)))
	}
}

func (j *Job) setOutputPath(path string) {
	j.mu.Lock()
	j.outputPath = path
	j.mu.Unlock()
}

func (j *Job) addTemp(path string) {
	j.mu.Lock()
	j.temps = append(j.temps, path)
	j.mu.Unlock()
}

func (j *Job) markMuxStarted() {
	j.mu.Lock()
	j.muxStarted = true
	j.mu.Unlock()
}

// track registers a started process. A process started after cancellation is
// terminated immediately.
func (j *Job) track(stream domain.StreamKind, p domain.RunningProcess) {
	j.mu.Lock()
	j.active[stream] = p
	cancelled := j.cancelled
	j.mu.Unlock()

	if cancelled {
		p.Terminate()
	}
}

func (j *Job) untrack(stream domain.StreamKind) {
	j.mu.Lock()
	delete(j.active, stream)
	j.mu.Unlock()
}

func (j *Job) terminateAll() {
	j.mu.Lock()
	procs := make([]domain.RunningProcess, 0, len(j.active))
	for _, p := range j.active {
		procs = append(procs, p)
	}
	j.mu.Unlock()

	for _, p := range procs {
		p.Terminate()
	}
}

// emit delivers a progress event at percent. It fails with a cancellation error
// instead when the job has been cancelled.
func (j *Job) emit(percent float64, stream domain.StreamKind, proc domain.Terminator) error {
	if j.isCancelled() {
		return j.cancelError()
	}

	j.emitMu.Lock()
	defer j.emitMu.Unlock()

	j.mu.Lock()
	if percent < j.progress {
		percent = j.progress
	}
	if percent > 100 {
		percent = 100
	}
	j.progress = percent
	stage := j.stage
	j.mu.Unlock()

	if j.onProgress != nil {
		j.onProgress(domain.ProgressEvent{Percent: percent, Stage: stage, Stream: stream, Process: proc})
	}
	return nil
}

// emitStream records a native 0-100 reading for a fetch stream and emits the
// overall progress: 30·audio/100 + 35·video/100
func (j *Job) emitStream(stream domain.StreamKind, native float64, proc domain.Terminator) error {
	j.mu.Lock()
	if native > j.streamPct[stream] {
		j.streamPct[stream] = native
	}
	overall := fetchProgress(j.streamPct[domain.StreamAudio], j.streamPct[domain.StreamVideo])
	j.mu.Unlock()

	return j.emit(overall, stream, proc)
}

func (j *Job) completeStream(stream domain.StreamKind) {
	j.mu.Lock()
	j.streamPct[stream] = 100
	j.mu.Unlock()
}

func fetchProgress(audio, video float64) float64 {
	return audioSpan*audio/100 + videoSpan*video/100
}

// cleanup removes the job's temporary files exactly once. The output file is
// removed only when removeOutput is set and the job started muxing into it.
func (j *Job) cleanup(removeOutput bool) {
	j.cleanupOnce.Do(func() {
		j.setStage(domain.StageCleanup)
		j.terminateAll()

		ws := j.orch.workspace
		j.mu.Lock()
		paths := append([]string(nil), j.temps...)
		output, muxStarted := j.outputPath, j.muxStarted
		j.mu.Unlock()

		// a target below the minimum size is a truncated mux even if another run wrote it
		if removeOutput && output != "" && (muxStarted || ws.IsIncomplete(output)) {
			paths = append(paths, output)
		}

		intermediates, err := ws.Intermediates(j.Request.DestinationDir)
		if err != nil {
			j.logger.Warn("Failed to list intermediate files", zap.Error(err))
		}
		paths = append(paths, intermediates...)

		residues := ws.Sweep(paths)
		if len(residues) > 0 {
			j.mu.Lock()
			j.residues = append(j.residues, residues...)
			j.mu.Unlock()
			j.logger.Warn("Cleanup left residues", zap.Int("count", len(residues)))
		}
	})
}

// finish records the result and moves the job to its terminal stage
func (j *Job) finish(output string, err error) {
	stage := domain.StageDone
	switch {
	case err == nil:
	case domain.IsCancelled(err):
		stage = domain.StageCancelled
	default:
		stage = domain.StageFailed
	}

	j.mu.Lock()
	j.result = output
	j.err = err
	j.stage = stage
	j.mu.Unlock()
}
