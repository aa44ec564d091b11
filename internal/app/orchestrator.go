package app

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/yourusername/ytmux/internal/domain"
	"github.com/yourusername/ytmux/internal/infrastructure"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Overall progress allocation: audio fetch 0-30, video fetch 30-65, settle
// 65-80, mux 80-100
const (
	audioSpan       = 30.0
	videoSpan       = 35.0
	fetchEnd        = audioSpan + videoSpan
	muxStart        = 80.0
	muxReportedSpan = 19.0 // mux samples never reach 100; finalize does
)

// Orchestrator turns a URL into one muxed audio+video file: probe the title,
// fetch audio, fetch video, mux, verify, clean up
type Orchestrator struct {
	prober    domain.MetadataProber
	fetcher   domain.StreamFetcher
	muxer     domain.Muxer
	workspace *infrastructure.Workspace
	config    *domain.DownloadConfig
	tools     *domain.ToolsConfig
	logger    *zap.Logger
}

// NewOrchestrator creates an orchestrator
func NewOrchestrator(
	prober domain.MetadataProber,
	fetcher domain.StreamFetcher,
	muxer domain.Muxer,
	workspace *infrastructure.Workspace,
	config *domain.DownloadConfig,
	tools *domain.ToolsConfig,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		prober:    prober,
		fetcher:   fetcher,
		muxer:     muxer,
		workspace: workspace,
		config:    config,
		tools:     tools,
		logger:    logger,
	}
}

// JobOption customizes a job created by Start
type JobOption func(*Job)

// WithJobID sets the job ID instead of generating one
func WithJobID(id string) JobOption {
	return func(j *Job) {
		if id != "" {
			j.ID = id
		}
	}
}

// Run executes a job and blocks until it finishes
func (o *Orchestrator) Run(ctx context.Context, req domain.DownloadRequest, onProgress domain.ProgressFunc, opts ...JobOption) (string, error) {
	job, err := o.Start(ctx, req, onProgress, opts...)
	if err != nil {
		return "", err
	}
	return job.Wait()
}

// Start validates the request and runs the job on its own goroutine.
// Cancelling ctx cancels the job.
func (o *Orchestrator) Start(ctx context.Context, req domain.DownloadRequest, onProgress domain.ProgressFunc, opts ...JobOption) (*Job, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	jobCtx, cancel := context.WithCancel(ctx)
	job := &Job{
		ID:         uuid.New().String(),
		Request:    req,
		orch:       o,
		onProgress: onProgress,
		ctx:        jobCtx,
		cancelCtx:  cancel,
		stage:      domain.StageProbing,
		streamPct:  make(map[domain.StreamKind]float64),
		active:     make(map[domain.StreamKind]domain.RunningProcess),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(job)
	}
	job.logger = o.logger.With(zap.String("job_id", job.ID))

	stop := context.AfterFunc(ctx, job.Cancel)

	go func() {
		defer close(job.done)
		defer cancel()
		defer stop()
		o.run(job)
	}()

	return job, nil
}

func (o *Orchestrator) run(job *Job) {
	start := time.Now()
	job.logger.Info("Job started",
		zap.String("url", job.Request.URL),
		zap.String("destination", job.Request.DestinationDir))

	output, err := o.execute(job)
	if err != nil {
		job.cleanup(true)
		job.finish("", err)

		if domain.IsCancelled(err) {
			job.logger.Info("Job cancelled", zap.Duration("elapsed", time.Since(start)))
		} else {
			job.logger.Error("Job failed",
				zap.String("kind", string(domain.KindOf(err))),
				zap.Duration("elapsed", time.Since(start)),
				zap.Error(err))
		}
		return
	}

	job.finish(output, nil)
	job.logger.Info("Job completed",
		zap.String("output", output),
		zap.Duration("elapsed", time.Since(start)))
}

func (o *Orchestrator) execute(job *Job) (string, error) {
	req := job.Request

	if err := job.enter(domain.StageProbing); err != nil {
		return "", err
	}
	title, err := o.prober.ProbeTitle(job.ctx, req.URL)
	if err != nil {
		return "", job.fail(domain.KindProbe, domain.StageProbing, "failed to resolve title", err)
	}

	output := o.workspace.OutputPath(req.DestinationDir, title, o.container())
	job.setOutputPath(output)
	job.logger.Debug("Resolved title", zap.String("title", title), zap.String("output", output))

	// An existing output is accepted as-is
	if o.workspace.Exists(output) {
		job.logger.Info("Output already exists, skipping download", zap.String("output", output))
		if err := job.emit(100, domain.StreamNone, nil); err != nil {
			return "", err
		}
		return output, nil
	}

	marker, err := o.workspace.WriteMarker(req.DestinationDir, req.URL)
	if err != nil {
		job.logger.Warn("Failed to write marker file", zap.Error(err))
	} else {
		job.addTemp(marker)
	}

	if o.config.ParallelFetch {
		err = o.fetchParallel(job)
	} else {
		err = o.fetchSequential(job)
	}
	if err != nil {
		return "", err
	}

	if err := job.enter(domain.StageMuxing); err != nil {
		return "", err
	}
	if err := o.settle(job, output); err != nil {
		return "", err
	}

	video, audio, err := o.locateArtifacts(job)
	if err != nil {
		return "", err
	}

	if err := o.mux(job, video, audio, output); err != nil {
		return "", err
	}

	size, err := o.workspace.VerifyOutput(output)
	if err != nil {
		return "", job.fail(domain.KindMuxVerification, domain.StageMuxing, "output verification failed", err)
	}
	if err := job.emit(100, domain.StreamNone, nil); err != nil {
		return "", err
	}

	job.cleanup(false)
	job.logger.Debug("Output verified", zap.String("size", humanize.IBytes(uint64(size))))
	return output, nil
}

type fetchPlan struct {
	stream   domain.StreamKind
	stage    domain.Stage
	kind     domain.ErrorKind
	format   string
	template string
}

func (o *Orchestrator) audioPlan() fetchPlan {
	return fetchPlan{
		stream:   domain.StreamAudio,
		stage:    domain.StageFetchingAudio,
		kind:     domain.KindFetchAudio,
		format:   o.tools.AudioFormat,
		template: domain.AudioArtifactPrefix + "%(ext)s",
	}
}

func (o *Orchestrator) videoPlan() fetchPlan {
	return fetchPlan{
		stream:   domain.StreamVideo,
		stage:    domain.StageFetchingVideo,
		kind:     domain.KindFetchVideo,
		format:   o.tools.VideoFormat,
		template: domain.VideoArtifactPrefix + "%(ext)s",
	}
}

func (o *Orchestrator) fetchSequential(job *Job) error {
	for _, plan := range []fetchPlan{o.audioPlan(), o.videoPlan()} {
		if err := job.enter(plan.stage); err != nil {
			return err
		}
		if err := o.fetch(job.ctx, job, plan); err != nil {
			return err
		}
	}
	return nil
}

// fetchParallel runs both fetches at once; the first failure terminates the other
func (o *Orchestrator) fetchParallel(job *Job) error {
	if err := job.enter(domain.StageFetchingAudio); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(job.ctx)
	for _, plan := range []fetchPlan{o.audioPlan(), o.videoPlan()} {
		plan := plan
		g.Go(func() error {
			return o.fetch(ctx, job, plan)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	job.setStage(domain.StageFetchingVideo)
	return nil
}

// fetch runs one stream download to completion, forwarding its progress
func (o *Orchestrator) fetch(ctx context.Context, job *Job, plan fetchPlan) error {
	proc, err := o.fetcher.Fetch(ctx, domain.FetchRequest{
		JobID:          job.ID,
		URL:            job.Request.URL,
		Stream:         plan.stream,
		Format:         plan.format,
		DestinationDir: job.Request.DestinationDir,
		OutputTemplate: plan.template,
	})
	if err != nil {
		return job.fail(plan.kind, plan.stage, fmt.Sprintf("failed to start %s fetch", plan.stream), err)
	}

	job.track(plan.stream, proc)
	defer job.untrack(plan.stream)

	term := domain.TerminatorFunc(proc.Terminate)
	if err := job.emitStream(plan.stream, 0, term); err != nil {
		return abort(proc, err)
	}

	src := proc.Progress()
	for {
		sample, ok := src.Next()
		if !ok {
			break
		}
		if err := job.emitStream(plan.stream, sample.Percent, term); err != nil {
			return abort(proc, err)
		}
	}
	if err := src.Err(); err != nil {
		job.logger.Warn("Progress stream ended with error",
			zap.String("stream", string(plan.stream)),
			zap.Error(err))
	}

	if err := proc.Wait(); err != nil {
		return job.fail(plan.kind, plan.stage, fmt.Sprintf("%s fetch failed", plan.stream), err)
	}
	if job.isCancelled() {
		return job.cancelError()
	}

	job.completeStream(plan.stream)
	return nil
}

// settle removes a raced output file and ramps progress from 65 to 80
func (o *Orchestrator) settle(job *Job, output string) error {
	if o.workspace.Exists(output) {
		job.logger.Warn("Removing output created during fetch", zap.String("output", output))
		if err := o.workspace.Remove(output); err != nil {
			job.logger.Warn("Failed to remove raced output", zap.Error(err))
		}
	}

	delay := o.config.SettleStepDelay
	var timer *time.Timer
	if delay > 0 {
		timer = time.NewTimer(delay)
		defer timer.Stop()
	}

	for p := fetchEnd + 1; p <= muxStart; p++ {
		if timer != nil {
			select {
			case <-job.ctx.Done():
				return job.cancelError()
			case <-timer.C:
				timer.Reset(delay)
			}
		}
		if err := job.emit(p, domain.StreamNone, nil); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) locateArtifacts(job *Job) (video, audio string, err error) {
	dir := job.Request.DestinationDir

	video, err = o.workspace.LocateArtifact(dir, domain.VideoArtifactPrefix)
	if err != nil {
		return "", "", job.fail(domain.KindMissingArtifact, domain.StageMuxing, "failed to look up video artifact", err)
	}
	if video == "" {
		return "", "", job.fail(domain.KindMissingArtifact, domain.StageMuxing, "video artifact not found", nil)
	}

	audio, err = o.workspace.LocateArtifact(dir, domain.AudioArtifactPrefix)
	if err != nil {
		return "", "", job.fail(domain.KindMissingArtifact, domain.StageMuxing, "failed to look up audio artifact", err)
	}
	if audio == "" {
		return "", "", job.fail(domain.KindMissingArtifact, domain.StageMuxing, "audio artifact not found", nil)
	}

	return video, audio, nil
}

func (o *Orchestrator) mux(job *Job, video, audio, output string) error {
	if job.isCancelled() {
		return job.cancelError()
	}
	job.markMuxStarted()

	proc, err := o.muxer.Mux(job.ctx, domain.MuxRequest{
		JobID:      job.ID,
		VideoPath:  video,
		AudioPath:  audio,
		OutputPath: output,
		AudioCodec: o.tools.AudioCodec,
	})
	if err != nil {
		return job.fail(domain.KindMux, domain.StageMuxing, "failed to start mux", err)
	}

	job.track(domain.StreamMux, proc)
	defer job.untrack(domain.StreamMux)

	term := domain.TerminatorFunc(proc.Terminate)
	if err := job.emit(muxStart, domain.StreamMux, term); err != nil {
		return abort(proc, err)
	}

	src := proc.Progress()
	for {
		sample, ok := src.Next()
		if !ok {
			break
		}
		if err := job.emit(muxStart+muxReportedSpan*sample.Percent/100, domain.StreamMux, term); err != nil {
			return abort(proc, err)
		}
	}

	if err := proc.Wait(); err != nil {
		return job.fail(domain.KindMux, domain.StageMuxing, "mux failed", err)
	}
	if job.isCancelled() {
		return job.cancelError()
	}
	return nil
}

func (o *Orchestrator) container() string {
	if o.config.Container == "" {
		return "mp4"
	}
	return o.config.Container
}

// abort terminates proc, drains its output, reaps it and returns cause
func abort(proc domain.RunningProcess, cause error) error {
	proc.Terminate()
	src := proc.Progress()
	for {
		if _, ok := src.Next(); !ok {
			break
		}
	}
	proc.Wait()
	return cause
}
