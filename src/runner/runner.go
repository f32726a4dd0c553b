// Package runner holds the context of the current run: the test registry,
// the shared progress state, the background job and the last report. Both
// the command line and the HTTP monitor drive runs through a Controller.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lost-woods/nistcheck/src/history"
	"github.com/lost-woods/nistcheck/src/pipeline"
	"github.com/lost-woods/nistcheck/src/rng"
	"github.com/lost-woods/nistcheck/src/stats"
	"github.com/lost-woods/nistcheck/src/suite"
)

var (
	ErrRunning    = errors.New("a run is already in progress")
	ErrNotRunning = errors.New("no run in progress")
)

// DefaultSerialBlocks is the block count used for sources of unknown size
// when none is requested.
const DefaultSerialBlocks = 1000

// Request describes a run.
type Request struct {
	// Path of the input file. Ignored when Serial.Device is set. With
	// Stream it only names the source.
	Path   string
	Serial rng.SerialConfig
	// Stream, when set, is read instead of Path or Serial. Its size is
	// unknown and it is closed at the end of the run if it is an io.Closer.
	Stream io.Reader
	// BitsPerBlock is rounded down to a multiple of 8.
	BitsPerBlock int
	// Blocks to process; 0 derives the count from the file size.
	Blocks int
	// ReportPath overrides <Path>.txt.
	ReportPath string
}

// Recorder stores completed runs.
type Recorder interface {
	Record(ctx context.Context, r history.Run) error
}

// Run describes the run in progress or the last one started.
type Run struct {
	ID           string    `json:"id"`
	Source       string    `json:"source"`
	BitsPerBlock int       `json:"bits_per_block"`
	Blocks       int       `json:"blocks"`
	ReportPath   string    `json:"report_path"`
	StartedAt    time.Time `json:"started_at"`
}

// Outcome is what Poll hands back once a run has ended. Report is nil for a
// stopped run.
type Outcome struct {
	Run    Run
	Report *stats.Report
	Err    error
}

type Controller struct {
	registry *suite.Registry
	state    *pipeline.State
	health   *rng.Health
	recorder Recorder
	log      *zap.SugaredLogger

	mu       sync.Mutex
	starting bool
	job      *pipeline.Job
	src      *rng.BlockSource
	cancel   context.CancelFunc
	current  Run
	last     *stats.Report
}

// New builds a controller. recorder may be nil.
func New(registry *suite.Registry, recorder Recorder, log *zap.SugaredLogger) *Controller {
	return &Controller{
		registry: registry,
		state:    pipeline.NewState(),
		health:   rng.NewHealth(),
		recorder: recorder,
		log:      log,
	}
}

func (c *Controller) Registry() *suite.Registry { return c.registry }

func (c *Controller) State() *pipeline.State { return c.state }

func (c *Controller) Health() *rng.Health { return c.health }

// Start opens the source and launches the run in the background. A source
// that cannot be opened is reported here and nothing is started. The source
// is opened and checked without holding the controller lock, so a stalled
// device only blocks the caller of Start.
func (c *Controller) Start(req Request) (Run, error) {
	c.mu.Lock()
	if c.job != nil || c.starting {
		c.mu.Unlock()
		return Run{}, ErrRunning
	}
	c.starting = true
	c.mu.Unlock()

	run, err := c.start(req)

	c.mu.Lock()
	c.starting = false
	c.mu.Unlock()
	return run, err
}

func (c *Controller) start(req Request) (Run, error) {
	src, err := openSource(req)
	if err != nil {
		return Run{}, err
	}

	blocks := req.Blocks
	if blocks <= 0 {
		blocks = src.AvailableBlocks()
		if src.Size() < 0 {
			blocks = DefaultSerialBlocks
		}
	}
	if blocks <= 0 {
		src.Close()
		return Run{}, fmt.Errorf("source %s holds no complete block of %d bits", src.Name(), src.BlockBits())
	}

	if err := src.Preflight(c.health); err != nil {
		c.log.Warnw("Source health check failed", "source", src.Name(), "error", err)
	}

	reportPath := req.ReportPath
	if reportPath == "" {
		reportPath = stats.ReportPath(src.Name())
	}

	descs := c.registry.Snapshot()
	run := Run{
		ID:           uuid.NewString(),
		Source:       src.Name(),
		BitsPerBlock: src.BlockBits(),
		Blocks:       blocks,
		ReportPath:   reportPath,
		StartedAt:    time.Now(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	c.state.Reset(blocks)
	c.job = pipeline.Start(ctx, src, descs, c.state, c.log.With("run", run.ID))
	c.src = src
	c.cancel = cancel
	c.current = run

	c.log.Infow("Run started",
		"run", run.ID,
		"source", run.Source,
		"bits_per_block", run.BitsPerBlock,
		"blocks", run.Blocks,
		"tests", countEnabled(descs),
	)
	return run, nil
}

func openSource(req Request) (*rng.BlockSource, error) {
	if req.Stream != nil {
		name := req.Path
		if name == "" {
			name = "stream"
		}
		return rng.NewBlockSource(name, req.Stream, req.BitsPerBlock)
	}
	if req.Serial.Device != "" {
		return rng.OpenSerial(req.Serial, req.BitsPerBlock)
	}
	if req.Path == "" {
		return nil, errors.New("no input path or serial device given")
	}
	return rng.OpenFile(req.Path, req.BitsPerBlock)
}

// Stop asks the current run to stop. It returns immediately; the run ends
// after its current block.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.job == nil {
		return ErrNotRunning
	}
	c.state.RequestStop()
	return nil
}

// Running reports whether a run is being started or is in progress.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.job != nil || c.starting
}

// Current is the run in progress, or the last one started.
func (c *Controller) Current() Run {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// LastReport is the report of the last completed run, or nil.
func (c *Controller) LastReport() *stats.Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Poll checks, waiting at most timeout, whether the current run has ended.
// It is meant to be called repeatedly from the caller's own loop. When a run
// completes, its statistics are computed, the report file is written and the
// run is recorded; a stopped run produces none of these.
func (c *Controller) Poll(timeout time.Duration) (Outcome, bool) {
	c.mu.Lock()
	job := c.job
	c.mu.Unlock()
	if job == nil {
		return Outcome{}, false
	}

	res, ok := job.Poll(timeout)
	if !ok {
		return Outcome{}, false
	}
	return c.complete(res), true
}

// Wait blocks until the current run ends and finalizes it like Poll. ok is
// false when no run is in progress or a concurrent Poll took the result.
func (c *Controller) Wait() (Outcome, bool) {
	c.mu.Lock()
	job := c.job
	c.mu.Unlock()
	if job == nil {
		return Outcome{}, false
	}
	res, ok := job.Wait()
	if !ok {
		return Outcome{}, false
	}
	return c.complete(res), true
}

// complete turns the result of the ended job into an Outcome.
func (c *Controller) complete(res pipeline.Result) Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	run := c.current
	c.finish()

	out := Outcome{Run: run}
	switch {
	case errors.Is(res.Err, pipeline.ErrStopped):
		c.log.Infow("Run stopped", "run", run.ID, "completed_blocks", c.state.CompletedBlocks())
		return out
	case res.Err != nil:
		out.Err = res.Err
		c.log.Errorw("Run failed", "run", run.ID, "error", res.Err)
		return out
	}

	report := stats.Aggregate(res.Acc)
	c.last = report
	out.Report = report

	if err := stats.WriteReport(run.ReportPath, report); err != nil {
		out.Err = err
		c.log.Errorw("Can't write report", "run", run.ID, "error", err)
	}

	c.log.Infow("Run completed",
		"run", run.ID,
		"blocks", res.Acc.Blocks,
		"skipped", res.Acc.Skipped,
		"subtests", len(report.Subtests),
		"failed", report.Failed,
		"report", run.ReportPath,
		"elapsed", c.state.Elapsed(),
	)

	if c.recorder != nil {
		rec := history.Run{
			ID:           run.ID,
			Source:       run.Source,
			BitsPerBlock: run.BitsPerBlock,
			Blocks:       res.Acc.Blocks,
			Skipped:      res.Acc.Skipped,
			Subtests:     len(report.Subtests),
			Failed:       report.Failed,
			Report:       report.Text,
			StartedAt:    run.StartedAt,
			FinishedAt:   time.Now(),
		}
		if err := c.recorder.Record(context.Background(), rec); err != nil {
			c.log.Errorw("Can't record run", "run", run.ID, "error", err)
		}
	}

	return out
}

// finish releases the resources of the ended job. c.mu must be held.
func (c *Controller) finish() {
	if c.cancel != nil {
		c.cancel()
	}
	if c.src != nil {
		if err := c.src.Close(); err != nil {
			c.log.Warnw("Can't close source", "source", c.src.Name(), "error", err)
		}
	}
	c.job, c.src, c.cancel = nil, nil, nil
}

func countEnabled(descs []suite.Descriptor) int {
	n := 0
	for _, d := range descs {
		if d.Enabled {
			n++
		}
	}
	return n
}
