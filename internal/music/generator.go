package music

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/GSSJacky/Aroma-Agents-ADK-Project-Github/internal/metrics"
	"github.com/GSSJacky/Aroma-Agents-ADK-Project-Github/internal/storage"
)

// DefaultInitialDelay gives the remote service time to register a task before the first poll.
const DefaultInitialDelay = 2 * time.Second

// API is the remote music service as seen by the Generator.
type API interface {
	StatusSource
	Submit(ctx context.Context, req SongRequest) (string, error)
}

// ResultKind classifies how a generation run ended.
type ResultKind string

const (
	ResultSuccess         ResultKind = "success"
	ResultConfigError     ResultKind = "config_error"
	ResultSubmissionError ResultKind = "submission_error"
	ResultFailed          ResultKind = "failed"
	ResultError           ResultKind = "error"
	ResultTimedOut        ResultKind = "timed_out"
	ResultDownloadFailed  ResultKind = "download_failed"
)

// Result is the structured end state of one Generate call.
type Result struct {
	Kind      ResultKind       `json:"kind"`
	TaskID    string           `json:"task_id,omitempty"`
	Outcome   *Outcome         `json:"outcome,omitempty"`
	Artifacts []ArtifactResult `json:"-"`
	Paths     []string         `json:"paths,omitempty"`
	Err       error            `json:"-"`
}

// Message renders a user-facing sentence for the result.
func (r Result) Message() string {
	switch r.Kind {
	case ResultSuccess:
		return fmt.Sprintf("Successfully generated and saved %d song(s). Paths: %s", len(r.Paths), strings.Join(r.Paths, ", "))
	case ResultConfigError, ResultSubmissionError:
		return fmt.Sprintf("Could not start the music generation process. %v", r.Err)
	case ResultDownloadFailed:
		return "The song was generated, but none of the audio files could be downloaded."
	case ResultTimedOut:
		return fmt.Sprintf("Music generation did not finish in time. %s", r.detail())
	case ResultFailed, ResultError:
		return fmt.Sprintf("Music generation failed. Final status: %s. Reason: %s", r.Kind, r.detail())
	default:
		return fmt.Sprintf("Music generation ended in an unknown state %q.", r.Kind)
	}
}

func (r Result) detail() string {
	if r.Outcome != nil && r.Outcome.ErrorDetail != "" {
		return r.Outcome.ErrorDetail
	}
	if r.Err != nil {
		return r.Err.Error()
	}
	return "unknown reason"
}

// GeneratorConfig combines the polling and download settings of a run.
type GeneratorConfig struct {
	InitialDelay time.Duration
	Poll         PollerConfig
	Fetch        FetcherConfig
}

// Generator runs submit, poll and download for one song.
type Generator struct {
	api          API
	poller       *Poller
	fetcher      *Fetcher
	initialDelay time.Duration
	logger       *slog.Logger
	metrics      *metrics.Metrics
	sleep        func(ctx context.Context, d time.Duration) error
}

// NewGenerator wires a generator over api, saving artifacts through sink.
func NewGenerator(api API, config GeneratorConfig, sink storage.Sink, logger *slog.Logger, m *metrics.Metrics) *Generator {
	if config.InitialDelay < 0 {
		config.InitialDelay = 0
	}

	return &Generator{
		api:          api,
		poller:       NewPoller(api, config.Poll, logger),
		fetcher:      NewFetcher(config.Fetch, sink, logger, m),
		initialDelay: config.InitialDelay,
		logger:       logger,
		metrics:      m,
		sleep:        sleepContext,
	}
}

// Generate runs one song request to completion. Every ending is returned as a
// Result; it never panics or returns an error.
func (g *Generator) Generate(ctx context.Context, req SongRequest) Result {
	start := time.Now()
	res := g.generate(ctx, req)
	g.metrics.RecordOutcome(string(res.Kind), time.Since(start).Seconds())

	g.logger.Info("Music generation finished",
		slog.String("title", req.Title),
		slog.String("task_id", res.TaskID),
		slog.String("kind", string(res.Kind)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return res
}

func (g *Generator) generate(ctx context.Context, req SongRequest) Result {
	taskID, err := g.api.Submit(ctx, req)
	if err != nil {
		kind := ResultSubmissionError
		if errors.Is(err, ErrMissingCredential) {
			kind = ResultConfigError
		}
		return Result{Kind: kind, Err: err}
	}

	if g.initialDelay > 0 {
		if err := g.sleep(ctx, g.initialDelay); err != nil {
			return Result{Kind: ResultError, TaskID: taskID, Err: fmt.Errorf("waiting for task registration: %w", err)}
		}
	}

	outcome := g.poller.Drive(ctx, taskID)
	res := Result{TaskID: taskID, Outcome: &outcome}

	switch outcome.Status {
	case StatusCompleted:
	case StatusFailed:
		res.Kind = ResultFailed
		return res
	case StatusTimedOut:
		res.Kind = ResultTimedOut
		return res
	default:
		res.Kind = ResultError
		return res
	}

	res.Artifacts = g.fetcher.Fetch(ctx, outcome.ResultURLs, req.Title)
	res.Paths = Saved(res.Artifacts)
	if len(res.Paths) == 0 {
		res.Kind = ResultDownloadFailed
		return res
	}

	res.Kind = ResultSuccess
	return res
}
