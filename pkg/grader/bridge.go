package grader

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultTimeout bounds a single grader invocation from spawn to exit.
const DefaultTimeout = 10 * time.Minute

const maxLoggedStderr = 2048

var (
	invocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "edumark",
		Subsystem: "grader",
		Name:      "invocations_total",
		Help:      "Grader invocations partitioned by outcome",
	}, []string{"outcome"})

	invocationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "edumark",
		Subsystem: "grader",
		Name:      "invocation_duration_seconds",
		Help:      "Wall-clock duration of grader invocations",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})
)

// Invocation describes one grader run.
type Invocation struct {
	Files     []string
	AnswerKey string
}

// Output captures what a grader process produced.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
}

// Runner spawns the grader. Implementations must stop the process when ctx
// is done and report that through Output.TimedOut.
type Runner interface {
	Run(ctx context.Context, inv Invocation) (Output, error)
}

// Bridge turns a grader run into a Result. It never fails; every problem is
// logged and collapses to the zero Result.
type Bridge struct {
	runner  Runner
	timeout time.Duration
	logger  zerolog.Logger
	tracer  trace.Tracer
}

// NewBridge constructs a bridge around the provided runner.
func NewBridge(runner Runner, timeout time.Duration, logger zerolog.Logger) *Bridge {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Bridge{
		runner:  runner,
		timeout: timeout,
		logger:  logger.With().Str("component", "grader_bridge").Logger(),
		tracer:  otel.Tracer("github.com/noah-isme/edumark-api/pkg/grader"),
	}
}

// Invoke runs the grader against the local files and answer key.
func (b *Bridge) Invoke(parent context.Context, files []string, answerKey string) Result {
	ctx, span := b.tracer.Start(parent, "grader.invoke", trace.WithAttributes(
		attribute.Int("grader.files", len(files)),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	start := time.Now()
	output, err := b.runner.Run(ctx, Invocation{Files: files, AnswerKey: answerKey})
	invocationDuration.Observe(time.Since(start).Seconds())

	if output.TimedOut || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		invocationsTotal.WithLabelValues("timeout").Inc()
		span.SetStatus(codes.Error, "grader timed out")
		b.logger.Warn().Dur("timeout", b.timeout).Msg("grader timed out and was killed")
		return Result{}
	}

	if err != nil {
		invocationsTotal.WithLabelValues("spawn_error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		b.logger.Error().Err(err).Msg("failed to run grader")
		return Result{}
	}

	event := b.logger.Debug()
	if output.ExitCode != 0 || output.Stderr != "" {
		event = b.logger.Warn()
	}
	event.Int("exit_code", output.ExitCode).Str("stderr", truncate(output.Stderr, maxLoggedStderr)).Msg("grader exited")

	result := ParseOutput(output.Stdout)
	if !result.Usable() {
		invocationsTotal.WithLabelValues("unparseable").Inc()
		span.SetStatus(codes.Error, "grader output unusable")
		b.logger.Warn().Int("stdout_bytes", len(output.Stdout)).Msg("grader output had no usable score")
		return Result{}
	}

	invocationsTotal.WithLabelValues("scored").Inc()
	span.SetAttributes(attribute.Float64("grader.score", *result.Score))

	return result
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit] + "..."
}
