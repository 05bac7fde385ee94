package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/edumark-api/internal/dto"
	"github.com/noah-isme/edumark-api/internal/middleware"
	"github.com/noah-isme/edumark-api/internal/models"
	"github.com/noah-isme/edumark-api/internal/observability"
	"github.com/noah-isme/edumark-api/internal/repository"
	"github.com/noah-isme/edumark-api/pkg/grader"
	"github.com/noah-isme/edumark-api/pkg/materialize"
)

// GradingJob is one request to grade a submission in the background.
type GradingJob struct {
	SubmissionID  uint
	FileRefs      []string
	AnswerKey     string
	CorrelationID string
	// Revision is the submission revision FileRefs belong to. Zero means the
	// revision loaded at the start of the run.
	Revision      uint
}

// GraderBridge runs the external grader. It never fails; an unusable run
// yields a Result without a score.
type GraderBridge interface {
	Invoke(ctx context.Context, files []string, answerKey string) grader.Result
}

// FileMaterializer resolves file references into local paths.
type FileMaterializer interface {
	EnsureAll(ctx context.Context, refs []string) (*materialize.Batch, error)
}

// GradingEventPublisher fans grading events out to interested clients.
type GradingEventPublisher interface {
	Publish(ctx context.Context, event dto.GradingEvent)
}

// GradingOrchestrator performs a single grading run end to end.
type GradingOrchestrator interface {
	Run(ctx context.Context, job GradingJob)
}

type gradingOrchestrator struct {
	submissions  repository.SubmissionRepository
	materializer FileMaterializer
	bridge       GraderBridge
	events       GradingEventPublisher
	logger       zerolog.Logger
	tracer       trace.Tracer
	now          func() time.Time
}

// NewGradingOrchestrator constructs the orchestrator. events may be nil.
func NewGradingOrchestrator(submissions repository.SubmissionRepository, materializer FileMaterializer, bridge GraderBridge, events GradingEventPublisher, logger zerolog.Logger) GradingOrchestrator {
	return &gradingOrchestrator{
		submissions:  submissions,
		materializer: materializer,
		bridge:       bridge,
		events:       events,
		logger:       logger.With().Str("component", "grading_orchestrator").Logger(),
		tracer:       otel.Tracer("github.com/noah-isme/edumark-api/internal/service/grading"),
		now:          time.Now,
	}
}

// Run loads the submission, skips teacher-graded work, materializes the
// files, invokes the grader and records a usable result. Every failure is
// logged; nothing is returned to the caller.
func (o *gradingOrchestrator) Run(parent context.Context, job GradingJob) {
	ctx := middleware.ContextWithCorrelation(parent, job.CorrelationID)
	ctx, span := o.tracer.Start(ctx, "grading.run", trace.WithAttributes(
		attribute.Int("submission.id", int(job.SubmissionID)),
		attribute.Int("grading.files", len(job.FileRefs)),
	))
	defer span.End()

	logger := o.logger.With().
		Uint("submission_id", job.SubmissionID).
		Str("correlation_id", job.CorrelationID).
		Logger()

	start := o.now()
	outcome := o.run(ctx, job, logger, span)
	observability.GradingRuns().WithLabelValues(outcome).Inc()
	observability.GradingRunDuration().Observe(o.now().Sub(start).Seconds())
	span.SetAttributes(attribute.String("grading.outcome", outcome))
}

func (o *gradingOrchestrator) run(ctx context.Context, job GradingJob, logger zerolog.Logger, span trace.Span) string {
	submission, err := o.submissions.GetByID(ctx, job.SubmissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Info().Msg("submission no longer exists, grading aborted")
			return observability.OutcomeMissing
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		logger.Error().Err(err).Msg("failed to load submission for grading")
		return observability.OutcomeStoreError
	}

	if submission.HasAuthoritativeGrade() {
		logger.Info().Msg("submission already graded by teacher, grading skipped")
		o.publish(ctx, submission, dto.GradingEventSkipped, nil, "graded by teacher")
		return observability.OutcomeSkipped
	}

	revision := job.Revision
	if revision == 0 {
		revision = submission.Revision
	}
	if submission.Revision != revision {
		logger.Info().Uint("revision", submission.Revision).Msg("submission resubmitted since grading was scheduled, run dropped")
		o.publish(ctx, submission, dto.GradingEventSkipped, nil, "resubmitted")
		return observability.OutcomeStale
	}

	batch, err := o.materializer.EnsureAll(ctx, job.FileRefs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "materialize failed")
		logger.Error().Err(err).Msg("failed to prepare submission files for grading")
		o.publish(ctx, submission, dto.GradingEventFailed, nil, "files unavailable")
		return observability.OutcomeMaterialize
	}
	defer func() {
		if err := batch.Cleanup(); err != nil {
			logger.Warn().Err(err).Msg("failed to remove downloaded grading files")
		}
	}()

	result := o.bridge.Invoke(ctx, batch.Paths, job.AnswerKey)
	if !result.Usable() {
		logger.Warn().Msg("grader returned no usable score, submission left unchanged")
		o.publish(ctx, submission, dto.GradingEventFailed, nil, "grader returned no score")
		return observability.OutcomeUnusable
	}

	detail := result.Details
	if detail == nil {
		detail = map[string]interface{}{}
	}

	applied, err := o.submissions.ApplyAIResult(ctx, job.SubmissionID, repository.AIResult{
		Score:    *result.Score,
		Feedback: result.Comment,
		Detail:   detail,
		Revision: revision,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store failed")
		logger.Error().Err(err).Msg("failed to store grading result")
		return observability.OutcomeStoreError
	}
	if !applied {
		logger.Info().Msg("submission graded, resubmitted or removed during grading, result discarded")
		o.publish(ctx, submission, dto.GradingEventSkipped, nil, "submission changed")
		return observability.OutcomeSkipped
	}

	logger.Info().Float64("ai_score", *result.Score).Msg("submission graded")
	o.publish(ctx, submission, dto.GradingEventScored, result.Score, "")

	return observability.OutcomeScored
}

func (o *gradingOrchestrator) publish(ctx context.Context, submission models.Submission, eventType string, score *float64, reason string) {
	if o.events == nil {
		return
	}

	o.events.Publish(ctx, dto.GradingEvent{
		Type:         eventType,
		SubmissionID: submission.ID,
		AssignmentID: submission.AssignmentID,
		StudentID:    submission.StudentID,
		TeacherID:    submission.Assignment.TeacherID,
		Score:        score,
		Reason:       reason,
		OccurredAt:   o.now().UTC(),
	})
}
