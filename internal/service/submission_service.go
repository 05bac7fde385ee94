package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/edumark-api/internal/dto"
	"github.com/noah-isme/edumark-api/internal/middleware"
	"github.com/noah-isme/edumark-api/internal/models"
	"github.com/noah-isme/edumark-api/internal/repository"
)

var (
	// ErrSubmissionNotFound indicates a submission could not be found.
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrAlreadySubmitted indicates the student already submitted this assignment.
	ErrAlreadySubmitted = errors.New("assignment already submitted")
	// ErrDeadlinePassed indicates the deadline passed and late work is not accepted.
	ErrDeadlinePassed = errors.New("assignment deadline has passed")
	// ErrResubmitNotAllowed indicates the assignment forbids resubmission.
	ErrResubmitNotAllowed = errors.New("resubmission is not allowed for this assignment")
	// ErrEmptySubmission indicates neither content nor files were provided.
	ErrEmptySubmission = errors.New("submission requires content or at least one file")
)

// UploadFile is one incoming image attached to a submission.
type UploadFile struct {
	Name   string
	Reader io.Reader
}

// SubmissionResult is the persisted submission plus the grading job the
// caller must schedule after responding, if any.
type SubmissionResult struct {
	Submission dto.SubmissionResponse
	Grading    *GradingJob
}

// SubmissionService orchestrates submission workflows.
type SubmissionService interface {
	Create(ctx context.Context, actor Actor, payload dto.SubmissionCreateRequest, files []UploadFile) (SubmissionResult, error)
	Update(ctx context.Context, actor Actor, id uint, payload dto.SubmissionUpdateRequest, files []UploadFile) (SubmissionResult, error)
	ListMine(ctx context.Context, actor Actor) ([]dto.SubmissionResponse, error)
	ListByAssignment(ctx context.Context, actor Actor, assignmentID uint) ([]dto.SubmissionResponse, error)
	Get(ctx context.Context, actor Actor, id uint) (dto.SubmissionResponse, error)
	Grade(ctx context.Context, actor Actor, id uint, payload dto.SubmissionGradeRequest) (dto.SubmissionResponse, error)
}

type submissionService struct {
	submissions repository.SubmissionRepository
	assignments repository.AssignmentRepository
	validator   *validator.Validate
	images      FileStorage
	folder      string
	events      GradingEventPublisher
	logger      zerolog.Logger
	now         func() time.Time
}

// NewSubmissionService constructs a SubmissionService. events may be nil.
func NewSubmissionService(subRepo repository.SubmissionRepository, assignmentRepo repository.AssignmentRepository, validate *validator.Validate, images FileStorage, folder string, events GradingEventPublisher, logger zerolog.Logger) SubmissionService {
	return &submissionService{
		submissions: subRepo,
		assignments: assignmentRepo,
		validator:   validate,
		images:      images,
		folder:      folder,
		events:      events,
		logger:      logger.With().Str("component", "submission_service").Logger(),
		now:         time.Now,
	}
}

func (s *submissionService) Create(ctx context.Context, actor Actor, payload dto.SubmissionCreateRequest, files []UploadFile) (SubmissionResult, error) {
	if !actor.IsStudent() {
		return SubmissionResult{}, ErrForbidden
	}
	if err := s.validator.Struct(payload); err != nil {
		return SubmissionResult{}, err
	}

	assignment, err := s.loadAssignment(ctx, payload.AssignmentID)
	if err != nil {
		return SubmissionResult{}, err
	}
	if !assignment.Classroom.HasStudent(actor.ID) {
		return SubmissionResult{}, ErrForbidden
	}

	if _, err := s.submissions.GetByAssignmentAndStudent(ctx, assignment.ID, actor.ID); err == nil {
		return SubmissionResult{}, ErrAlreadySubmitted
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return SubmissionResult{}, err
	}

	now := s.now()
	if !assignment.AcceptsSubmissionAt(now) {
		return SubmissionResult{}, ErrDeadlinePassed
	}

	content := sanitizeText(payload.Content)
	if content == "" && len(files) == 0 && strings.TrimSpace(payload.FileURL) == "" {
		return SubmissionResult{}, ErrEmptySubmission
	}

	refs, err := s.uploadAll(ctx, files)
	if err != nil {
		return SubmissionResult{}, err
	}
	if fileURL := strings.TrimSpace(payload.FileURL); fileURL != "" {
		refs = append(refs, fileURL)
	}

	submission := models.Submission{
		AssignmentID: assignment.ID,
		StudentID:    actor.ID,
		Content:      content,
		SubmittedAt:  now,
	}
	submission.SetFileURLs(refs)

	if err := s.submissions.Create(ctx, &submission); err != nil {
		return SubmissionResult{}, err
	}

	created, err := s.submissions.GetByID(ctx, submission.ID)
	if err != nil {
		return SubmissionResult{}, err
	}

	s.logger.Info().Uint("submission_id", created.ID).Int("files", len(refs)).Msg("submission created")

	return SubmissionResult{
		Submission: dto.NewSubmissionResponse(created),
		Grading:    gradingJobFor(ctx, created, refs, assignment),
	}, nil
}

// Update replaces the submission's content and files. Files are replaced only
// when new ones are supplied; AI fields are always cleared.
func (s *submissionService) Update(ctx context.Context, actor Actor, id uint, payload dto.SubmissionUpdateRequest, files []UploadFile) (SubmissionResult, error) {
	if err := s.validator.Struct(payload); err != nil {
		return SubmissionResult{}, err
	}

	submission, err := s.loadSubmission(ctx, id)
	if err != nil {
		return SubmissionResult{}, err
	}
	if submission.StudentID != actor.ID {
		return SubmissionResult{}, ErrForbidden
	}

	assignment, err := s.loadAssignment(ctx, submission.AssignmentID)
	if err != nil {
		return SubmissionResult{}, err
	}
	if !assignment.ResubmitAllowed {
		return SubmissionResult{}, ErrResubmitNotAllowed
	}

	now := s.now()
	if !assignment.AcceptsSubmissionAt(now) {
		return SubmissionResult{}, ErrDeadlinePassed
	}

	newRefs, err := s.uploadAll(ctx, files)
	if err != nil {
		return SubmissionResult{}, err
	}
	if fileURL := strings.TrimSpace(payload.FileURL); fileURL != "" {
		newRefs = append(newRefs, fileURL)
	}

	if content := sanitizeText(payload.Content); content != "" {
		submission.Content = content
	}
	if len(newRefs) > 0 {
		submission.SetFileURLs(newRefs)
	}
	submission.SubmittedAt = now

	if err := s.submissions.Resubmit(ctx, &submission); err != nil {
		return SubmissionResult{}, err
	}

	updated, err := s.submissions.GetByID(ctx, submission.ID)
	if err != nil {
		return SubmissionResult{}, err
	}

	s.logger.Info().Uint("submission_id", updated.ID).Int("new_files", len(newRefs)).Msg("submission resubmitted")

	return SubmissionResult{
		Submission: dto.NewSubmissionResponse(updated),
		Grading:    gradingJobFor(ctx, updated, newRefs, assignment),
	}, nil
}

func (s *submissionService) ListMine(ctx context.Context, actor Actor) ([]dto.SubmissionResponse, error) {
	studentID := actor.ID
	submissions, err := s.submissions.List(ctx, repository.SubmissionFilter{StudentID: &studentID})
	if err != nil {
		return nil, err
	}

	return dto.NewSubmissionResponseSlice(submissions), nil
}

func (s *submissionService) ListByAssignment(ctx context.Context, actor Actor, assignmentID uint) ([]dto.SubmissionResponse, error) {
	assignment, err := s.loadAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if assignment.TeacherID != actor.ID {
		return nil, ErrForbidden
	}

	submissions, err := s.submissions.List(ctx, repository.SubmissionFilter{AssignmentID: &assignmentID})
	if err != nil {
		return nil, err
	}

	return dto.NewSubmissionResponseSlice(submissions), nil
}

func (s *submissionService) Get(ctx context.Context, actor Actor, id uint) (dto.SubmissionResponse, error) {
	submission, err := s.loadSubmission(ctx, id)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	if submission.StudentID != actor.ID && submission.Assignment.TeacherID != actor.ID {
		return dto.SubmissionResponse{}, ErrForbidden
	}

	return dto.NewSubmissionResponse(submission), nil
}

// Grade records the authoritative teacher grade. From then on AI results are
// never written to the submission.
func (s *submissionService) Grade(ctx context.Context, actor Actor, id uint, payload dto.SubmissionGradeRequest) (dto.SubmissionResponse, error) {
	if !actor.IsTeacher() {
		return dto.SubmissionResponse{}, ErrForbidden
	}
	if err := s.validator.Struct(payload); err != nil {
		return dto.SubmissionResponse{}, err
	}

	submission, err := s.loadSubmission(ctx, id)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}
	if submission.Assignment.TeacherID != actor.ID {
		return dto.SubmissionResponse{}, ErrForbidden
	}

	gradedAt := s.now().UTC()
	if err := s.submissions.ApplyGrade(ctx, submission.ID, repository.TeacherGrade{
		Grade:    *payload.Grade,
		Feedback: sanitizeText(payload.Feedback),
		GradedBy: actor.ID,
		GradedAt: gradedAt,
	}); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		return dto.SubmissionResponse{}, err
	}

	graded, err := s.loadSubmission(ctx, submission.ID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	if s.events != nil {
		s.events.Publish(ctx, dto.GradingEvent{
			Type:         dto.GradingEventGraded,
			SubmissionID: graded.ID,
			AssignmentID: graded.AssignmentID,
			StudentID:    graded.StudentID,
			TeacherID:    actor.ID,
			Score:        graded.Grade,
			OccurredAt:   gradedAt,
		})
	}

	s.logger.Info().Uint("submission_id", graded.ID).Uint("teacher_id", actor.ID).Msg("submission graded by teacher")

	return dto.NewSubmissionResponse(graded), nil
}

func (s *submissionService) uploadAll(ctx context.Context, files []UploadFile) ([]string, error) {
	refs := make([]string, 0, len(files))
	for _, file := range files {
		ref, err := s.images.Upload(ctx, s.folder, file.Name, file.Reader)
		if err != nil {
			return nil, fmt.Errorf("upload %s: %w", file.Name, err)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func (s *submissionService) loadAssignment(ctx context.Context, id uint) (models.Assignment, error) {
	assignment, err := s.assignments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Assignment{}, ErrAssignmentNotFound
		}
		return models.Assignment{}, err
	}
	return assignment, nil
}

func (s *submissionService) loadSubmission(ctx context.Context, id uint) (models.Submission, error) {
	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Submission{}, ErrSubmissionNotFound
		}
		return models.Submission{}, err
	}
	return submission, nil
}

// gradingJobFor returns nil when there is nothing to grade or nothing to
// grade against.
func gradingJobFor(ctx context.Context, submission models.Submission, refs []string, assignment models.Assignment) *GradingJob {
	if len(refs) == 0 || !assignment.HasAnswerKey() {
		return nil
	}

	return &GradingJob{
		SubmissionID:  submission.ID,
		Revision:      submission.Revision,
		FileRefs:      append([]string(nil), refs...),
		AnswerKey:     assignment.AnswerKey,
		CorrelationID: middleware.CorrelationIDFromContext(ctx),
	}
}
