package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/edumark-api/internal/dto"
	"github.com/noah-isme/edumark-api/internal/models"
	"github.com/noah-isme/edumark-api/internal/repository"
)

const defaultSubject = "Other"

// ErrAssignmentNotFound indicates the assignment does not exist.
var ErrAssignmentNotFound = errors.New("assignment not found")

// AssignmentService handles assignment authoring and lookup.
type AssignmentService interface {
	Create(ctx context.Context, actor Actor, payload dto.AssignmentCreateRequest) (dto.AssignmentResponse, error)
	ListByClassroom(ctx context.Context, actor Actor, classroomID uint) ([]dto.AssignmentResponse, error)
	Get(ctx context.Context, actor Actor, id uint) (dto.AssignmentResponse, error)
}

type assignmentService struct {
	assignments repository.AssignmentRepository
	classrooms  repository.ClassroomRepository
	validator   *validator.Validate
	logger      zerolog.Logger
}

// NewAssignmentService constructs an AssignmentService.
func NewAssignmentService(assignments repository.AssignmentRepository, classrooms repository.ClassroomRepository, validate *validator.Validate, logger zerolog.Logger) AssignmentService {
	return &assignmentService{
		assignments: assignments,
		classrooms:  classrooms,
		validator:   validate,
		logger:      logger.With().Str("component", "assignment_service").Logger(),
	}
}

func (s *assignmentService) Create(ctx context.Context, actor Actor, payload dto.AssignmentCreateRequest) (dto.AssignmentResponse, error) {
	if !actor.IsTeacher() {
		return dto.AssignmentResponse{}, ErrForbidden
	}
	if err := s.validator.Struct(payload); err != nil {
		return dto.AssignmentResponse{}, err
	}

	classroom, err := s.loadClassroom(ctx, payload.ClassroomID)
	if err != nil {
		return dto.AssignmentResponse{}, err
	}
	if classroom.TeacherID != actor.ID {
		return dto.AssignmentResponse{}, ErrForbidden
	}

	subject := sanitizeText(payload.Subject)
	if subject == "" {
		subject = defaultSubject
	}

	assignment := models.Assignment{
		Title:            sanitizeText(payload.Title),
		Description:      sanitizeText(payload.Description),
		Subject:          subject,
		ClassroomID:      classroom.ID,
		TeacherID:        actor.ID,
		AnswerKey:        strings.TrimSpace(payload.AnswerKey),
		IsSubmitRequired: boolOrDefault(payload.IsSubmitRequired, true),
		AllowLate:        boolOrDefault(payload.AllowLate, false),
		ResubmitAllowed:  boolOrDefault(payload.ResubmitAllowed, true),
	}
	assignment.SetAttachments(payload.Attachments)

	if deadline := strings.TrimSpace(payload.Deadline); deadline != "" {
		parsed, err := time.Parse(time.RFC3339, deadline)
		if err != nil {
			return dto.AssignmentResponse{}, err
		}
		parsed = parsed.UTC()
		assignment.Deadline = &parsed
	}

	if err := s.assignments.Create(ctx, &assignment); err != nil {
		return dto.AssignmentResponse{}, err
	}

	s.logger.Info().Uint("assignment_id", assignment.ID).Uint("classroom_id", classroom.ID).Msg("assignment created")

	return dto.NewAssignmentResponse(assignment, true), nil
}

func (s *assignmentService) ListByClassroom(ctx context.Context, actor Actor, classroomID uint) ([]dto.AssignmentResponse, error) {
	classroom, err := s.loadClassroom(ctx, classroomID)
	if err != nil {
		return nil, err
	}
	if !classroom.CanAccess(actor.ID) {
		return nil, ErrForbidden
	}

	assignments, err := s.assignments.ListByClassroom(ctx, classroomID)
	if err != nil {
		return nil, err
	}

	return dto.NewAssignmentResponseSlice(assignments, classroom.TeacherID == actor.ID), nil
}

func (s *assignmentService) Get(ctx context.Context, actor Actor, id uint) (dto.AssignmentResponse, error) {
	assignment, err := s.assignments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AssignmentResponse{}, ErrAssignmentNotFound
		}
		return dto.AssignmentResponse{}, err
	}

	if !assignment.Classroom.CanAccess(actor.ID) {
		return dto.AssignmentResponse{}, ErrForbidden
	}

	return dto.NewAssignmentResponse(assignment, assignment.TeacherID == actor.ID), nil
}

func (s *assignmentService) loadClassroom(ctx context.Context, id uint) (models.Classroom, error) {
	classroom, err := s.classrooms.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Classroom{}, ErrClassroomNotFound
		}
		return models.Classroom{}, err
	}
	return classroom, nil
}

func boolOrDefault(value *bool, fallback bool) bool {
	if value == nil {
		return fallback
	}
	return *value
}
