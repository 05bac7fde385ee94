package service

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/edumark-api/internal/dto"
	"github.com/noah-isme/edumark-api/internal/models"
	"github.com/noah-isme/edumark-api/internal/repository"
)

var (
	// ErrClassroomNotFound indicates the classroom does not exist.
	ErrClassroomNotFound = errors.New("classroom not found")
	// ErrNotAStudent indicates the account cannot be enrolled.
	ErrNotAStudent = errors.New("user is not a student")
)

// ClassroomService manages classrooms and enrollment.
type ClassroomService interface {
	Create(ctx context.Context, actor Actor, payload dto.ClassroomCreateRequest) (dto.ClassroomResponse, error)
	AddStudent(ctx context.Context, actor Actor, classroomID uint, payload dto.ClassroomAddStudentRequest) (dto.ClassroomResponse, bool, error)
	ListMine(ctx context.Context, actor Actor) ([]dto.ClassroomResponse, error)
	Get(ctx context.Context, actor Actor, classroomID uint) (dto.ClassroomResponse, error)
}

type classroomService struct {
	classrooms repository.ClassroomRepository
	users      repository.UserRepository
	validator  *validator.Validate
	logger     zerolog.Logger
}

// NewClassroomService constructs a ClassroomService.
func NewClassroomService(classrooms repository.ClassroomRepository, users repository.UserRepository, validate *validator.Validate, logger zerolog.Logger) ClassroomService {
	return &classroomService{
		classrooms: classrooms,
		users:      users,
		validator:  validate,
		logger:     logger.With().Str("component", "classroom_service").Logger(),
	}
}

func (s *classroomService) Create(ctx context.Context, actor Actor, payload dto.ClassroomCreateRequest) (dto.ClassroomResponse, error) {
	if !actor.IsTeacher() {
		return dto.ClassroomResponse{}, ErrForbidden
	}
	if err := s.validator.Struct(payload); err != nil {
		return dto.ClassroomResponse{}, err
	}

	classroom := models.Classroom{Name: sanitizeText(payload.Name), TeacherID: actor.ID}
	if err := s.classrooms.Create(ctx, &classroom); err != nil {
		return dto.ClassroomResponse{}, err
	}

	s.logger.Info().Uint("classroom_id", classroom.ID).Uint("teacher_id", actor.ID).Msg("classroom created")

	return dto.NewClassroomResponse(classroom), nil
}

// AddStudent enrolls a student by email. The flag reports whether the
// student was newly added.
func (s *classroomService) AddStudent(ctx context.Context, actor Actor, classroomID uint, payload dto.ClassroomAddStudentRequest) (dto.ClassroomResponse, bool, error) {
	payload.StudentEmail = normalizeEmail(payload.StudentEmail)
	if err := s.validator.Struct(payload); err != nil {
		return dto.ClassroomResponse{}, false, err
	}

	classroom, err := s.loadOwned(ctx, actor, classroomID)
	if err != nil {
		return dto.ClassroomResponse{}, false, err
	}

	student, err := s.users.GetByEmail(ctx, payload.StudentEmail)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ClassroomResponse{}, false, ErrUserNotFound
		}
		return dto.ClassroomResponse{}, false, err
	}
	if !student.IsStudent() {
		return dto.ClassroomResponse{}, false, ErrNotAStudent
	}

	if classroom.HasStudent(student.ID) {
		return dto.NewClassroomResponse(classroom), false, nil
	}

	if err := s.classrooms.AddStudent(ctx, classroom.ID, student); err != nil {
		return dto.ClassroomResponse{}, false, err
	}

	classroom.Students = append(classroom.Students, student)
	s.logger.Info().Uint("classroom_id", classroom.ID).Uint("student_id", student.ID).Msg("student enrolled")

	return dto.NewClassroomResponse(classroom), true, nil
}

func (s *classroomService) ListMine(ctx context.Context, actor Actor) ([]dto.ClassroomResponse, error) {
	var (
		classrooms []models.Classroom
		err        error
	)
	if actor.IsTeacher() {
		classrooms, err = s.classrooms.ListByTeacher(ctx, actor.ID)
	} else {
		classrooms, err = s.classrooms.ListByStudent(ctx, actor.ID)
	}
	if err != nil {
		return nil, err
	}

	return dto.NewClassroomResponseSlice(classrooms), nil
}

func (s *classroomService) Get(ctx context.Context, actor Actor, classroomID uint) (dto.ClassroomResponse, error) {
	classroom, err := s.load(ctx, classroomID)
	if err != nil {
		return dto.ClassroomResponse{}, err
	}
	if !classroom.CanAccess(actor.ID) {
		return dto.ClassroomResponse{}, ErrForbidden
	}

	return dto.NewClassroomResponse(classroom), nil
}

func (s *classroomService) load(ctx context.Context, id uint) (models.Classroom, error) {
	classroom, err := s.classrooms.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Classroom{}, ErrClassroomNotFound
		}
		return models.Classroom{}, err
	}
	return classroom, nil
}

func (s *classroomService) loadOwned(ctx context.Context, actor Actor, id uint) (models.Classroom, error) {
	if !actor.IsTeacher() {
		return models.Classroom{}, ErrForbidden
	}

	classroom, err := s.load(ctx, id)
	if err != nil {
		return models.Classroom{}, err
	}
	if classroom.TeacherID != actor.ID {
		return models.Classroom{}, ErrForbidden
	}

	return classroom, nil
}
