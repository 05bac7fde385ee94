package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/edumark-api/internal/models"
)

// ClassroomRepository defines persistence operations for classrooms.
type ClassroomRepository interface {
	Create(ctx context.Context, classroom *models.Classroom) error
	GetByID(ctx context.Context, id uint) (models.Classroom, error)
	ListByTeacher(ctx context.Context, teacherID uint) ([]models.Classroom, error)
	ListByStudent(ctx context.Context, studentID uint) ([]models.Classroom, error)
	AddStudent(ctx context.Context, classroomID uint, student models.User) error
}

type classroomRepository struct {
	db *gorm.DB
}

// NewClassroomRepository instantiates a GORM-backed repository.
func NewClassroomRepository(db *gorm.DB) ClassroomRepository {
	return &classroomRepository{db: db}
}

func (r *classroomRepository) Create(ctx context.Context, classroom *models.Classroom) error {
	return r.db.WithContext(ctx).Omit("Students").Create(classroom).Error
}

func (r *classroomRepository) GetByID(ctx context.Context, id uint) (models.Classroom, error) {
	var classroom models.Classroom
	if err := r.db.WithContext(ctx).Preload("Students").First(&classroom, id).Error; err != nil {
		return models.Classroom{}, err
	}

	return classroom, nil
}

func (r *classroomRepository) ListByTeacher(ctx context.Context, teacherID uint) ([]models.Classroom, error) {
	var classrooms []models.Classroom
	if err := r.db.WithContext(ctx).
		Preload("Students").
		Where("teacher_id = ?", teacherID).
		Order("created_at DESC").
		Find(&classrooms).Error; err != nil {
		return nil, err
	}

	return classrooms, nil
}

func (r *classroomRepository) ListByStudent(ctx context.Context, studentID uint) ([]models.Classroom, error) {
	var classrooms []models.Classroom
	if err := r.db.WithContext(ctx).
		Preload("Students").
		Joins("JOIN classroom_students ON classroom_students.classroom_id = classrooms.id").
		Where("classroom_students.user_id = ?", studentID).
		Order("classrooms.created_at DESC").
		Find(&classrooms).Error; err != nil {
		return nil, err
	}

	return classrooms, nil
}

func (r *classroomRepository) AddStudent(ctx context.Context, classroomID uint, student models.User) error {
	classroom := models.Classroom{ID: classroomID}
	return r.db.WithContext(ctx).Model(&classroom).Association("Students").Append(&student)
}
