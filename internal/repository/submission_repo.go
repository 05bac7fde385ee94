package repository

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/edumark-api/internal/models"
)

// authoritativeGradeAbsent matches rows a teacher has not graded yet.
const authoritativeGradeAbsent = "NOT (grade IS NOT NULL AND graded_by IS NOT NULL)"

// SubmissionFilter allows narrowing submission queries.
type SubmissionFilter struct {
	AssignmentID *uint
	StudentID    *uint
}

// AIResult is the advisory outcome written by the grading orchestrator.
// Revision, when set, is the submission revision the run graded.
type AIResult struct {
	Score    float64
	Feedback string
	Detail   map[string]interface{}
	Revision uint
}

// TeacherGrade is the authoritative grade recorded by a teacher.
type TeacherGrade struct {
	Grade    float64
	Feedback string
	GradedBy uint
	GradedAt time.Time
}

// SubmissionRepository defines data operations for submissions.
type SubmissionRepository interface {
	List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, error)
	GetByID(ctx context.Context, id uint) (models.Submission, error)
	GetByAssignmentAndStudent(ctx context.Context, assignmentID, studentID uint) (models.Submission, error)
	Create(ctx context.Context, submission *models.Submission) error
	Resubmit(ctx context.Context, submission *models.Submission) error
	ApplyAIResult(ctx context.Context, id uint, result AIResult) (bool, error)
	ApplyGrade(ctx context.Context, id uint, grade TeacherGrade) error
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Submission{}).
		Preload("Assignment").
		Preload("Student")
}

func (r *submissionRepository) List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, error) {
	query := r.baseQuery(ctx)

	if filter.AssignmentID != nil {
		query = query.Where("assignment_id = ?", *filter.AssignmentID)
	}

	if filter.StudentID != nil {
		query = query.Where("student_id = ?", *filter.StudentID)
	}

	var submissions []models.Submission
	if err := query.Order("submitted_at DESC").Find(&submissions).Error; err != nil {
		return nil, err
	}

	return submissions, nil
}

func (r *submissionRepository) GetByID(ctx context.Context, id uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.baseQuery(ctx).First(&submission, id).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) GetByAssignmentAndStudent(ctx context.Context, assignmentID, studentID uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.baseQuery(ctx).
		Where("assignment_id = ?", assignmentID).
		Where("student_id = ?", studentID).
		First(&submission).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	if submission.Revision == 0 {
		submission.Revision = 1
	}
	return r.db.WithContext(ctx).Omit("Assignment", "Student").Create(submission).Error
}

// Resubmit replaces the content and files of an existing submission, clears
// its AI fields and bumps its revision in one statement. Teacher grading
// columns are untouched.
func (r *submissionRepository) Resubmit(ctx context.Context, submission *models.Submission) error {
	tx := r.db.WithContext(ctx).
		Model(&models.Submission{}).
		Where("id = ?", submission.ID).
		Updates(map[string]interface{}{
			"content":      submission.Content,
			"file_urls":    submission.FileURLs,
			"submitted_at": submission.SubmittedAt,
			"ai_score":     nil,
			"ai_feedback":  nil,
			"ai_detail":    nil,
			"revision":     gorm.Expr("revision + 1"),
		})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	submission.ResetAIResult()
	submission.Revision++

	return nil
}

// ApplyAIResult writes the AI fields unless a teacher grade exists at write
// time or the submission moved past result.Revision. The returned flag
// reports whether a row was updated; a missing record is not an error.
func (r *submissionRepository) ApplyAIResult(ctx context.Context, id uint, result AIResult) (bool, error) {
	detail := datatypes.JSONMap(result.Detail)
	if detail == nil {
		detail = datatypes.JSONMap{}
	}

	query := r.db.WithContext(ctx).
		Model(&models.Submission{}).
		Where("id = ?", id).
		Where(authoritativeGradeAbsent)
	if result.Revision > 0 {
		query = query.Where("revision = ?", result.Revision)
	}

	tx := query.
		Updates(map[string]interface{}{
			"ai_score":    result.Score,
			"ai_feedback": result.Feedback,
			"ai_detail":   detail,
		})
	if tx.Error != nil {
		return false, tx.Error
	}

	return tx.RowsAffected > 0, nil
}

func (r *submissionRepository) ApplyGrade(ctx context.Context, id uint, grade TeacherGrade) error {
	tx := r.db.WithContext(ctx).
		Model(&models.Submission{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"grade":     grade.Grade,
			"feedback":  grade.Feedback,
			"graded_by": grade.GradedBy,
			"graded_at": grade.GradedAt,
		})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}
