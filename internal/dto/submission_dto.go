package dto

import (
	"time"

	"github.com/noah-isme/edumark-api/internal/models"
)

// SubmissionCreateRequest describes the multipart payload for a first submission.
type SubmissionCreateRequest struct {
	AssignmentID uint   `form:"assignment_id" validate:"required,gt=0"`
	Content      string `form:"content" validate:"omitempty,max=20000"`
	FileURL      string `form:"file_url" validate:"omitempty,url"`
}

// SubmissionUpdateRequest describes the multipart payload for a resubmission.
type SubmissionUpdateRequest struct {
	Content string `form:"content" validate:"omitempty,max=20000"`
	FileURL string `form:"file_url" validate:"omitempty,url"`
}

// SubmissionGradeRequest records a teacher grade.
type SubmissionGradeRequest struct {
	Grade    *float64 `json:"grade" validate:"required,gte=0,lte=100"`
	Feedback string   `json:"feedback" validate:"omitempty,max=10000"`
}

// SubmissionResponse is returned to API clients when viewing submissions.
type SubmissionResponse struct {
	ID           uint                   `json:"id"`
	AssignmentID uint                   `json:"assignment_id"`
	StudentID    uint                   `json:"student_id"`
	Content      string                 `json:"content"`
	FileURLs     []string               `json:"file_urls"`
	AIScore      *float64               `json:"ai_score"`
	AIFeedback   *string                `json:"ai_feedback"`
	AIDetail     map[string]interface{} `json:"ai_detail"`
	Grade        *float64               `json:"grade"`
	Feedback     string                 `json:"feedback"`
	GradedBy     *uint                  `json:"graded_by"`
	GradedAt     *time.Time             `json:"graded_at"`
	SubmittedAt  time.Time              `json:"submitted_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
	Assignment   *AssignmentLite        `json:"assignment,omitempty"`
	Student      *UserLite              `json:"student,omitempty"`
}

// AssignmentLite summarizes an assignment in submission responses.
type AssignmentLite struct {
	ID       uint       `json:"id"`
	Title    string     `json:"title"`
	Deadline *time.Time `json:"deadline"`
}

// NewSubmissionResponse converts a Submission model into a DTO.
func NewSubmissionResponse(model models.Submission) SubmissionResponse {
	response := SubmissionResponse{
		ID:           model.ID,
		AssignmentID: model.AssignmentID,
		StudentID:    model.StudentID,
		Content:      model.Content,
		FileURLs:     model.FileURLList(),
		AIScore:      model.AIScore,
		AIFeedback:   model.AIFeedback,
		Grade:        model.Grade,
		Feedback:     model.Feedback,
		GradedBy:     model.GradedBy,
		GradedAt:     model.GradedAt,
		SubmittedAt:  model.SubmittedAt,
		UpdatedAt:    model.UpdatedAt,
	}

	if model.AIDetail != nil {
		response.AIDetail = map[string]interface{}(model.AIDetail)
	}

	if model.Assignment.ID != 0 {
		response.Assignment = &AssignmentLite{
			ID:       model.Assignment.ID,
			Title:    model.Assignment.Title,
			Deadline: model.Assignment.Deadline,
		}
	}

	if model.Student.ID != 0 {
		student := newUserLite(model.Student)
		response.Student = &student
	}

	return response
}

// NewSubmissionResponseSlice converts submission models into DTOs.
func NewSubmissionResponseSlice(submissions []models.Submission) []SubmissionResponse {
	responses := make([]SubmissionResponse, 0, len(submissions))
	for _, submission := range submissions {
		responses = append(responses, NewSubmissionResponse(submission))
	}

	return responses
}
