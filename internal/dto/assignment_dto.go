package dto

import (
	"time"

	"github.com/noah-isme/edumark-api/internal/models"
)

// AssignmentCreateRequest describes the payload for creating a new assignment.
type AssignmentCreateRequest struct {
	Title            string   `json:"title" validate:"required,min=3,max=255"`
	Description      string   `json:"description" validate:"omitempty,max=10000"`
	Subject          string   `json:"subject" validate:"omitempty,max=128"`
	ClassroomID      uint     `json:"classroom_id" validate:"required,gt=0"`
	Deadline         string   `json:"deadline" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	AnswerKey        string   `json:"answer_key" validate:"omitempty,max=20000"`
	Attachments      []string `json:"attachments" validate:"omitempty,dive,url"`
	IsSubmitRequired *bool    `json:"is_submit_required"`
	AllowLate        *bool    `json:"allow_late"`
	ResubmitAllowed  *bool    `json:"resubmit_allowed"`
}

// AssignmentResponse is the serialized representation returned to API clients.
type AssignmentResponse struct {
	ID               uint       `json:"id"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	Subject          string     `json:"subject"`
	ClassroomID      uint       `json:"classroom_id"`
	TeacherID        uint       `json:"teacher_id"`
	Deadline         *time.Time `json:"deadline"`
	AnswerKey        string     `json:"answer_key,omitempty"`
	HasAnswerKey     bool       `json:"has_answer_key"`
	Attachments      []string   `json:"attachments"`
	IsSubmitRequired bool       `json:"is_submit_required"`
	AllowLate        bool       `json:"allow_late"`
	ResubmitAllowed  bool       `json:"resubmit_allowed"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// NewAssignmentResponse converts a model into a DTO. The answer key is only
// included when includeKey is set.
func NewAssignmentResponse(model models.Assignment, includeKey bool) AssignmentResponse {
	response := AssignmentResponse{
		ID:               model.ID,
		Title:            model.Title,
		Description:      model.Description,
		Subject:          model.Subject,
		ClassroomID:      model.ClassroomID,
		TeacherID:        model.TeacherID,
		Deadline:         model.Deadline,
		HasAnswerKey:     model.HasAnswerKey(),
		Attachments:      model.AttachmentList(),
		IsSubmitRequired: model.IsSubmitRequired,
		AllowLate:        model.AllowLate,
		ResubmitAllowed:  model.ResubmitAllowed,
		CreatedAt:        model.CreatedAt,
		UpdatedAt:        model.UpdatedAt,
	}
	if includeKey {
		response.AnswerKey = model.AnswerKey
	}
	return response
}

// NewAssignmentResponseSlice converts a slice of models into DTOs.
func NewAssignmentResponseSlice(assignments []models.Assignment, includeKey bool) []AssignmentResponse {
	responses := make([]AssignmentResponse, 0, len(assignments))
	for _, assignment := range assignments {
		responses = append(responses, NewAssignmentResponse(assignment, includeKey))
	}

	return responses
}

// ImportSkip explains why an archive folder produced no submission.
type ImportSkip struct {
	Folder string `json:"folder"`
	Reason string `json:"reason"`
}

// ImportResponse summarises a bulk archive import.
type ImportResponse struct {
	Created int          `json:"created"`
	Updated int          `json:"updated"`
	Total   int          `json:"total"`
	Skipped []ImportSkip `json:"skipped"`
}
