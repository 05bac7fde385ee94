package models

import (
	"time"

	"gorm.io/datatypes"
)

// Submission holds a student's answer to an assignment.
//
// The AI fields are advisory and written only by the grading orchestrator.
// Grade, Feedback, GradedBy and GradedAt are written only by teachers; once
// GradedBy is set alongside Grade the AI fields are frozen. Revision grows
// with every resubmission so a grading run can tell its files are outdated.
type Submission struct {
	ID           uint              `gorm:"primaryKey" json:"id"`
	AssignmentID uint              `gorm:"not null;uniqueIndex:idx_submission_assignment_student" json:"assignment_id"`
	StudentID    uint              `gorm:"not null;uniqueIndex:idx_submission_assignment_student" json:"student_id"`
	Content      string            `gorm:"type:text" json:"content"`
	FileURLs     datatypes.JSON    `gorm:"type:json" json:"-"`
	AIScore      *float64          `json:"ai_score"`
	AIFeedback   *string           `gorm:"type:text" json:"ai_feedback"`
	AIDetail     datatypes.JSONMap `gorm:"column:ai_detail;type:json" json:"ai_detail"`
	Grade        *float64          `json:"grade"`
	Feedback     string            `gorm:"type:text" json:"feedback"`
	GradedBy     *uint             `json:"graded_by"`
	GradedAt     *time.Time        `json:"graded_at"`
	SubmittedAt  time.Time         `gorm:"not null" json:"submitted_at"`
	Revision     uint              `gorm:"not null;default:1" json:"-"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	Assignment   Assignment        `gorm:"foreignKey:AssignmentID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	Student      User              `gorm:"foreignKey:StudentID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

// HasAuthoritativeGrade reports whether a teacher grade is recorded.
func (s Submission) HasAuthoritativeGrade() bool {
	return s.Grade != nil && s.GradedBy != nil
}

// SetFileURLs stores the ordered list of file references.
func (s *Submission) SetFileURLs(urls []string) {
	s.FileURLs = encodeStringList(urls)
}

// FileURLList returns the ordered list of file references.
func (s Submission) FileURLList() []string {
	return decodeStringList(s.FileURLs)
}

// ResetAIResult clears every AI-derived field.
func (s *Submission) ResetAIResult() {
	s.AIScore = nil
	s.AIFeedback = nil
	s.AIDetail = nil
}
