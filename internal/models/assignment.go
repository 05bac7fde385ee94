package models

import (
	"encoding/json"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// Assignment is a task published to a classroom. The answer key is the
// rubric handed to the automatic grader.
type Assignment struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	Title            string         `gorm:"size:255;not null" json:"title"`
	Description      string         `gorm:"type:text" json:"description"`
	Subject          string         `gorm:"size:128" json:"subject"`
	ClassroomID      uint           `gorm:"not null;index" json:"classroom_id"`
	TeacherID        uint           `gorm:"not null;index" json:"teacher_id"`
	Deadline         *time.Time     `json:"deadline"`
	AnswerKey        string         `gorm:"type:text" json:"-"`
	Attachments      datatypes.JSON `gorm:"type:json" json:"-"`
	IsSubmitRequired bool           `gorm:"not null" json:"is_submit_required"`
	AllowLate        bool           `gorm:"not null" json:"allow_late"`
	ResubmitAllowed  bool           `gorm:"not null" json:"resubmit_allowed"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	Classroom        Classroom      `gorm:"foreignKey:ClassroomID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

// HasAnswerKey reports whether automatic grading can run for this assignment.
func (a Assignment) HasAnswerKey() bool {
	return strings.TrimSpace(a.AnswerKey) != ""
}

// IsPastDue returns true when the assignment deadline has already passed.
func (a Assignment) IsPastDue(reference time.Time) bool {
	return a.Deadline != nil && reference.After(*a.Deadline)
}

// AcceptsSubmissionAt reports whether a submission made at reference is allowed.
func (a Assignment) AcceptsSubmissionAt(reference time.Time) bool {
	return a.AllowLate || !a.IsPastDue(reference)
}

// SetAttachments serializes the attachment URLs into the JSON storage column.
func (a *Assignment) SetAttachments(urls []string) {
	a.Attachments = encodeStringList(urls)
}

// AttachmentList returns the stored attachment URLs.
func (a Assignment) AttachmentList() []string {
	return decodeStringList(a.Attachments)
}

func encodeStringList(values []string) datatypes.JSON {
	if values == nil {
		values = []string{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return datatypes.JSON([]byte("[]"))
	}
	return datatypes.JSON(data)
}

func decodeStringList(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return []string{}
	}

	var values []string
	if err := json.Unmarshal(raw, &values); err != nil || values == nil {
		return []string{}
	}

	return values
}
