package dto

import "time"

// Grading event types pushed to connected clients.
const (
	GradingEventScored  = "grading.scored"
	GradingEventSkipped = "grading.skipped"
	GradingEventFailed  = "grading.failed"
	GradingEventGraded  = "submission.graded"
)

// GradingEvent notifies the student and teacher about a submission's grading state.
type GradingEvent struct {
	Type         string    `json:"type"`
	SubmissionID uint      `json:"submission_id"`
	AssignmentID uint      `json:"assignment_id"`
	StudentID    uint      `json:"student_id"`
	TeacherID    uint      `json:"teacher_id"`
	Score        *float64  `json:"score,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// Recipients lists the user ids that should receive the event.
func (e GradingEvent) Recipients() []uint {
	recipients := make([]uint, 0, 2)
	if e.StudentID != 0 {
		recipients = append(recipients, e.StudentID)
	}
	if e.TeacherID != 0 && e.TeacherID != e.StudentID {
		recipients = append(recipients, e.TeacherID)
	}
	return recipients
}
