package models

import "time"

const (
	// RoleTeacher owns classrooms and grades submissions.
	RoleTeacher = "teacher"
	// RoleStudent joins classrooms and submits work.
	RoleStudent = "student"
)

// User represents a teacher or student account.
type User struct {
	ID                  uint       `gorm:"primaryKey" json:"id"`
	Name                string     `gorm:"size:255;not null" json:"name"`
	Email               string     `gorm:"size:255;uniqueIndex;not null" json:"email"`
	PasswordHash        string     `gorm:"size:255;not null" json:"-"`
	Role                string     `gorm:"size:16;not null;index" json:"role"`
	IsVerified          bool       `json:"is_verified"`
	VerificationToken   string     `gorm:"size:64;index" json:"-"`
	ResetPasswordToken  string     `gorm:"size:64;index" json:"-"`
	ResetPasswordExpire *time.Time `json:"-"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// IsTeacher reports whether the account has the teacher role.
func (u User) IsTeacher() bool {
	return u.Role == RoleTeacher
}

// IsStudent reports whether the account has the student role.
func (u User) IsStudent() bool {
	return u.Role == RoleStudent
}
