package models

import "time"

// Classroom groups students under a single teacher.
type Classroom struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	TeacherID uint      `gorm:"not null;index" json:"teacher_id"`
	Teacher   User      `gorm:"foreignKey:TeacherID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	Students  []User    `gorm:"many2many:classroom_students;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasStudent reports whether the loaded student list contains the given user.
func (c Classroom) HasStudent(userID uint) bool {
	for _, student := range c.Students {
		if student.ID == userID {
			return true
		}
	}
	return false
}

// CanAccess reports whether the user may read the classroom and its assignments.
func (c Classroom) CanAccess(userID uint) bool {
	return c.TeacherID == userID || c.HasStudent(userID)
}
