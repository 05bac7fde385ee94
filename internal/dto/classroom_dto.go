package dto

import (
	"time"

	"github.com/noah-isme/edumark-api/internal/models"
)

// ClassroomCreateRequest creates a classroom owned by the caller.
type ClassroomCreateRequest struct {
	Name string `json:"name" validate:"required,min=2,max=255"`
}

// ClassroomAddStudentRequest enrolls a student by email.
type ClassroomAddStudentRequest struct {
	StudentEmail string `json:"student_email" validate:"required,email"`
}

// ClassroomResponse is the serialized representation of a classroom.
type ClassroomResponse struct {
	ID        uint       `json:"id"`
	Name      string     `json:"name"`
	TeacherID uint       `json:"teacher_id"`
	Students  []UserLite `json:"students"`
	CreatedAt time.Time  `json:"created_at"`
}

// NewClassroomResponse converts a model into a DTO.
func NewClassroomResponse(model models.Classroom) ClassroomResponse {
	students := make([]UserLite, 0, len(model.Students))
	for _, student := range model.Students {
		students = append(students, newUserLite(student))
	}

	return ClassroomResponse{
		ID:        model.ID,
		Name:      model.Name,
		TeacherID: model.TeacherID,
		Students:  students,
		CreatedAt: model.CreatedAt,
	}
}

// NewClassroomResponseSlice converts classroom models into DTOs.
func NewClassroomResponseSlice(classrooms []models.Classroom) []ClassroomResponse {
	responses := make([]ClassroomResponse, 0, len(classrooms))
	for _, classroom := range classrooms {
		responses = append(responses, NewClassroomResponse(classroom))
	}
	return responses
}
