package service

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edumark-api/internal/dto"
	"github.com/noah-isme/edumark-api/internal/models"
	"github.com/noah-isme/edumark-api/internal/repository"
)

func TestClassroomCreateRequiresTeacher(t *testing.T) {
	db := setupServiceDB(t)
	fixture := seedClassFixture(t, db)
	svc := NewClassroomService(repository.NewClassroomRepository(db), repository.NewUserRepository(db), newTestValidator(), zerolog.Nop())

	_, err := svc.Create(context.Background(), Actor{ID: fixture.student.ID, Role: models.RoleStudent}, dto.ClassroomCreateRequest{Name: "Fisika"})
	require.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Create(context.Background(), Actor{ID: fixture.teacher.ID, Role: models.RoleTeacher}, dto.ClassroomCreateRequest{Name: ""})
	var validationErrs validator.ValidationErrors
	require.ErrorAs(t, err, &validationErrs)

	created, err := svc.Create(context.Background(), Actor{ID: fixture.teacher.ID, Role: models.RoleTeacher}, dto.ClassroomCreateRequest{Name: "<b>Fisika</b> 11"})
	require.NoError(t, err)
	require.Equal(t, "Fisika 11", created.Name)
	require.Equal(t, fixture.teacher.ID, created.TeacherID)
	require.Empty(t, created.Students)
}

func TestClassroomAddStudent(t *testing.T) {
	db := setupServiceDB(t)
	fixture := seedClassFixture(t, db)
	svc := NewClassroomService(repository.NewClassroomRepository(db), repository.NewUserRepository(db), newTestValidator(), zerolog.Nop())
	teacher := Actor{ID: fixture.teacher.ID, Role: models.RoleTeacher}

	resp, added, err := svc.AddStudent(context.Background(), teacher, fixture.classroom.ID, dto.ClassroomAddStudentRequest{StudentEmail: "rina@school.test"})
	require.NoError(t, err)
	require.True(t, added)
	require.Len(t, resp.Students, 2)

	_, added, err = svc.AddStudent(context.Background(), teacher, fixture.classroom.ID, dto.ClassroomAddStudentRequest{StudentEmail: "RINA@school.test"})
	require.NoError(t, err)
	require.False(t, added)

	_, _, err = svc.AddStudent(context.Background(), teacher, fixture.classroom.ID, dto.ClassroomAddStudentRequest{StudentEmail: "sari@school.test"})
	require.ErrorIs(t, err, ErrNotAStudent)

	_, _, err = svc.AddStudent(context.Background(), teacher, fixture.classroom.ID, dto.ClassroomAddStudentRequest{StudentEmail: "ghost@school.test"})
	require.ErrorIs(t, err, ErrUserNotFound)

	_, _, err = svc.AddStudent(context.Background(), teacher, 999, dto.ClassroomAddStudentRequest{StudentEmail: "rina@school.test"})
	require.ErrorIs(t, err, ErrClassroomNotFound)

	other := models.User{Name: "Pak Joko", Email: "joko@school.test", PasswordHash: "x", Role: models.RoleTeacher}
	require.NoError(t, db.Create(&other).Error)
	_, _, err = svc.AddStudent(context.Background(), Actor{ID: other.ID, Role: models.RoleTeacher}, fixture.classroom.ID, dto.ClassroomAddStudentRequest{StudentEmail: "rina@school.test"})
	require.ErrorIs(t, err, ErrForbidden)
}

func TestClassroomAccessRules(t *testing.T) {
	db := setupServiceDB(t)
	fixture := seedClassFixture(t, db)
	svc := NewClassroomService(repository.NewClassroomRepository(db), repository.NewUserRepository(db), newTestValidator(), zerolog.Nop())

	_, err := svc.Get(context.Background(), Actor{ID: fixture.student.ID, Role: models.RoleStudent}, fixture.classroom.ID)
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), Actor{ID: fixture.outsider.ID, Role: models.RoleStudent}, fixture.classroom.ID)
	require.ErrorIs(t, err, ErrForbidden)

	mine, err := svc.ListMine(context.Background(), Actor{ID: fixture.student.ID, Role: models.RoleStudent})
	require.NoError(t, err)
	require.Len(t, mine, 1)

	mine, err = svc.ListMine(context.Background(), Actor{ID: fixture.teacher.ID, Role: models.RoleTeacher})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.Equal(t, "Budi Santoso", mine[0].Students[0].Name)
}
