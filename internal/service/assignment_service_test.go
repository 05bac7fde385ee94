package service

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edumark-api/internal/dto"
	"github.com/noah-isme/edumark-api/internal/models"
	"github.com/noah-isme/edumark-api/internal/repository"
)

func newAssignmentServiceForTest(t *testing.T) (AssignmentService, classFixture) {
	t.Helper()

	db := setupServiceDB(t)
	fixture := seedClassFixture(t, db)
	svc := NewAssignmentService(repository.NewAssignmentRepository(db), repository.NewClassroomRepository(db), newTestValidator(), zerolog.Nop())

	return svc, fixture
}

func TestAssignmentCreateAppliesDefaults(t *testing.T) {
	svc, fixture := newAssignmentServiceForTest(t)

	created, err := svc.Create(context.Background(), Actor{ID: fixture.teacher.ID, Role: models.RoleTeacher}, dto.AssignmentCreateRequest{
		Title:       "Ulangan Harian",
		ClassroomID: fixture.classroom.ID,
		Deadline:    "2026-11-01T10:00:00+07:00",
		AnswerKey:   " 1:A,2:B ",
		Attachments: []string{"https://cdn.test/soal.pdf"},
	})
	require.NoError(t, err)
	require.Equal(t, defaultSubject, created.Subject)
	require.True(t, created.IsSubmitRequired)
	require.False(t, created.AllowLate)
	require.True(t, created.ResubmitAllowed)
	require.Equal(t, "1:A,2:B", created.AnswerKey)
	require.True(t, created.HasAnswerKey)
	require.Equal(t, []string{"https://cdn.test/soal.pdf"}, created.Attachments)
	require.NotNil(t, created.Deadline)
	require.Equal(t, 3, created.Deadline.Hour())
}

func TestAssignmentCreateHonoursExplicitFlags(t *testing.T) {
	svc, fixture := newAssignmentServiceForTest(t)
	no := false
	yes := true

	created, err := svc.Create(context.Background(), Actor{ID: fixture.teacher.ID, Role: models.RoleTeacher}, dto.AssignmentCreateRequest{
		Title:            "Tugas Esai",
		ClassroomID:      fixture.classroom.ID,
		IsSubmitRequired: &no,
		AllowLate:        &yes,
		ResubmitAllowed:  &no,
	})
	require.NoError(t, err)
	require.False(t, created.IsSubmitRequired)
	require.True(t, created.AllowLate)
	require.False(t, created.ResubmitAllowed)
	require.False(t, created.HasAnswerKey)
}

func TestAssignmentCreateRequiresClassroomOwner(t *testing.T) {
	svc, fixture := newAssignmentServiceForTest(t)

	_, err := svc.Create(context.Background(), Actor{ID: fixture.student.ID, Role: models.RoleStudent}, dto.AssignmentCreateRequest{Title: "Quiz", ClassroomID: fixture.classroom.ID})
	require.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Create(context.Background(), Actor{ID: fixture.outsider.ID + 100, Role: models.RoleTeacher}, dto.AssignmentCreateRequest{Title: "Quiz", ClassroomID: fixture.classroom.ID})
	require.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Create(context.Background(), Actor{ID: fixture.teacher.ID, Role: models.RoleTeacher}, dto.AssignmentCreateRequest{Title: "Quiz", ClassroomID: 999})
	require.ErrorIs(t, err, ErrClassroomNotFound)
}

func TestAssignmentAnswerKeyHiddenFromStudents(t *testing.T) {
	svc, fixture := newAssignmentServiceForTest(t)

	asStudent, err := svc.Get(context.Background(), Actor{ID: fixture.student.ID, Role: models.RoleStudent}, fixture.assignment.ID)
	require.NoError(t, err)
	require.Empty(t, asStudent.AnswerKey)
	require.True(t, asStudent.HasAnswerKey)

	asTeacher, err := svc.Get(context.Background(), Actor{ID: fixture.teacher.ID, Role: models.RoleTeacher}, fixture.assignment.ID)
	require.NoError(t, err)
	require.Equal(t, "1:A,2:C", asTeacher.AnswerKey)

	_, err = svc.Get(context.Background(), Actor{ID: fixture.outsider.ID, Role: models.RoleStudent}, fixture.assignment.ID)
	require.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Get(context.Background(), Actor{ID: fixture.teacher.ID, Role: models.RoleTeacher}, 999)
	require.ErrorIs(t, err, ErrAssignmentNotFound)

	list, err := svc.ListByClassroom(context.Background(), Actor{ID: fixture.student.ID, Role: models.RoleStudent}, fixture.classroom.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Empty(t, list[0].AnswerKey)

	_, err = svc.ListByClassroom(context.Background(), Actor{ID: fixture.outsider.ID, Role: models.RoleStudent}, fixture.classroom.ID)
	require.ErrorIs(t, err, ErrForbidden)
}
