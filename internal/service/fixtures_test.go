package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/edumark-api/internal/dto"
	"github.com/noah-isme/edumark-api/internal/models"
	"github.com/noah-isme/edumark-api/pkg/grader"
	"github.com/noah-isme/edumark-api/pkg/materialize"
)

func setupServiceDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Classroom{}, &models.Assignment{}, &models.Submission{}))

	return db
}

func newTestValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

type classFixture struct {
	teacher    models.User
	student    models.User
	outsider   models.User
	classroom  models.Classroom
	assignment models.Assignment
}

func seedClassFixture(t *testing.T, db *gorm.DB) classFixture {
	t.Helper()

	teacher := models.User{Name: "Bu Sari", Email: "sari@school.test", PasswordHash: "x", Role: models.RoleTeacher}
	require.NoError(t, db.Create(&teacher).Error)
	student := models.User{Name: "Budi Santoso", Email: "budi@school.test", PasswordHash: "x", Role: models.RoleStudent}
	require.NoError(t, db.Create(&student).Error)
	outsider := models.User{Name: "Rina", Email: "rina@school.test", PasswordHash: "x", Role: models.RoleStudent}
	require.NoError(t, db.Create(&outsider).Error)

	classroom := models.Classroom{Name: "Matematika 10A", TeacherID: teacher.ID}
	require.NoError(t, db.Create(&classroom).Error)
	require.NoError(t, db.Model(&classroom).Association("Students").Append(&student))

	assignment := models.Assignment{
		Title:            "Latihan Pecahan",
		ClassroomID:      classroom.ID,
		TeacherID:        teacher.ID,
		AnswerKey:        "1:A,2:C",
		IsSubmitRequired: true,
		ResubmitAllowed:  true,
	}
	require.NoError(t, db.Create(&assignment).Error)

	return classFixture{teacher: teacher, student: student, outsider: outsider, classroom: classroom, assignment: assignment}
}

func seedSubmission(t *testing.T, db *gorm.DB, fixture classFixture, files ...string) models.Submission {
	t.Helper()

	submission := models.Submission{
		AssignmentID: fixture.assignment.ID,
		StudentID:    fixture.student.ID,
		Content:      "jawaban",
		SubmittedAt:  time.Now(),
	}
	submission.SetFileURLs(files)
	require.NoError(t, db.Omit("Assignment", "Student").Create(&submission).Error)

	return submission
}

func reloadSubmission(t *testing.T, db *gorm.DB, id uint) models.Submission {
	t.Helper()

	var submission models.Submission
	require.NoError(t, db.First(&submission, id).Error)
	return submission
}

func floatPtr(value float64) *float64 {
	return &value
}

type stubBridge struct {
	mu      sync.Mutex
	result  grader.Result
	calls   int
	files   [][]string
	keys    []string
	onCalls func(files []string)
}

func (s *stubBridge) Invoke(ctx context.Context, files []string, answerKey string) grader.Result {
	s.mu.Lock()
	s.calls++
	s.files = append(s.files, append([]string(nil), files...))
	s.keys = append(s.keys, answerKey)
	hook := s.onCalls
	s.mu.Unlock()

	if hook != nil {
		hook(files)
	}

	return s.result
}

func (s *stubBridge) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type failingMaterializer struct {
	err error
}

func (f failingMaterializer) EnsureAll(ctx context.Context, refs []string) (*materialize.Batch, error) {
	return nil, f.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []dto.GradingEvent
}

func (r *recordingPublisher) Publish(ctx context.Context, event dto.GradingEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingPublisher) snapshot() []dto.GradingEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]dto.GradingEvent(nil), r.events...)
}

var (
	pngBytes  = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")
	jpegBytes = []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00\x01\x01\x00\x00\x01\x00\x01\x00\x00")
)

type storedImage struct {
	folder string
	name   string
	data   []byte
}

type memoryStorage struct {
	mu      sync.Mutex
	uploads []storedImage
	err     error
}

func (m *memoryStorage) Upload(ctx context.Context, folder, name string, reader io.Reader) (string, error) {
	if m.err != nil {
		return "", m.err
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads = append(m.uploads, storedImage{folder: folder, name: name, data: data})

	return "https://cdn.test/" + folder + "/" + name, nil
}

func (m *memoryStorage) stored() []storedImage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]storedImage(nil), m.uploads...)
}
