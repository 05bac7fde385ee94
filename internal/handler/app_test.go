package handler_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/edumark-api/internal/config"
	"github.com/noah-isme/edumark-api/internal/handler"
	"github.com/noah-isme/edumark-api/internal/middleware"
	"github.com/noah-isme/edumark-api/internal/models"
	"github.com/noah-isme/edumark-api/internal/repository"
	"github.com/noah-isme/edumark-api/internal/router"
	"github.com/noah-isme/edumark-api/internal/service"
	"github.com/noah-isme/edumark-api/internal/utils"
	"github.com/noah-isme/edumark-api/pkg/mailer"
	"github.com/noah-isme/edumark-api/pkg/storage"
)

const testJWTSecret = "handler-test-secret"

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

type scheduledJob struct {
	job       service.GradingJob
	persisted bool
}

// recordingScheduler captures jobs and whether the submission was already
// committed when the job was handed over.
type recordingScheduler struct {
	db     *gorm.DB
	mu     sync.Mutex
	jobs   []scheduledJob
	reject bool
}

func (s *recordingScheduler) Schedule(job service.GradingJob) bool {
	var count int64
	s.db.Model(&models.Submission{}).Where("id = ?", job.SubmissionID).Count(&count)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, scheduledJob{job: job, persisted: count == 1})
	return !s.reject
}

func (s *recordingScheduler) snapshot() []scheduledJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]scheduledJob(nil), s.jobs...)
}

type testEnv struct {
	app        *fiber.App
	db         *gorm.DB
	scheduler  *recordingScheduler
	hub        service.GradingEventHub
	teacher    models.User
	student    models.User
	outsider   models.User
	classroom  models.Classroom
	assignment models.Assignment
}

func setupApp(t *testing.T) testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Classroom{}, &models.Assignment{}, &models.Submission{}))

	validate := utils.NewValidator()
	logger := zerolog.New(io.Discard)

	userRepo := repository.NewUserRepository(db)
	classroomRepo := repository.NewClassroomRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)

	images := service.NewImageUploader(storage.NewLocal(t.TempDir(), logger), 1<<20, logger)
	hub := service.NewGradingEventHub(nil, nil, "", logger)
	scheduler := &recordingScheduler{db: db}

	userService := service.NewUserService(userRepo, classroomRepo, validate, mailer.NewLogMailer(logger), service.UserServiceConfig{
		JWTSecret: testJWTSecret,
		TokenTTL:  time.Hour,
		ClientURL: "https://app.test",
	}, logger)
	classroomService := service.NewClassroomService(classroomRepo, userRepo, validate, logger)
	assignmentService := service.NewAssignmentService(assignmentRepo, classroomRepo, validate, logger)
	submissionService := service.NewSubmissionService(submissionRepo, assignmentRepo, validate, images, "edumark/submissions", hub, logger)
	importService := service.NewBulkImportService(assignmentRepo, submissionRepo, images, service.BulkImportConfig{
		Folder:          "edumark/raw",
		MaxArchiveBytes: 5 << 20,
		MaxImageBytes:   1 << 20,
	}, logger)

	app := fiber.New()
	app.Use(middleware.CorrelationID())
	router.Register(app, config.Config{AppName: "EduMark Test", AppEnv: "test", JWTSecret: testJWTSecret}, router.Dependencies{
		UserHandler:          handler.NewUserHandler(userService, validate, logger),
		ClassroomHandler:     handler.NewClassroomHandler(classroomService, validate, logger),
		AssignmentHandler:    handler.NewAssignmentHandler(assignmentService, importService, scheduler, validate, logger),
		SubmissionHandler:    handler.NewSubmissionHandler(submissionService, scheduler, validate, logger),
		GradingStreamHandler: handler.NewGradingStreamHandler(hub, logger),
		JWTMiddleware:        middleware.JWTProtected(testJWTSecret),
	})

	env := testEnv{app: app, db: db, scheduler: scheduler, hub: hub}
	env.seed(t)
	return env
}

func (e *testEnv) seed(t *testing.T) {
	t.Helper()

	e.teacher = models.User{Name: "Bu Sari", Email: "sari@school.test", PasswordHash: "x", Role: models.RoleTeacher}
	require.NoError(t, e.db.Create(&e.teacher).Error)
	e.student = models.User{Name: "Budi Santoso", Email: "budi@school.test", PasswordHash: "x", Role: models.RoleStudent}
	require.NoError(t, e.db.Create(&e.student).Error)
	e.outsider = models.User{Name: "Rina", Email: "rina@school.test", PasswordHash: "x", Role: models.RoleStudent}
	require.NoError(t, e.db.Create(&e.outsider).Error)

	e.classroom = models.Classroom{Name: "Matematika 10A", TeacherID: e.teacher.ID}
	require.NoError(t, e.db.Create(&e.classroom).Error)
	require.NoError(t, e.db.Model(&e.classroom).Association("Students").Append(&e.student))

	e.assignment = models.Assignment{
		Title:            "Latihan Pecahan",
		ClassroomID:      e.classroom.ID,
		TeacherID:        e.teacher.ID,
		AnswerKey:        "1:A,2:C",
		IsSubmitRequired: true,
		ResubmitAllowed:  true,
	}
	require.NoError(t, e.db.Create(&e.assignment).Error)
}

func tokenFor(t *testing.T, user models.User) string {
	t.Helper()

	token, err := middleware.IssueToken(testJWTSecret, user.ID, user.Role, time.Hour, time.Now())
	require.NoError(t, err)
	return token
}

func jsonRequest(t *testing.T, method, path string, body interface{}, user *models.User) *http.Request {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if user != nil {
		req.Header.Set("Authorization", "Bearer "+tokenFor(t, *user))
	}
	return req
}

type formFile struct {
	field string
	name  string
	data  []byte
}

func multipartRequest(t *testing.T, method, path string, fields map[string]string, files []formFile, user *models.User) *http.Request {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	for _, file := range files {
		part, err := writer.CreateFormFile(file.field, file.name)
		require.NoError(t, err)
		_, err = part.Write(file.data)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if user != nil {
		req.Header.Set("Authorization", "Bearer "+tokenFor(t, *user))
	}
	return req
}

type envelope[T any] struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Data    T                 `json:"data"`
	Errors  map[string]string `json:"errors"`
}

func decodeResponse(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, json.Unmarshal(data, target))
}
