package handler_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edumark-api/internal/dto"
	"github.com/noah-isme/edumark-api/internal/models"
)

func TestClassroomCreateAndEnroll(t *testing.T) {
	env := setupApp(t)

	resp, err := env.app.Test(jsonRequest(t, http.MethodPost, "/api/v1/classrooms", map[string]string{"name": "Fisika 11B"}, &env.teacher))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created envelope[dto.ClassroomResponse]
	decodeResponse(t, resp, &created)
	require.Equal(t, "Fisika 11B", created.Data.Name)
	require.Equal(t, env.teacher.ID, created.Data.TeacherID)

	path := fmt.Sprintf("/api/v1/classrooms/%d/students", created.Data.ID)

	resp, err = env.app.Test(jsonRequest(t, http.MethodPost, path, map[string]string{"student_email": "rina@school.test"}, &env.teacher))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var enrolled envelope[dto.ClassroomResponse]
	decodeResponse(t, resp, &enrolled)
	require.Equal(t, "student added", enrolled.Message)
	require.Len(t, enrolled.Data.Students, 1)

	resp, err = env.app.Test(jsonRequest(t, http.MethodPost, path, map[string]string{"student_email": "rina@school.test"}, &env.teacher))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var again envelope[dto.ClassroomResponse]
	decodeResponse(t, resp, &again)
	require.Equal(t, "student already in class", again.Message)

	resp, err = env.app.Test(jsonRequest(t, http.MethodPost, path, map[string]string{"student_email": "sari@school.test"}, &env.teacher))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = env.app.Test(jsonRequest(t, http.MethodPost, path, map[string]string{"student_email": "ghost@school.test"}, &env.teacher))
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestClassroomRoleAndOwnershipChecks(t *testing.T) {
	env := setupApp(t)

	resp, err := env.app.Test(jsonRequest(t, http.MethodPost, "/api/v1/classrooms", map[string]string{"name": "Kelas Siswa"}, &env.student))
	require.NoError(t, err)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	other := models.User{Name: "Pak Joko", Email: "joko@school.test", PasswordHash: "x", Role: models.RoleTeacher}
	require.NoError(t, env.db.Create(&other).Error)

	path := fmt.Sprintf("/api/v1/classrooms/%d", env.classroom.ID)

	resp, err = env.app.Test(jsonRequest(t, http.MethodPost, path+"/students", map[string]string{"student_email": "rina@school.test"}, &other))
	require.NoError(t, err)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, err = env.app.Test(jsonRequest(t, http.MethodGet, path, nil, &env.outsider))
	require.NoError(t, err)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, err = env.app.Test(jsonRequest(t, http.MethodGet, path, nil, &env.student))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = env.app.Test(jsonRequest(t, http.MethodGet, "/api/v1/classrooms/999", nil, &env.teacher))
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = env.app.Test(jsonRequest(t, http.MethodGet, "/api/v1/classrooms/abc", nil, &env.teacher))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestClassroomListMine(t *testing.T) {
	env := setupApp(t)

	for _, user := range []*models.User{&env.teacher, &env.student} {
		resp, err := env.app.Test(jsonRequest(t, http.MethodGet, "/api/v1/classrooms/mine", nil, user))
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var listed envelope[[]dto.ClassroomResponse]
		decodeResponse(t, resp, &listed)
		require.Len(t, listed.Data, 1)
		require.Equal(t, "Matematika 10A", listed.Data[0].Name)
	}

	resp, err := env.app.Test(jsonRequest(t, http.MethodGet, "/api/v1/classrooms/mine", nil, &env.outsider))
	require.NoError(t, err)
	var empty envelope[[]dto.ClassroomResponse]
	decodeResponse(t, resp, &empty)
	require.Empty(t, empty.Data)
}
