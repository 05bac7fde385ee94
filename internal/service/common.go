package service

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/noah-isme/edumark-api/internal/models"
)

// ErrForbidden indicates the caller may not act on the resource.
var ErrForbidden = errors.New("forbidden")

// Actor identifies the authenticated caller.
type Actor struct {
	ID   uint
	Role string
}

// IsTeacher reports whether the caller has the teacher role.
func (a Actor) IsTeacher() bool {
	return strings.EqualFold(a.Role, models.RoleTeacher)
}

// IsStudent reports whether the caller has the student role.
func (a Actor) IsStudent() bool {
	return strings.EqualFold(a.Role, models.RoleStudent)
}

// FileStorage abstracts image upload destinations.
type FileStorage interface {
	Upload(ctx context.Context, folder, name string, reader io.Reader) (string, error)
}

// GradingScheduler accepts background grading work without blocking.
type GradingScheduler interface {
	Schedule(job GradingJob) bool
}

var textPolicy = bluemonday.StrictPolicy()

func sanitizeText(input string) string {
	return strings.TrimSpace(textPolicy.Sanitize(input))
}
