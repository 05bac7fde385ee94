package handler

import (
	"context"
	"errors"
	"mime/multipart"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/edumark-api/internal/middleware"
	"github.com/noah-isme/edumark-api/internal/service"
)

func userIDFromContext(c *fiber.Ctx) uint {
	if v := c.Locals("user_id"); v != nil {
		if id, ok := v.(uint); ok {
			return id
		}
		if id, ok := v.(int); ok {
			if id < 0 {
				return 0
			}
			return uint(id)
		}
	}
	return 0
}

func userRoleFromContext(c *fiber.Ctx) string {
	if v := c.Locals("user_role"); v != nil {
		if role, ok := v.(string); ok {
			return role
		}
	}
	return ""
}

func actorFromContext(c *fiber.Ctx) service.Actor {
	return service.Actor{
		ID:   userIDFromContext(c),
		Role: userRoleFromContext(c),
	}
}

func withRequestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

func parseUintParam(c *fiber.Ctx, name string) (uint, error) {
	value := strings.TrimSpace(c.Params(name))
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil || parsed == 0 {
		return 0, errors.New("invalid " + name)
	}
	return uint(parsed), nil
}

func parseFormUint(c *fiber.Ctx, key string) (uint, error) {
	value := strings.TrimSpace(c.FormValue(key))
	if value == "" {
		return 0, errors.New("missing " + key)
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, errors.New("invalid " + key)
	}
	return uint(parsed), nil
}

func isValidationError(err error) bool {
	var validationErrors validator.ValidationErrors
	return errors.As(err, &validationErrors)
}

// formImages collects uploaded images from the "files" and "file" fields.
// A request without a multipart body has no images.
func formImages(c *fiber.Ctx) []*multipart.FileHeader {
	form, err := c.MultipartForm()
	if err != nil || form == nil {
		return nil
	}

	headers := make([]*multipart.FileHeader, 0, len(form.File["files"])+len(form.File["file"]))
	headers = append(headers, form.File["files"]...)
	headers = append(headers, form.File["file"]...)
	return headers
}

// openImages opens every header. The returned closer releases all of them.
func openImages(headers []*multipart.FileHeader) ([]service.UploadFile, func(), error) {
	files := make([]service.UploadFile, 0, len(headers))
	opened := make([]multipart.File, 0, len(headers))
	closeAll := func() {
		for _, file := range opened {
			_ = file.Close()
		}
	}

	for _, header := range headers {
		file, err := header.Open()
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		opened = append(opened, file)
		files = append(files, service.UploadFile{Name: header.Filename, Reader: file})
	}

	return files, closeAll, nil
}

// scheduleAfterResponse hands grading jobs to the dispatcher once the
// response has been written to the context.
func scheduleAfterResponse(scheduler service.GradingScheduler, logger *zerolog.Logger, jobs ...service.GradingJob) {
	if scheduler == nil {
		return
	}
	for _, job := range jobs {
		if !scheduler.Schedule(job) {
			logger.Warn().Uint("submission_id", job.SubmissionID).Msg("grading job not scheduled")
		}
	}
}
