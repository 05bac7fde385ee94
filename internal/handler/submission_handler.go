package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/edumark-api/internal/dto"
	"github.com/noah-isme/edumark-api/internal/middleware"
	"github.com/noah-isme/edumark-api/internal/models"
	"github.com/noah-isme/edumark-api/internal/service"
	"github.com/noah-isme/edumark-api/internal/utils"
)

// SubmissionHandler manages submission endpoints.
type SubmissionHandler struct {
	service   service.SubmissionService
	scheduler service.GradingScheduler
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewSubmissionHandler builds a submission handler instance.
func NewSubmissionHandler(service service.SubmissionService, scheduler service.GradingScheduler, validator *validator.Validate, logger zerolog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		service:   service,
		scheduler: scheduler,
		validator: validator,
		logger:    logger.With().Str("component", "submission_handler").Logger(),
	}
}

// Register attaches the routes to an authenticated router group.
func (h *SubmissionHandler) Register(router fiber.Router) {
	studentOnly := middleware.RequireRole(models.RoleStudent)
	teacherOnly := middleware.RequireRole(models.RoleTeacher)

	router.Post("", studentOnly, h.create)
	router.Get("/mine", studentOnly, h.listMine)
	router.Get("/assignment/:assignmentId", teacherOnly, h.listByAssignment)
	router.Put("/:id", studentOnly, h.update)
	router.Post("/:id/grade", teacherOnly, h.grade)
	router.Get("/:id", h.get)
}

func (h *SubmissionHandler) create(c *fiber.Ctx) error {
	var payload dto.SubmissionCreateRequest
	assignmentID, err := parseFormUint(c, "assignment_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	payload.AssignmentID = assignmentID
	payload.Content = c.FormValue("content")
	payload.FileURL = c.FormValue("file_url")

	files, closeAll, err := openImages(formImages(c))
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "unable to read uploaded file")
	}
	defer closeAll()

	result, err := h.service.Create(withRequestContext(c), actorFromContext(c), payload, files)
	if err != nil {
		return h.handleError(c, err)
	}

	if err := utils.SendSuccessWithStatus(c, fiber.StatusCreated, "submission created", result.Submission); err != nil {
		return err
	}
	h.schedule(c, result)
	return nil
}

func (h *SubmissionHandler) update(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	payload := dto.SubmissionUpdateRequest{
		Content: c.FormValue("content"),
		FileURL: c.FormValue("file_url"),
	}

	files, closeAll, err := openImages(formImages(c))
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "unable to read uploaded file")
	}
	defer closeAll()

	result, err := h.service.Update(withRequestContext(c), actorFromContext(c), id, payload, files)
	if err != nil {
		return h.handleError(c, err)
	}

	if err := utils.SendSuccess(c, "submission updated", result.Submission); err != nil {
		return err
	}
	h.schedule(c, result)
	return nil
}

func (h *SubmissionHandler) listMine(c *fiber.Ctx) error {
	submissions, err := h.service.ListMine(withRequestContext(c), actorFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "submissions retrieved", submissions)
}

func (h *SubmissionHandler) listByAssignment(c *fiber.Ctx) error {
	assignmentID, err := parseUintParam(c, "assignmentId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	submissions, err := h.service.ListByAssignment(withRequestContext(c), actorFromContext(c), assignmentID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "submissions retrieved", submissions)
}

func (h *SubmissionHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	submission, err := h.service.Get(withRequestContext(c), actorFromContext(c), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "submission retrieved", submission)
}

func (h *SubmissionHandler) grade(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.SubmissionGradeRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	submission, err := h.service.Grade(withRequestContext(c), actorFromContext(c), id, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "submission graded", submission)
}

func (h *SubmissionHandler) schedule(c *fiber.Ctx, result service.SubmissionResult) {
	if result.Grading == nil {
		return
	}
	scheduleAfterResponse(h.scheduler, requestLogger(h.logger, c), *result.Grading)
}

func (h *SubmissionHandler) handleError(c *fiber.Ctx, err error) error {
	switch {
	case isValidationError(err):
		return utils.SendValidationError(c, err)
	case errors.Is(err, service.ErrSubmissionNotFound), errors.Is(err, service.ErrAssignmentNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrForbidden):
		return utils.SendError(c, fiber.StatusForbidden, "access denied")
	case errors.Is(err, service.ErrAlreadySubmitted):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, service.ErrDeadlinePassed):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, service.ErrResubmitNotAllowed):
		return utils.SendError(c, fiber.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrEmptySubmission):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrUploadTooLarge):
		return utils.SendError(c, fiber.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, service.ErrUploadTypeNotAllowed):
		return utils.SendError(c, fiber.StatusUnsupportedMediaType, err.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("submission request failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
