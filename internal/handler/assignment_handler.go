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

// AssignmentHandler exposes assignment endpoints including the bulk archive import.
type AssignmentHandler struct {
	service   service.AssignmentService
	importer  service.BulkImportService
	scheduler service.GradingScheduler
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewAssignmentHandler constructs an AssignmentHandler.
func NewAssignmentHandler(service service.AssignmentService, importer service.BulkImportService, scheduler service.GradingScheduler, validator *validator.Validate, logger zerolog.Logger) *AssignmentHandler {
	return &AssignmentHandler{
		service:   service,
		importer:  importer,
		scheduler: scheduler,
		validator: validator,
		logger:    logger.With().Str("component", "assignment_handler").Logger(),
	}
}

// Register attaches the routes to an authenticated router group. importLimiter
// throttles archive uploads and may be nil.
func (h *AssignmentHandler) Register(router fiber.Router, importLimiter fiber.Handler) {
	teacherOnly := middleware.RequireRole(models.RoleTeacher)

	importChain := []fiber.Handler{teacherOnly}
	if importLimiter != nil {
		importChain = append(importChain, importLimiter)
	}
	importChain = append(importChain, h.importArchive)

	router.Post("", teacherOnly, h.create)
	router.Get("/classroom/:classroomId", h.listByClassroom)
	router.Get("/:id", h.get)
	router.Post("/:id/import-zip", importChain...)
}

func (h *AssignmentHandler) create(c *fiber.Ctx) error {
	var payload dto.AssignmentCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	assignment, err := h.service.Create(withRequestContext(c), actorFromContext(c), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "assignment created", assignment)
}

func (h *AssignmentHandler) listByClassroom(c *fiber.Ctx) error {
	classroomID, err := parseUintParam(c, "classroomId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	assignments, err := h.service.ListByClassroom(withRequestContext(c), actorFromContext(c), classroomID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "assignments retrieved", assignments)
}

func (h *AssignmentHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	assignment, err := h.service.Get(withRequestContext(c), actorFromContext(c), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "assignment retrieved", assignment)
}

func (h *AssignmentHandler) importArchive(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	header, err := c.FormFile("file")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "zip file is required")
	}

	archive, err := header.Open()
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "unable to read uploaded archive")
	}
	defer archive.Close()

	result, err := h.importer.Import(withRequestContext(c), actorFromContext(c), id, archive, header.Size)
	if err != nil {
		return h.handleError(c, err)
	}

	if err := utils.SendSuccess(c, "archive imported", result.Summary); err != nil {
		return err
	}
	scheduleAfterResponse(h.scheduler, requestLogger(h.logger, c), result.Jobs...)
	return nil
}

func (h *AssignmentHandler) handleError(c *fiber.Ctx, err error) error {
	switch {
	case isValidationError(err):
		return utils.SendValidationError(c, err)
	case errors.Is(err, service.ErrAssignmentNotFound), errors.Is(err, service.ErrClassroomNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrForbidden):
		return utils.SendError(c, fiber.StatusForbidden, "access denied")
	case errors.Is(err, service.ErrInvalidArchive):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrArchiveTooLarge):
		return utils.SendError(c, fiber.StatusRequestEntityTooLarge, err.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("assignment request failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
