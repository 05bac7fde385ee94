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

// ClassroomHandler exposes classroom endpoints.
type ClassroomHandler struct {
	service   service.ClassroomService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewClassroomHandler constructs a ClassroomHandler.
func NewClassroomHandler(service service.ClassroomService, validator *validator.Validate, logger zerolog.Logger) *ClassroomHandler {
	return &ClassroomHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "classroom_handler").Logger(),
	}
}

// Register attaches the routes to an authenticated router group.
func (h *ClassroomHandler) Register(router fiber.Router) {
	teacherOnly := middleware.RequireRole(models.RoleTeacher)

	router.Post("", teacherOnly, h.create)
	router.Get("/mine", h.listMine)
	router.Post("/:id/students", teacherOnly, h.addStudent)
	router.Get("/:id", h.get)
}

func (h *ClassroomHandler) create(c *fiber.Ctx) error {
	var payload dto.ClassroomCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	classroom, err := h.service.Create(withRequestContext(c), actorFromContext(c), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "classroom created", classroom)
}

func (h *ClassroomHandler) addStudent(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.ClassroomAddStudentRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	classroom, added, err := h.service.AddStudent(withRequestContext(c), actorFromContext(c), id, payload)
	if err != nil {
		return h.handleError(c, err)
	}
	if !added {
		return utils.SendSuccess(c, "student already in class", classroom)
	}

	return utils.SendSuccess(c, "student added", classroom)
}

func (h *ClassroomHandler) listMine(c *fiber.Ctx) error {
	classrooms, err := h.service.ListMine(withRequestContext(c), actorFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "classrooms retrieved", classrooms)
}

func (h *ClassroomHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	classroom, err := h.service.Get(withRequestContext(c), actorFromContext(c), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "classroom retrieved", classroom)
}

func (h *ClassroomHandler) handleError(c *fiber.Ctx, err error) error {
	switch {
	case isValidationError(err):
		return utils.SendValidationError(c, err)
	case errors.Is(err, service.ErrClassroomNotFound), errors.Is(err, service.ErrUserNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrNotAStudent):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrForbidden):
		return utils.SendError(c, fiber.StatusForbidden, "access denied")
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("classroom request failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
