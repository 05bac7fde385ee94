package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/edumark-api/internal/dto"
	"github.com/noah-isme/edumark-api/internal/service"
	"github.com/noah-isme/edumark-api/internal/utils"
)

// UserHandler exposes account endpoints.
type UserHandler struct {
	service   service.UserService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(service service.UserService, validator *validator.Validate, logger zerolog.Logger) *UserHandler {
	return &UserHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "user_handler").Logger(),
	}
}

// Register attaches the routes. auth protects the profile endpoint and
// limiter throttles login attempts; either may be nil.
func (h *UserHandler) Register(router fiber.Router, auth, limiter fiber.Handler) {
	login := []fiber.Handler{h.login}
	if limiter != nil {
		login = append([]fiber.Handler{limiter}, login...)
	}
	profile := []fiber.Handler{h.profile}
	if auth != nil {
		profile = append([]fiber.Handler{auth}, profile...)
	}

	router.Post("/register", h.register)
	router.Post("/login", login...)
	router.Get("/verify/:token", h.verify)
	router.Post("/forgot-password", h.forgotPassword)
	router.Post("/reset-password/:token", h.resetPassword)
	router.Get("/profile", profile...)
}

func (h *UserHandler) register(c *fiber.Ctx) error {
	var payload dto.RegisterRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	resp, err := h.service.Register(withRequestContext(c), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "registration successful, please verify your email", resp)
}

func (h *UserHandler) login(c *fiber.Ctx) error {
	var payload dto.LoginRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	resp, err := h.service.Login(withRequestContext(c), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "login successful", resp)
}

func (h *UserHandler) verify(c *fiber.Ctx) error {
	if err := h.service.VerifyEmail(withRequestContext(c), c.Params("token")); err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "email verified", nil)
}

func (h *UserHandler) forgotPassword(c *fiber.Ctx) error {
	var payload dto.ForgotPasswordRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	if err := h.service.ForgotPassword(withRequestContext(c), payload); err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "if the email is registered, a reset link has been sent", nil)
}

func (h *UserHandler) resetPassword(c *fiber.Ctx) error {
	var payload dto.ResetPasswordRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	if err := h.service.ResetPassword(withRequestContext(c), c.Params("token"), payload); err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "password updated", nil)
}

func (h *UserHandler) profile(c *fiber.Ctx) error {
	resp, err := h.service.Profile(withRequestContext(c), userIDFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "profile retrieved", resp)
}

func (h *UserHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.As(err, &validationErrors):
		return utils.SendValidationError(c, err)
	case errors.Is(err, service.ErrEmailTaken):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, service.ErrUserNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrInvalidToken):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("user request failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
