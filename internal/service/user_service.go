package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/noah-isme/edumark-api/internal/dto"
	"github.com/noah-isme/edumark-api/internal/middleware"
	"github.com/noah-isme/edumark-api/internal/models"
	"github.com/noah-isme/edumark-api/internal/repository"
	"github.com/noah-isme/edumark-api/pkg/mailer"
)

const (
	resetTokenTTL   = 15 * time.Minute
	mailSendTimeout = 30 * time.Second
)

var (
	// ErrEmailTaken indicates another account already uses the email.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials indicates the password did not match.
	ErrInvalidCredentials = errors.New("invalid password")
	// ErrUserNotFound indicates the account does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidToken indicates a verification or reset token is unknown or expired.
	ErrInvalidToken = errors.New("invalid or expired token")
)

// UserServiceConfig carries the settings the account flows need.
type UserServiceConfig struct {
	JWTSecret        string
	TokenTTL         time.Duration
	ClientURL        string
	TeacherClientURL string
}

// UserService implements registration, login and password recovery.
type UserService interface {
	Register(ctx context.Context, payload dto.RegisterRequest) (dto.AuthResponse, error)
	Login(ctx context.Context, payload dto.LoginRequest) (dto.AuthResponse, error)
	VerifyEmail(ctx context.Context, token string) error
	ForgotPassword(ctx context.Context, payload dto.ForgotPasswordRequest) error
	ResetPassword(ctx context.Context, token string, payload dto.ResetPasswordRequest) error
	Profile(ctx context.Context, userID uint) (dto.UserResponse, error)
}

type userService struct {
	users      repository.UserRepository
	classrooms repository.ClassroomRepository
	validator  *validator.Validate
	mailer     mailer.Mailer
	cfg        UserServiceConfig
	logger     zerolog.Logger
	now        func() time.Time
}

// NewUserService constructs a UserService.
func NewUserService(users repository.UserRepository, classrooms repository.ClassroomRepository, validate *validator.Validate, mail mailer.Mailer, cfg UserServiceConfig, logger zerolog.Logger) UserService {
	return &userService{
		users:      users,
		classrooms: classrooms,
		validator:  validate,
		mailer:     mail,
		cfg:        cfg,
		logger:     logger.With().Str("component", "user_service").Logger(),
		now:        time.Now,
	}
}

func (s *userService) Register(ctx context.Context, payload dto.RegisterRequest) (dto.AuthResponse, error) {
	payload.Email = normalizeEmail(payload.Email)
	if err := s.validator.Struct(payload); err != nil {
		return dto.AuthResponse{}, err
	}

	email := payload.Email
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return dto.AuthResponse{}, ErrEmailTaken
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return dto.AuthResponse{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(payload.Password), bcrypt.DefaultCost)
	if err != nil {
		return dto.AuthResponse{}, fmt.Errorf("hash password: %w", err)
	}

	user := models.User{
		Name:              sanitizeText(payload.Name),
		Email:             email,
		PasswordHash:      string(hash),
		Role:              payload.Role,
		VerificationToken: newToken(),
	}
	if err := s.users.Create(ctx, &user); err != nil {
		return dto.AuthResponse{}, err
	}

	s.sendAsync(ctx, mailer.Message{
		To:      []string{user.Email},
		Subject: "Verify your EduMark account",
		HTML:    fmt.Sprintf(`<p>Hello %s,</p><p>Confirm your email by opening <a href="%[2]s">%[2]s</a>.</p>`, html.EscapeString(user.Name), s.link(user.Role, "verify-email", user.VerificationToken)),
	})

	s.logger.Info().Uint("user_id", user.ID).Str("role", user.Role).Msg("user registered")

	return s.authResponse(user)
}

func (s *userService) Login(ctx context.Context, payload dto.LoginRequest) (dto.AuthResponse, error) {
	payload.Email = normalizeEmail(payload.Email)
	if err := s.validator.Struct(payload); err != nil {
		return dto.AuthResponse{}, err
	}

	user, err := s.users.GetByEmail(ctx, payload.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AuthResponse{}, ErrUserNotFound
		}
		return dto.AuthResponse{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(payload.Password)); err != nil {
		return dto.AuthResponse{}, ErrInvalidCredentials
	}

	return s.authResponse(user)
}

func (s *userService) VerifyEmail(ctx context.Context, token string) error {
	user, err := s.users.GetByVerificationToken(ctx, strings.TrimSpace(token))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvalidToken
		}
		return err
	}

	user.IsVerified = true
	user.VerificationToken = ""

	return s.users.Update(ctx, &user)
}

// ForgotPassword issues a reset token. Unknown emails succeed silently.
func (s *userService) ForgotPassword(ctx context.Context, payload dto.ForgotPasswordRequest) error {
	payload.Email = normalizeEmail(payload.Email)
	if err := s.validator.Struct(payload); err != nil {
		return err
	}

	user, err := s.users.GetByEmail(ctx, payload.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Info().Msg("password reset requested for unknown email")
			return nil
		}
		return err
	}

	expires := s.now().Add(resetTokenTTL)
	user.ResetPasswordToken = newToken()
	user.ResetPasswordExpire = &expires
	if err := s.users.Update(ctx, &user); err != nil {
		return err
	}

	s.sendAsync(ctx, mailer.Message{
		To:      []string{user.Email},
		Subject: "Reset your EduMark password",
		HTML:    fmt.Sprintf(`<p>Hello %s,</p><p>Reset your password within 15 minutes: <a href="%[2]s">%[2]s</a></p>`, html.EscapeString(user.Name), s.link(user.Role, "reset-password", user.ResetPasswordToken)),
	})

	return nil
}

func (s *userService) ResetPassword(ctx context.Context, token string, payload dto.ResetPasswordRequest) error {
	if err := s.validator.Struct(payload); err != nil {
		return err
	}

	user, err := s.users.GetByResetToken(ctx, strings.TrimSpace(token))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvalidToken
		}
		return err
	}

	if user.ResetPasswordExpire == nil || !user.ResetPasswordExpire.After(s.now()) {
		return ErrInvalidToken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(payload.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	user.PasswordHash = string(hash)
	user.ResetPasswordToken = ""
	user.ResetPasswordExpire = nil

	if err := s.users.Update(ctx, &user); err != nil {
		return err
	}

	s.logger.Info().Uint("user_id", user.ID).Msg("password reset")

	return nil
}

func (s *userService) Profile(ctx context.Context, userID uint) (dto.UserResponse, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.UserResponse{}, ErrUserNotFound
		}
		return dto.UserResponse{}, err
	}

	var classrooms []models.Classroom
	if user.IsTeacher() {
		classrooms, err = s.classrooms.ListByTeacher(ctx, user.ID)
	} else {
		classrooms, err = s.classrooms.ListByStudent(ctx, user.ID)
	}
	if err != nil {
		return dto.UserResponse{}, err
	}

	response := dto.NewUserResponse(user)
	response.ClassroomIDs = make([]uint, 0, len(classrooms))
	for _, classroom := range classrooms {
		response.ClassroomIDs = append(response.ClassroomIDs, classroom.ID)
	}

	return response, nil
}

func (s *userService) authResponse(user models.User) (dto.AuthResponse, error) {
	token, err := middleware.IssueToken(s.cfg.JWTSecret, user.ID, user.Role, s.cfg.TokenTTL, s.now())
	if err != nil {
		return dto.AuthResponse{}, err
	}

	return dto.AuthResponse{Token: token, User: dto.NewUserResponse(user)}, nil
}

func (s *userService) sendAsync(ctx context.Context, msg mailer.Message) {
	if s.mailer == nil {
		return
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mailSendTimeout)
	go func() {
		defer cancel()
		if err := s.mailer.Send(sendCtx, msg); err != nil {
			s.logger.Error().Err(err).Str("subject", msg.Subject).Msg("failed to send email")
		}
	}()
}

func (s *userService) link(role, path, token string) string {
	base := s.cfg.ClientURL
	if role == models.RoleTeacher && s.cfg.TeacherClientURL != "" {
		base = s.cfg.TeacherClientURL
	}
	return strings.TrimRight(base, "/") + "/" + path + "/" + token
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func newToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
