package middleware

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/edumark-api/internal/utils"
)

// IssueToken signs an HS256 token carrying the user id and role.
func IssueToken(secret string, userID uint, role string, ttl time.Duration, now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"id":   userID,
		"sub":  strconv.FormatUint(uint64(userID), 10),
		"role": role,
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return signed, nil
}

// JWTProtected returns a middleware that validates JWT bearer tokens. A raw
// token in the "token" header is accepted for older clients.
func JWTProtected(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString, message := tokenFromRequest(c)
		if tokenString == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, message)
		}

		token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method")
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token claims")
		}

		userID := extractUserIDFromClaims(claims)
		if userID == nil {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token subject")
		}
		c.Locals("user_id", *userID)

		if role := extractUserRoleFromClaims(claims); role != "" {
			c.Locals("user_role", role)
		}

		return c.Next()
	}
}

func tokenFromRequest(c *fiber.Ctx) (string, string) {
	authorization := strings.TrimSpace(c.Get("Authorization"))
	if authorization == "" {
		if legacy := strings.TrimSpace(c.Get("token")); legacy != "" {
			return legacy, ""
		}
		// websocket clients cannot set headers on the upgrade request
		if query := strings.TrimSpace(c.Query("token")); query != "" {
			return query, ""
		}
		return "", "authorization header missing"
	}

	const bearer = "Bearer "
	if len(authorization) < len(bearer) || !strings.EqualFold(authorization[:len(bearer)], bearer) {
		return "", "invalid authorization header"
	}

	tokenString := strings.TrimSpace(authorization[len(bearer):])
	if tokenString == "" {
		return "", "invalid token"
	}

	return tokenString, ""
}

func extractUserIDFromClaims(claims jwt.MapClaims) *uint {
	keys := []string{"sub", "user_id", "id"}
	for _, key := range keys {
		if value, ok := claims[key]; ok {
			if normalized, err := normalizeUserID(value); err == nil && normalized > 0 {
				return &normalized
			}
		}
	}

	return nil
}

func normalizeUserID(value interface{}) (uint, error) {
	switch v := value.(type) {
	case float64:
		if v < 0 {
			return 0, fmt.Errorf("invalid subject")
		}
		return uint(v), nil
	case string:
		parsed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return 0, err
		}
		return uint(parsed), nil
	default:
		return 0, fmt.Errorf("unsupported subject type")
	}
}

func extractUserRoleFromClaims(claims jwt.MapClaims) string {
	if value, ok := claims["role"].(string); ok {
		return strings.ToLower(strings.TrimSpace(value))
	}
	return ""
}
