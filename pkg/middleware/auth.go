package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/richxcame/giftcard-ledger/pkg/common"
)

const (
	// RoleAdmin is the role allowed onto admin routes
	RoleAdmin = "admin"
	// RoleCustomer is the default role for card holders
	RoleCustomer = "customer"

	userIDKey = "user_id"
	roleKey   = "user_role"
)

// Claims is the JWT payload issued to callers
type Claims struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
	Role   string    `json:"role"`
	jwt.RegisteredClaims
}

// GenerateToken signs a HS256 token for userID with the given role
func GenerateToken(secret string, userID uuid.UUID, email, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Email:  email,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken validates a token string and returns its claims
func ParseToken(secret, tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.UserID == uuid.Nil {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// AuthMiddleware requires a valid bearer token and stores the caller on the context
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		tokenString, found := strings.CutPrefix(header, "Bearer ")
		if !found || tokenString == "" {
			common.ErrorResponse(c, http.StatusUnauthorized, "missing bearer token")
			c.Abort()
			return
		}

		claims, err := ParseToken(secret, tokenString)
		if err != nil {
			common.ErrorResponse(c, http.StatusUnauthorized, "invalid or expired token")
			c.Abort()
			return
		}

		c.Set(userIDKey, claims.UserID)
		c.Set(roleKey, claims.Role)
		c.Next()
	}
}

// RequireRole allows only callers holding one of roles
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(roleKey)
		for _, allowed := range roles {
			if role == allowed {
				c.Next()
				return
			}
		}
		common.ErrorResponse(c, http.StatusForbidden, "insufficient permissions")
		c.Abort()
	}
}

// RequireAdmin allows only admin callers
func RequireAdmin() gin.HandlerFunc {
	return RequireRole(RoleAdmin)
}

// GetUserID returns the authenticated caller id
func GetUserID(c *gin.Context) (uuid.UUID, error) {
	value, exists := c.Get(userIDKey)
	if !exists {
		return uuid.Nil, errors.New("user not authenticated")
	}
	userID, ok := value.(uuid.UUID)
	if !ok {
		return uuid.Nil, errors.New("invalid user id in context")
	}
	return userID, nil
}

// GetUserRole returns the authenticated caller role
func GetUserRole(c *gin.Context) string {
	return c.GetString(roleKey)
}
