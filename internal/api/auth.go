package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/murmurhq/murmur/internal/models"
)

const (
	ctxUID    = "uid"
	ctxAuthor = "author"
)

// Claims are the bearer token claims. Subject carries the uid.
type Claims struct {
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

// NewToken signs an HS256 token for uid
func NewToken(secret, uid, name, picture string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Name:    name,
		Picture: picture,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uid,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// parseToken verifies an HS256 token and returns its claims
func parseToken(secret, raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("token has no subject")
	}
	return claims, nil
}

// AuthMiddleware verifies the bearer token from the Authorization header, or the token
// query parameter for WebSocket clients, and stores the caller's identity on the context.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		raw := c.Query("token")
		if header := c.GetHeader("Authorization"); header != "" {
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error":   "Invalid authorization header",
					"message": "Format should be: Bearer <token>",
				})
				return
			}
			raw = parts[1]
		}
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Authentication required",
				"message": "No authorization token provided",
			})
			return
		}

		claims, err := parseToken(secret, raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Invalid token",
				"message": "Token validation failed",
			})
			return
		}

		c.Set(ctxUID, claims.Subject)
		c.Set(ctxAuthor, models.Author{UID: claims.Subject, Name: claims.Name, PhotoURL: claims.Picture})
		c.Next()
	}
}

// currentUID returns the authenticated uid
func currentUID(c *gin.Context) string {
	return c.GetString(ctxUID)
}

// tokenAuthor returns the identity carried by the token
func tokenAuthor(c *gin.Context) models.Author {
	if v, ok := c.Get(ctxAuthor); ok {
		if a, ok := v.(models.Author); ok {
			return a
		}
	}
	return models.Author{UID: currentUID(c)}
}
