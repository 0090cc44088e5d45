package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const ctxUserID = "user_id"

// JWTAuth accepts HS256 bearer tokens signed with secret and stores the
// subject claim under "user_id".
func JWTAuth(secret string) gin.HandlerFunc {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		raw := strings.TrimPrefix(auth, "Bearer ")

		claims := jwt.MapClaims{}
		tok, err := parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		})
		if err != nil || !tok.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		if sub, err := claims.GetSubject(); err == nil && sub != "" {
			c.Set(ctxUserID, sub)
		}
		c.Next()
	}
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AuthHandler issues tokens for the single configured operator account.
type AuthHandler struct {
	secret   []byte
	username string
	password string
	ttl      time.Duration
	now      func() time.Time
}

func NewAuthHandler(secret, username, password string, ttl time.Duration) *AuthHandler {
	return &AuthHandler{
		secret:   []byte(secret),
		username: username,
		password: password,
		ttl:      ttl,
		now:      time.Now,
	}
}

func (h *AuthHandler) Register(router *gin.RouterGroup) {
	router.POST("/login", h.login)
}

func (h *AuthHandler) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(h.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(req.Password), []byte(h.password)) == 1
	if !userOK || !passOK {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	now := h.now()
	exp := now.Add(h.ttl)
	claims := jwt.MapClaims{
		"sub":  req.Username,
		"role": "admin",
		"iat":  now.Unix(),
		"exp":  exp.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.secret)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue token"})
		return
	}
	c.JSON(http.StatusOK, LoginResponse{Token: signed, ExpiresAt: exp.UTC()})
}
