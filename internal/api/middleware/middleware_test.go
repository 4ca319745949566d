package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hseptw.io/ptw/internal/governance/workflow"
	apperrors "hseptw.io/ptw/internal/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testJWT = JWTConfig{
	SigningKey: []byte("test-signing-key-1234567890123456"),
	Issuer:     "hse-ptw",
	ExpiresIn:  time.Hour,
}

func serve(r *gin.Engine, req *http.Request) (*httptest.ResponseRecorder, ErrorResponse) {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var body ErrorResponse
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func TestErrorHandler(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), ErrorHandler())
	r.GET("/ok", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/transition", func(c *gin.Context) {
		_ = c.Error(apperrors.InvalidTransition("submit", "validated"))
	})
	r.GET("/validation", func(c *gin.Context) {
		_ = c.Error(apperrors.Validation("bad", apperrors.FieldError{Field: "reason", Code: "required"}))
	})
	r.GET("/plain", func(c *gin.Context) { _ = c.Error(errors.New("boom")) })

	w, _ := serve(r, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	w, body := serve(r, httptest.NewRequest(http.MethodGet, "/transition", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, apperrors.CodeInvalidTransition, body.Code)
	assert.Equal(t, "validated", body.Params["status"])
	assert.Equal(t, w.Header().Get(RequestIDHeader), body.RequestID)

	w, body = serve(r, httptest.NewRequest(http.MethodGet, "/validation", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.Len(t, body.FieldErrors, 1)
	assert.Equal(t, "reason", body.FieldErrors[0].Field)

	w, body = serve(r, httptest.NewRequest(http.MethodGet, "/plain", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, apperrors.CodeInternal, body.Code)
}

func TestRequestID_Propagates(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, GetRequestID(c.Request.Context())) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "rid-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "rid-123", w.Body.String())
	assert.Equal(t, "rid-123", w.Header().Get(RequestIDHeader))
}

func TestValidateToken(t *testing.T) {
	token, _, err := GenerateToken(testJWT, "u-1", "alice", workflow.RoleHSEOfficer)
	require.NoError(t, err)

	claims, err := testJWT.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, workflow.RoleHSEOfficer, claims.Role)
	assert.NotEmpty(t, claims.ID)

	other := testJWT
	other.Issuer = "someone-else"
	_, err = other.ValidateToken(token)
	assert.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)

	expiredCfg := testJWT
	expiredCfg.ExpiresIn = -time.Minute
	expired, _, err := GenerateToken(expiredCfg, "u-1", "alice", workflow.RoleContractor)
	require.NoError(t, err)
	_, err = testJWT.ValidateToken(expired)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	noRole, _, err := GenerateToken(testJWT, "u-1", "alice", "")
	require.NoError(t, err)
	_, err = testJWT.ValidateToken(noRole)
	assert.ErrorIs(t, err, jwt.ErrTokenInvalidClaims)
}

func newAuthRouter() *gin.Engine {
	r := gin.New()
	r.Use(RequestID(), ErrorHandler())
	policy := workflow.DefaultPolicy()
	r.POST("/records", JWTAuth(testJWT), RequireCapability(policy, workflow.CapCreate), func(c *gin.Context) {
		actor, _ := GetActor(c.Request.Context())
		c.JSON(http.StatusCreated, gin.H{"created_by": actor.ID})
	})
	return r
}

func TestJWTAuthAndCapability(t *testing.T) {
	r := newAuthRouter()
	bearer := func(role string) string {
		tok, _, err := GenerateToken(testJWT, "u-"+role, role, role)
		require.NoError(t, err)
		return "Bearer " + tok
	}

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantCode   string
	}{
		{"missing header", "", http.StatusUnauthorized, apperrors.CodeAuthFailed},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, apperrors.CodeAuthFailed},
		{"garbage token", "Bearer abc", http.StatusUnauthorized, apperrors.CodeTokenInvalid},
		{"system role refused", bearer(workflow.RoleSystem), http.StatusUnauthorized, apperrors.CodeTokenInvalid},
		{"role without capability", bearer(workflow.RoleHSEOfficer), http.StatusForbidden, apperrors.CodePermissionDenied},
		{"contractor may create", bearer(workflow.RoleContractor), http.StatusCreated, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/records", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w, body := serve(r, req)
			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, body.Code)
			}
		})
	}
}
