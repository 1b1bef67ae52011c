package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/BradenHooton/rampart/internal/auth"
	"github.com/BradenHooton/rampart/internal/models"
	"github.com/BradenHooton/rampart/internal/services"
	pkghttp "github.com/BradenHooton/rampart/pkg/http"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// NewFormRequest creates a form-encoded POST for testing
func NewFormRequest(target string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// WithAuthContext adds user claims to request context for testing authenticated endpoints
func WithAuthContext(req *http.Request, userID, email string, roles ...string) *http.Request {
	claims := &models.TokenClaims{
		UserID: userID,
		Email:  email,
		Type:   models.TokenTypeAccess,
		Roles:  roles,
	}
	ctx := context.WithValue(req.Context(), auth.UserContextKey, claims)
	return req.WithContext(ctx)
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	LoginFunc                func(ctx context.Context, email, password string) (*services.LoginResponse, error)
	CompleteSecondFactorFunc func(ctx context.Context, challengeToken, code string) (*services.LoginResponse, bool, error)
}

func (m *MockAuthService) Login(ctx context.Context, email, password string) (*services.LoginResponse, error) {
	if m.LoginFunc == nil {
		return nil, models.ErrUnauthorized
	}
	return m.LoginFunc(ctx, email, password)
}

func (m *MockAuthService) CompleteSecondFactor(ctx context.Context, challengeToken, code string) (*services.LoginResponse, bool, error) {
	if m.CompleteSecondFactorFunc == nil {
		return nil, false, models.ErrUnauthorized
	}
	return m.CompleteSecondFactorFunc(ctx, challengeToken, code)
}

// MockSecondFactorService implements SecondFactorServiceInterface for testing
type MockSecondFactorService struct {
	EnrollFunc                func(ctx context.Context, principalID string) (*services.EnrollmentResponse, error)
	RegenerateBackupCodesFunc func(ctx context.Context, principalID string) ([]string, error)
}

func (m *MockSecondFactorService) Enroll(ctx context.Context, principalID string) (*services.EnrollmentResponse, error) {
	if m.EnrollFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.EnrollFunc(ctx, principalID)
}

func (m *MockSecondFactorService) RegenerateBackupCodes(ctx context.Context, principalID string) ([]string, error) {
	if m.RegenerateBackupCodesFunc == nil {
		return nil, models.ErrMFANotEnrolled
	}
	return m.RegenerateBackupCodesFunc(ctx, principalID)
}

// MockActivityReader implements ActivityReader for testing
type MockActivityReader struct {
	RecentFunc func(ctx context.Context, limit int) ([]models.Event, error)
}

func (m *MockActivityReader) Recent(ctx context.Context, limit int) ([]models.Event, error) {
	if m.RecentFunc == nil {
		return nil, nil
	}
	return m.RecentFunc(ctx, limit)
}
