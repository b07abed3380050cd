package serverutils

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleRequest struct {
	Message string `validate:"notblank"`
	Limit   int    `validate:"gt=0,lte=20"`
}

func TestValidateRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     sampleRequest
		wantErr string
	}{
		{name: "valid", req: sampleRequest{Message: "hi", Limit: 5}},
		{name: "empty message", req: sampleRequest{Message: "", Limit: 5}, wantErr: "Message is required"},
		{name: "whitespace message", req: sampleRequest{Message: "   ", Limit: 5}, wantErr: "Message is required"},
		{name: "zero limit", req: sampleRequest{Message: "hi", Limit: 0}, wantErr: "Limit must be greater than 0"},
		{name: "limit too large", req: sampleRequest{Message: "hi", Limit: 21}, wantErr: "Limit must be at most 20"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRequest(tt.req)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			var appErr *AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, http.StatusBadRequest, appErr.Code)
			assert.Contains(t, appErr.Message, tt.wantErr)
		})
	}
}

func TestErrorHandlerMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(ErrorHandlerMiddleware())
	app.Get("/bad", func(c *fiber.Ctx) error { return ErrBadRequest("message is required") })
	app.Get("/gateway", func(c *fiber.Ctx) error { return ErrBadGateway("generation failed", errors.New("dial tcp")) })
	app.Get("/boom", func(c *fiber.Ctx) error { return errors.New("secret detail") })

	tests := []struct {
		path    string
		code    int
		message string
	}{
		{"/bad", 400, "message is required"},
		{"/gateway", 502, "generation failed"},
		{"/boom", 500, "internal server error"},
		{"/missing", 404, "Cannot GET /missing"},
	}

	for _, tt := range tests {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, tt.path, nil))
		require.NoError(t, err)

		body, _ := io.ReadAll(resp.Body)
		var out BaseResponse
		require.NoError(t, json.Unmarshal(body, &out), tt.path)

		assert.Equal(t, tt.code, resp.StatusCode, tt.path)
		assert.False(t, out.Success)
		assert.Equal(t, tt.code, out.Code)
		assert.Equal(t, tt.message, out.Message)
	}
}

func TestJwtMiddleware(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	userId := uuid.New()
	token, err := GenerateToken(userId, time.Hour)
	require.NoError(t, err)

	app := fiber.New()
	app.Get("/me", JwtMiddleware, func(c *fiber.Ctx) error {
		id, err := UserID(c)
		if err != nil {
			return err
		}
		return c.SendString(id.String())
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, userId.String(), string(body))

	for _, header := range []string{"", "Bearer nonsense", "Token " + token} {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, header)
	}
}

func TestParseUserToken_RejectsExpiredAndWrongSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "one")
	expired, err := GenerateToken(uuid.New(), -time.Minute)
	require.NoError(t, err)
	_, err = ParseUserToken(expired)
	assert.Error(t, err)

	valid, err := GenerateToken(uuid.New(), time.Hour)
	require.NoError(t, err)
	t.Setenv("JWT_SECRET", "two")
	_, err = ParseUserToken(valid)
	assert.Error(t, err)
}
