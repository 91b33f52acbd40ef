package apperror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinelsSurviveWrapping(t *testing.T) {
	cases := []struct {
		name     string
		err      *AppError
		sentinel error
	}{
		{"unauthenticated", Unauthenticated("token rejected"), ErrUnauthenticated},
		{"forbidden", Forbidden("instructors only"), ErrForbidden},
		{"not found", NotFound("course not found with id c-1"), ErrNotFound},
		{"validation", ValidationFailed("email", "email is required"), ErrValidation},
		{"unavailable", Unavailable("backend unreachable"), ErrUnavailable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wrapped := fmt.Errorf("api: fetching course: %w", tc.err)
			assert.True(t, errors.Is(wrapped, tc.sentinel))

			var appErr *AppError
			assert.True(t, errors.As(wrapped, &appErr))
			assert.Equal(t, tc.err.Message, appErr.Message)
		})
	}
}

func TestValidationFailedCarriesField(t *testing.T) {
	err := ValidationFailed("password", "password too short")
	assert.Equal(t, "password", err.Field)
	assert.Equal(t, "password too short", err.Error())
}
