package entity

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError_Error(t *testing.T) {
	tests := []struct {
		name     string
		field    string
		message  string
		expected string
	}{
		{
			name:     "age out of range",
			field:    "age",
			message:  "age 200 is out of range",
			expected: "validation error on field 'age': age 200 is out of range",
		},
		{
			name:     "empty field name",
			field:    "",
			message:  "test message",
			expected: "validation error on field '': test message",
		},
		{
			name:     "empty message",
			field:    "country_code",
			message:  "",
			expected: "validation error on field 'country_code': ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &ValidationError{Field: tt.field, Message: tt.message}
			assert.Equal(t, tt.expected, err.Error())
		})
	}
}

func TestValidationError_UnwrapsToInvalidInput(t *testing.T) {
	err := fmt.Errorf("decode profile: %w", &ValidationError{Field: "gender", Message: "bad"})

	assert.True(t, errors.Is(err, ErrInvalidInput))
	assert.False(t, IsStructural(err))

	var ve *ValidationError
	assert.True(t, errors.As(err, &ve))
	assert.Equal(t, "gender", ve.Field)
}

func TestIsStructural(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("timeout"), false},
		{"structural sentinel", ErrStructural, true},
		{"unknown provider", ErrUnknownProvider, true},
		{"invalid config wrapped", fmt.Errorf("configure: %w", ErrInvalidConfig), true},
		{"invalid input", ErrInvalidInput, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsStructural(tt.err))
		})
	}
}

func TestSentinelErrors_ErrorMessages(t *testing.T) {
	assert.Equal(t, "entity not found", ErrNotFound.Error())
	assert.Equal(t, "invalid input", ErrInvalidInput.Error())
	assert.Equal(t, "structural error: unknown provider", ErrUnknownProvider.Error())
	assert.Equal(t, "structural error: invalid configuration", ErrInvalidConfig.Error())
}
