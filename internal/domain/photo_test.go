package domain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAcceptedMediaType(t *testing.T) {
	tt := []struct {
		contentType string
		accepted    bool
	}{
		{"image/jpeg", true},
		{"image/jpg", true},
		{"image/png", true},
		{"IMAGE/PNG", true},
		{"image/JPEG; charset=binary", true},
		{"image/gif", false},
		{"image/webp", false},
		{"application/png", false},
		{"png", false},
		{"", false},
	}

	for _, tc := range tt {
		t.Run(fmt.Sprintf("%q", tc.contentType), func(t *testing.T) {
			assert.Equal(t, tc.accepted, AcceptedMediaType(tc.contentType))
		})
	}
}

func TestRejectReason(t *testing.T) {
	assert.Equal(t, "", RejectReason(nil))
	assert.Equal(t, "invalid_input", RejectReason(fmt.Errorf("validate: %w", ErrInvalidInput)))
	assert.Equal(t, "input_too_large", RejectReason(fmt.Errorf("validate: %w", ErrInputTooLarge)))
	assert.Equal(t, "decode_error", RejectReason(fmt.Errorf("decode: %w", ErrDecode)))
	assert.Equal(t, "encode_error", RejectReason(fmt.Errorf("encode: %w", ErrEncode)))
	assert.Equal(t, "internal_error", RejectReason(fmt.Errorf("boom")))
}
