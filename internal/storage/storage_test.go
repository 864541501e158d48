package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
)

func TestPublicURL(t *testing.T) {
	tt := []struct {
		name     string
		cfg      Config
		key      string
		expected string
	}{
		{
			name:     "path style endpoint",
			cfg:      Config{Endpoint: "localhost:9000", Bucket: "church-images"},
			key:      "churches/church-1.jpg",
			expected: "http://localhost:9000/church-images/churches/church-1.jpg",
		},
		{
			name:     "tls endpoint",
			cfg:      Config{Endpoint: "storage.example.com", Bucket: "church-images", UseSSL: true},
			key:      "/churches/church-1.jpg",
			expected: "https://storage.example.com/church-images/churches/church-1.jpg",
		},
		{
			name:     "public base wins",
			cfg:      Config{Endpoint: "localhost:9000", Bucket: "church-images", PublicBaseURL: "https://cdn.example.com/photos/"},
			key:      "churches/church-1.jpg",
			expected: "https://cdn.example.com/photos/churches/church-1.jpg",
		},
		{
			name:     "aws default endpoint",
			cfg:      Config{Region: "eu-west-1", Bucket: "church-images", UseSSL: true},
			key:      "churches/a.jpg",
			expected: "https://s3.eu-west-1.amazonaws.com/church-images/churches/a.jpg",
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, publicURL(tc.cfg, tc.key))
		})
	}
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	_, err := New(context.Background(), Config{Driver: "gcs", Bucket: "b"})
	assert.Error(t, err)

	_, err = New(context.Background(), Config{Driver: DriverMinio})
	assert.Error(t, err)
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(&types.NotFound{}))
	assert.True(t, isNotFound(fmt.Errorf("head: %w", &smithy.GenericAPIError{Code: "404"})))
	assert.False(t, isNotFound(&smithy.GenericAPIError{Code: "AccessDenied"}))
	assert.False(t, isNotFound(errors.New("dial tcp: refused")))
}
