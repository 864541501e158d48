package domain

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	UploadStatusPending   = "pending"
	UploadStatusQueued    = "queued"
	UploadStatusUploading = "uploading"
	UploadStatusPublished = "published"
	UploadStatusFailed    = "failed"
)

type PublishRequest struct {
	ListingID  string `json:"listing_id"`
	WebhookURL string `json:"webhook_url,omitempty"`
}

// Upload tracks the durable copy of a delivered listing photo.
type Upload struct {
	ID         string    `json:"id"`
	ListingID  string    `json:"listing_id"`
	SessionID  string    `json:"session_id,omitempty"`
	Status     string    `json:"status"`
	ObjectKey  string    `json:"object_key,omitempty"`
	PublicURL  string    `json:"public_url,omitempty"`
	WebhookURL string    `json:"webhook_url,omitempty"`
	Bytes      int       `json:"bytes"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (r PublishRequest) Validate() error {
	if strings.TrimSpace(r.ListingID) == "" {
		return errors.New("listing_id is required")
	}
	if len(r.ListingID) > 128 {
		return errors.New("listing_id must be at most 128 characters")
	}
	if hook := strings.TrimSpace(r.WebhookURL); hook != "" {
		u, err := url.Parse(hook)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid webhook_url: %s", r.WebhookURL)
		}
	}
	return nil
}

// IsRemoteReference reports whether ref already points at a durable location
// (an absolute URL or a site path such as the placeholder) and needs no upload.
func IsRemoteReference(ref string) bool {
	ref = strings.TrimSpace(ref)
	return strings.HasPrefix(ref, "http://") ||
		strings.HasPrefix(ref, "https://") ||
		strings.HasPrefix(ref, "/")
}
