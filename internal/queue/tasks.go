package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const TypePublishPhoto = "photo:publish"

// PublishPhotoPayload carries an already normalized 800x600 JPEG.
type PublishPhotoPayload struct {
	UploadID    string    `json:"upload_id"`
	ListingID   string    `json:"listing_id"`
	SessionID   string    `json:"session_id,omitempty"`
	WebhookURL  string    `json:"webhook_url,omitempty"`
	Data        []byte    `json:"data"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	RequestedAt time.Time `json:"requested_at"`
}

func (p PublishPhotoPayload) validate() error {
	if p.UploadID == "" {
		return errors.New("upload_id is required")
	}
	if len(p.Data) == 0 {
		return errors.New("image data is empty")
	}
	return nil
}

func NewPublishPhotoTask(payload PublishPhotoPayload) (*asynq.Task, error) {
	if err := payload.validate(); err != nil {
		return nil, fmt.Errorf("invalid publish payload: %w", err)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal publish payload: %w", err)
	}
	return asynq.NewTask(TypePublishPhoto, body), nil
}

func ParsePublishPhotoPayload(task *asynq.Task) (PublishPhotoPayload, error) {
	var payload PublishPhotoPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return PublishPhotoPayload{}, fmt.Errorf("unmarshal publish payload: %w", err)
	}
	if err := payload.validate(); err != nil {
		return PublishPhotoPayload{}, fmt.Errorf("invalid publish payload: %w", err)
	}
	return payload, nil
}
