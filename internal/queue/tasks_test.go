package queue

import (
	"bytes"
	"testing"
	"time"

	"github.com/hibiken/asynq"
)

func TestPublishPhotoTaskRoundTrip(t *testing.T) {
	payload := PublishPhotoPayload{
		UploadID:    "upload-123",
		ListingID:   "church-9",
		SessionID:   "session-1",
		Data:        []byte{0xff, 0xd8, 0xff, 0xd9},
		Width:       800,
		Height:      600,
		RequestedAt: time.Now().UTC(),
	}

	task, err := NewPublishPhotoTask(payload)
	if err != nil {
		t.Fatalf("NewPublishPhotoTask returned error: %v", err)
	}
	if task.Type() != TypePublishPhoto {
		t.Fatalf("expected task type %q, got %q", TypePublishPhoto, task.Type())
	}

	parsed, err := ParsePublishPhotoPayload(task)
	if err != nil {
		t.Fatalf("ParsePublishPhotoPayload returned error: %v", err)
	}

	if parsed.UploadID != payload.UploadID {
		t.Fatalf("expected upload_id %q, got %q", payload.UploadID, parsed.UploadID)
	}
	if !bytes.Equal(parsed.Data, payload.Data) {
		t.Fatal("image data did not survive the round trip")
	}
}

func TestPublishPhotoTaskRejectsEmptyData(t *testing.T) {
	if _, err := NewPublishPhotoTask(PublishPhotoPayload{UploadID: "u"}); err == nil {
		t.Fatal("expected error for empty image data")
	}

	task := asynq.NewTask(TypePublishPhoto, []byte(`{"upload_id":""}`))
	if _, err := ParsePublishPhotoPayload(task); err == nil {
		t.Fatal("expected error for missing upload_id")
	}
}
