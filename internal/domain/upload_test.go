package domain

import "testing"

func TestPublishRequestValidate(t *testing.T) {
	valid := PublishRequest{ListingID: "church-1"}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid request, got error: %v", err)
	}

	invalid := PublishRequest{}
	if err := invalid.Validate(); err == nil {
		t.Fatal("expected validation error for empty request")
	}

	badHook := PublishRequest{ListingID: "church-1", WebhookURL: "ftp://example.com/hook"}
	if err := badHook.Validate(); err == nil {
		t.Fatal("expected validation error for non-http webhook_url")
	}

	withHook := PublishRequest{ListingID: "church-1", WebhookURL: "https://example.com/hook"}
	if err := withHook.Validate(); err != nil {
		t.Fatalf("expected valid request with webhook, got error: %v", err)
	}
}

func TestIsRemoteReference(t *testing.T) {
	for _, ref := range []string{"https://cdn.example.com/a.jpg", "http://x/y.jpg", PlaceholderURL} {
		if !IsRemoteReference(ref) {
			t.Fatalf("expected %q to be remote", ref)
		}
	}
	for _, ref := range []string{"", "preview-handle", "blob:abc"} {
		if IsRemoteReference(ref) {
			t.Fatalf("expected %q to be local", ref)
		}
	}
}
