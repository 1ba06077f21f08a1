package storage

import (
	"testing"

	"voicebot/internal/config"
)

func TestObjectURL(t *testing.T) {
	got := ObjectURL("https://files.example.com/", "call-recordings", "/recordings/CA1.wav")
	if got != "https://files.example.com/call-recordings/recordings/CA1.wav" {
		t.Fatalf("unexpected url %q", got)
	}
}

func TestMinIOStore_ObjectURLPrefersPublicURL(t *testing.T) {
	s, err := NewMinIOStore(config.StorageConfig{
		Endpoint:  "minio:9000",
		AccessKey: "ak",
		SecretKey: "sk",
		Bucket:    "call-recordings",
		PublicURL: "https://files.example.com",
	})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if got := s.ObjectURL("recordings/CA1.wav"); got != "https://files.example.com/call-recordings/recordings/CA1.wav" {
		t.Fatalf("unexpected url %q", got)
	}

	s.publicURL = ""
	if got := s.ObjectURL("recordings/CA1.wav"); got != "http://minio:9000/call-recordings/recordings/CA1.wav" {
		t.Fatalf("unexpected url %q", got)
	}
}
