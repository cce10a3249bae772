package gateway

import (
	"errors"
	"testing"

	"github.com/aloksahay/fairbnb-sub000/config"
)

func TestValidate(t *testing.T) {
	cfg := config.Validation{
		MaxSize:    1 << 20,
		MimeTypes:  []string{"image/png", "image/jpeg", "application/pdf"},
		Extensions: []string{"png", ".jpg", "pdf"},
	}

	tests := []struct {
		name     string
		fileName string
		size     uint64
		mimeType string
		ok       bool
	}{
		{"accepted png", "listing.png", 1024, "image/png", true},
		{"accepted jpg with dotted allow-list entry", "room.jpg", 1024, "image/jpeg", true},
		{"accepted upper-case extension", "LEASE.PDF", 1024, "application/pdf", true},
		{"accepted at size limit", "listing.png", 1 << 20, "image/png", true},
		{"rejected over size limit", "listing.png", (1 << 20) + 1, "image/png", false},
		{"rejected mime type", "listing.png", 1024, "image/gif", false},
		{"rejected mime type case difference", "listing.png", 1024, "image/PNG", false},
		{"rejected extension", "listing.gif", 1024, "image/png", false},
		{"rejected missing extension", "listing", 1024, "image/png", false},
		{"accepted empty payload", "listing.png", 0, "image/png", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate(cfg, tt.fileName, tt.size, tt.mimeType)
			if tt.ok && err != nil {
				t.Fatalf("expected success, got %v", err)
			} else if !tt.ok {
				var ve *ValidationError
				if !errors.As(err, &ve) {
					t.Fatalf("expected ValidationError, got %v", err)
				}
			}
		})
	}
}

func TestValidateDisabledRules(t *testing.T) {
	// empty allow-lists and a zero size limit accept everything
	cfg := config.Validation{}
	if err := validate(cfg, "anything.xyz", 1<<40, "application/x-whatever"); err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	// rules are checked independently
	cfg = config.Validation{MimeTypes: []string{"image/png"}}
	if err := validate(cfg, "anything.xyz", 1<<40, "image/png"); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if err := validate(cfg, "photo.png", 10, "image/gif"); err == nil {
		t.Fatal("expected mime rejection")
	}
}
