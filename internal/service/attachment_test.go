package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"social_messenger/internal/domain"
	"social_messenger/pkg/logger"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		mime string
		typ  domain.AttachmentType
		kind domain.ResourceKind
		mode domain.AccessMode
	}{
		{"image/png", domain.AttachmentImage, domain.ResourceImage, domain.AccessPublic},
		{"image/gif", domain.AttachmentGIF, domain.ResourceImage, domain.AccessPublic},
		{"video/mp4", domain.AttachmentVideo, domain.ResourceVideo, domain.AccessAuthenticated},
		{"audio/webm", domain.AttachmentAudio, domain.ResourceVideo, domain.AccessAuthenticated},
		{"application/pdf", domain.AttachmentFile, domain.ResourceRaw, domain.AccessAuthenticated},
		{"", domain.AttachmentFile, domain.ResourceRaw, domain.AccessAuthenticated},
	}

	for _, tc := range cases {
		typ, kind, mode := Classify(tc.mime)
		if typ != tc.typ || kind != tc.kind || mode != tc.mode {
			t.Errorf("Classify(%q) = (%v, %v, %v), want (%v, %v, %v)",
				tc.mime, typ, kind, mode, tc.typ, tc.kind, tc.mode)
		}
	}
}

func tempUpload(t *testing.T, name, mime string) Upload {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	return Upload{LocalPath: path, Name: name, Size: 4, MimeType: mime}
}

func TestUploadAllCleansTempFiles(t *testing.T) {
	store := &fakeStore{}
	svc := NewAttachmentService(store, logger.New("error"))

	uploads := []Upload{
		tempUpload(t, "a.png", "image/png"),
		tempUpload(t, "b.mp3", "audio/mpeg"),
	}

	attachments, err := svc.UploadAll(context.Background(), uploads)
	if err != nil {
		t.Fatalf("UploadAll failed: %v", err)
	}
	if len(attachments) != 2 {
		t.Fatalf("expected 2 attachments, got %d", len(attachments))
	}
	// Порядок результата соответствует порядку входа
	if attachments[0].Type != domain.AttachmentImage || attachments[1].Type != domain.AttachmentAudio {
		t.Fatalf("attachment order not preserved: %v, %v", attachments[0].Type, attachments[1].Type)
	}
	if attachments[0].URL == "" {
		t.Fatal("public image must carry a direct URL")
	}
	if attachments[1].URL != "" {
		t.Fatal("authenticated object must not expose a direct URL")
	}
	if attachments[1].Format != "mp3" {
		t.Fatalf("format must derive from the file name, got %q", attachments[1].Format)
	}

	for _, u := range uploads {
		if _, err := os.Stat(u.LocalPath); !os.IsNotExist(err) {
			t.Errorf("temp file %s must be removed after upload", u.LocalPath)
		}
	}
}

func TestUploadAllCleansTempFilesOnFailure(t *testing.T) {
	store := &fakeStore{failNext: true}
	svc := NewAttachmentService(store, logger.New("error"))

	upload := tempUpload(t, "fail.bin", "application/octet-stream")

	if _, err := svc.UploadAll(context.Background(), []Upload{upload}); err == nil {
		t.Fatal("expected upload error")
	}
	if _, err := os.Stat(upload.LocalPath); !os.IsNotExist(err) {
		t.Error("temp file must be removed even when upload fails")
	}
}

func TestReleaseSkipsEmptyObjectID(t *testing.T) {
	store := &fakeStore{}
	svc := NewAttachmentService(store, logger.New("error"))

	svc.Release(context.Background(), domain.Attachment{})
	if len(store.destroyed) != 0 {
		t.Fatal("empty object id must not reach the store")
	}

	svc.Release(context.Background(), domain.Attachment{ObjectID: "obj-1", ResourceKind: domain.ResourceRaw})
	if len(store.destroyed) != 1 || store.destroyed[0] != "obj-1" {
		t.Fatalf("expected obj-1 destroyed, got %v", store.destroyed)
	}
}
