package storage

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"social_messenger/internal/config"
	"social_messenger/internal/domain"
	"social_messenger/pkg/logger"
)

func newTestStore(t *testing.T) *localStore {
	t.Helper()
	store, err := NewLocalStore(config.StorageConfig{
		BaseDir:    t.TempDir(),
		BaseURL:    "http://localhost:8080/media",
		SignSecret: "test-secret",
		SignedTTL:  15 * time.Minute,
	}, logger.New("error"))
	if err != nil {
		t.Fatalf("NewLocalStore failed: %v", err)
	}
	return store.(*localStore)
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "src.bin")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func TestUploadAndDestroy(t *testing.T) {
	store := newTestStore(t)
	src := writeTempFile(t, "payload")

	result, err := store.Upload(context.Background(), UploadInput{
		LocalPath: src,
		Kind:      domain.ResourceImage,
		Mode:      domain.AccessPublic,
		Format:    "png",
	})
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if result.Size != int64(len("payload")) {
		t.Fatalf("unexpected size %d", result.Size)
	}
	if !strings.HasPrefix(result.URL, "http://localhost:8080/media/image/") {
		t.Fatalf("unexpected public URL: %q", result.URL)
	}

	stored, err := os.ReadFile(store.objectPath(result.ObjectID, domain.ResourceImage))
	if err != nil || string(stored) != "payload" {
		t.Fatalf("object content mismatch: %q err=%v", stored, err)
	}

	if err := store.Destroy(context.Background(), result.ObjectID, domain.ResourceImage, domain.AccessPublic); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	if _, err := os.Stat(store.objectPath(result.ObjectID, domain.ResourceImage)); !os.IsNotExist(err) {
		t.Fatal("object must be gone after destroy")
	}

	// Повторное уничтожение идемпотентно
	if err := store.Destroy(context.Background(), result.ObjectID, domain.ResourceImage, domain.AccessPublic); err != nil {
		t.Fatalf("repeated Destroy must be a no-op: %v", err)
	}
}

func TestUploadAuthenticatedHasNoDirectURL(t *testing.T) {
	store := newTestStore(t)
	src := writeTempFile(t, "secret")

	result, err := store.Upload(context.Background(), UploadInput{
		LocalPath: src,
		Kind:      domain.ResourceVideo,
		Mode:      domain.AccessAuthenticated,
	})
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if result.URL != "" {
		t.Fatalf("authenticated object must not expose a direct URL, got %q", result.URL)
	}
}

func TestUploadMissingSource(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Upload(context.Background(), UploadInput{
		LocalPath: filepath.Join(t.TempDir(), "absent"),
		Kind:      domain.ResourceRaw,
		Mode:      domain.AccessAuthenticated,
	}); err == nil {
		t.Fatal("expected error for missing source file")
	}
}

func parseSigned(t *testing.T, signed string) (exp int64, format, sig string) {
	t.Helper()
	u, err := url.Parse(signed)
	if err != nil {
		t.Fatalf("bad signed URL: %v", err)
	}
	exp, err = strconv.ParseInt(u.Query().Get("exp"), 10, 64)
	if err != nil {
		t.Fatalf("bad exp: %v", err)
	}
	return exp, u.Query().Get("format"), u.Query().Get("sig")
}

func TestSignedURLRoundTrip(t *testing.T) {
	store := newTestStore(t)

	signed, err := store.SignedURL("obj-1", domain.ResourceVideo, SignOptions{Format: "mp4"})
	if err != nil {
		t.Fatalf("SignedURL failed: %v", err)
	}
	exp, format, sig := parseSigned(t, signed)

	if format != "mp4" {
		t.Fatalf("expected format mp4, got %q", format)
	}
	if !store.Verify("obj-1", domain.ResourceVideo, exp, format, sig) {
		t.Fatal("freshly signed URL must verify")
	}
	if store.Verify("obj-2", domain.ResourceVideo, exp, format, sig) {
		t.Fatal("signature must be bound to the object id")
	}
	if store.Verify("obj-1", domain.ResourceRaw, exp, format, sig) {
		t.Fatal("signature must be bound to the resource kind")
	}
	if store.Verify("obj-1", domain.ResourceVideo, exp+1, format, sig) {
		t.Fatal("tampered expiry must fail verification")
	}
}

func TestSignedURLExpiry(t *testing.T) {
	store := newTestStore(t)

	signed, err := store.SignedURL("obj-1", domain.ResourceVideo, SignOptions{})
	if err != nil {
		t.Fatalf("SignedURL failed: %v", err)
	}
	exp, format, sig := parseSigned(t, signed)

	// Сдвигаем часы за горизонт жизни ссылки
	store.now = func() time.Time { return time.Unix(exp+1, 0) }
	if store.Verify("obj-1", domain.ResourceVideo, exp, format, sig) {
		t.Fatal("expired URL must fail verification")
	}
}

func TestSignedURLForceMP3(t *testing.T) {
	store := newTestStore(t)

	signed, err := store.SignedURL("audio-1", domain.ResourceVideo, SignOptions{Format: "webm", ForceMP3: true})
	if err != nil {
		t.Fatalf("SignedURL failed: %v", err)
	}
	_, format, _ := parseSigned(t, signed)
	if format != "mp3" {
		t.Fatalf("forceMp3 must win over the declared format, got %q", format)
	}
}
