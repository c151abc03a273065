package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"social_messenger/internal/config"
	"social_messenger/internal/domain"
	apperrors "social_messenger/pkg/errors"
	"social_messenger/pkg/logger"
)

// localStore хранит объекты на диске под <baseDir>/<kind>/<objectID>.
// Public-объекты отдаются по стабильному URL, authenticated - только по
// подписанной ссылке с истечением.
type localStore struct {
	baseDir    string
	baseURL    string
	signSecret []byte
	signedTTL  time.Duration
	now        func() time.Time
	log        logger.Logger
}

func NewLocalStore(cfg config.StorageConfig, log logger.Logger) (ObjectStore, error) {
	if err := os.MkdirAll(cfg.BaseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &localStore{
		baseDir:    cfg.BaseDir,
		baseURL:    cfg.BaseURL,
		signSecret: []byte(cfg.SignSecret),
		signedTTL:  cfg.SignedTTL,
		now:        time.Now,
		log:        log,
	}, nil
}

func (s *localStore) objectPath(objectID string, kind domain.ResourceKind) string {
	return filepath.Join(s.baseDir, string(kind), objectID)
}

func (s *localStore) Upload(ctx context.Context, in UploadInput) (*UploadResult, error) {
	src, err := os.Open(in.LocalPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", apperrors.ErrUpstreamStorage, in.LocalPath, err)
	}
	defer src.Close()

	objectID := uuid.New().String()
	dstPath := s.objectPath(objectID, in.Kind)
	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrUpstreamStorage, err)
	}

	dst, err := os.Create(dstPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrUpstreamStorage, err)
	}

	size, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dstPath)
		return nil, fmt.Errorf("%w: %v", apperrors.ErrUpstreamStorage, err)
	}

	result := &UploadResult{
		ObjectID: objectID,
		Size:     size,
		Format:   in.Format,
	}
	if in.Mode == domain.AccessPublic {
		result.URL = fmt.Sprintf("%s/%s/%s", s.baseURL, in.Kind, objectID)
	}
	return result, nil
}

func (s *localStore) Destroy(ctx context.Context, objectID string, kind domain.ResourceKind, mode domain.AccessMode) error {
	path := s.objectPath(objectID, kind)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("%w: destroy %s: %v", apperrors.ErrUpstreamStorage, objectID, err)
	}
	return nil
}

// SignedURL выдает ссылку с 15-минутным сроком жизни. Подпись - HMAC-SHA256
// от канонической строки "kind/objectID|exp|format".
func (s *localStore) SignedURL(objectID string, kind domain.ResourceKind, opts SignOptions) (string, error) {
	format := opts.Format
	if opts.ForceMP3 {
		format = "mp3"
	}

	exp := s.now().Add(s.signedTTL).Unix()
	sig := s.sign(objectID, kind, exp, format)

	q := url.Values{}
	q.Set("exp", strconv.FormatInt(exp, 10))
	q.Set("sig", sig)
	if format != "" {
		q.Set("format", format)
	}
	return fmt.Sprintf("%s/%s/%s?%s", s.baseURL, kind, objectID, q.Encode()), nil
}

// Verify проверяет подпись и срок жизни ссылки (используется раздающим объекты
// обработчиком и тестами)
func (s *localStore) Verify(objectID string, kind domain.ResourceKind, exp int64, format, sig string) bool {
	if s.now().Unix() > exp {
		return false
	}
	expected := s.sign(objectID, kind, exp, format)
	return hmac.Equal([]byte(expected), []byte(sig))
}

func (s *localStore) sign(objectID string, kind domain.ResourceKind, exp int64, format string) string {
	mac := hmac.New(sha256.New, s.signSecret)
	fmt.Fprintf(mac, "%s/%s|%d|%s", kind, objectID, exp, format)
	return hex.EncodeToString(mac.Sum(nil))
}
