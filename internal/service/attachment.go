package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"social_messenger/internal/domain"
	"social_messenger/internal/storage"
	"social_messenger/pkg/logger"
)

// Upload - локальный временный файл, принятый из multipart-запроса
type Upload struct {
	LocalPath string
	Name      string
	Size      int64
	MimeType  string
}

type AttachmentService interface {
	UploadAll(ctx context.Context, uploads []Upload) ([]domain.Attachment, error)
	Release(ctx context.Context, attachment domain.Attachment)
	SignedURL(objectID string, kind domain.ResourceKind, format string, forceMP3 bool) (string, error)
}

type attachmentService struct {
	store storage.ObjectStore
	log   logger.Logger
}

func NewAttachmentService(store storage.ObjectStore, log logger.Logger) AttachmentService {
	return &attachmentService{store: store, log: log}
}

// Classify определяет тип вложения и режим хранения по MIME-типу файла.
// Изображения и gif публичны, видео/аудио/прочие файлы требуют подписанной ссылки.
func Classify(mimeType string) (domain.AttachmentType, domain.ResourceKind, domain.AccessMode) {
	switch {
	case mimeType == "image/gif":
		return domain.AttachmentGIF, domain.ResourceImage, domain.AccessPublic
	case strings.HasPrefix(mimeType, "image/"):
		return domain.AttachmentImage, domain.ResourceImage, domain.AccessPublic
	case strings.HasPrefix(mimeType, "video/"):
		return domain.AttachmentVideo, domain.ResourceVideo, domain.AccessAuthenticated
	case strings.HasPrefix(mimeType, "audio/"):
		// Хранилище классифицирует аудио как video-ресурс
		return domain.AttachmentAudio, domain.ResourceVideo, domain.AccessAuthenticated
	default:
		return domain.AttachmentFile, domain.ResourceRaw, domain.AccessAuthenticated
	}
}

// UploadAll загружает файлы параллельно и возвращает вложения в исходном
// порядке. Фаза загрузки атомарна по принципу все-или-ничего: одна ошибка
// валит весь send. Временные файлы чистятся на обоих исходах; уже загруженные
// удаленные объекты соседних горутин при этом не откатываются.
func (s *attachmentService) UploadAll(ctx context.Context, uploads []Upload) ([]domain.Attachment, error) {
	attachments := make([]domain.Attachment, len(uploads))

	g, ctx := errgroup.WithContext(ctx)
	for i, upload := range uploads {
		i, upload := i, upload
		g.Go(func() error {
			defer func() {
				if err := os.Remove(upload.LocalPath); err != nil && !os.IsNotExist(err) {
					s.log.Warn("Failed to remove temp file", "path", upload.LocalPath, "error", err)
				}
			}()

			attachmentType, kind, mode := Classify(upload.MimeType)
			result, err := s.store.Upload(ctx, storage.UploadInput{
				LocalPath: upload.LocalPath,
				Kind:      kind,
				Mode:      mode,
				Format:    formatFromName(upload.Name),
			})
			if err != nil {
				return err
			}

			attachments[i] = domain.Attachment{
				Type:         attachmentType,
				URL:          result.URL,
				ObjectID:     result.ObjectID,
				ResourceKind: kind,
				AccessMode:   mode,
				Name:         upload.Name,
				Size:         upload.Size,
				Format:       result.Format,
				MimeType:     upload.MimeType,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return attachments, nil
}

// Release уничтожает объект вложения в хранилище. Ошибки только логируются:
// осиротевший удаленный объект - допустимый исход, прерывать удаление нельзя.
func (s *attachmentService) Release(ctx context.Context, attachment domain.Attachment) {
	if attachment.ObjectID == "" {
		return
	}
	if err := s.store.Destroy(ctx, attachment.ObjectID, attachment.ResourceKind, attachment.AccessMode); err != nil {
		s.log.Error("Failed to destroy attachment object", "object_id", attachment.ObjectID, "error", err)
	}
}

func (s *attachmentService) SignedURL(objectID string, kind domain.ResourceKind, format string, forceMP3 bool) (string, error) {
	return s.store.SignedURL(objectID, kind, storage.SignOptions{Format: format, ForceMP3: forceMP3})
}

func formatFromName(name string) string {
	ext := filepath.Ext(name)
	return strings.TrimPrefix(ext, ".")
}
