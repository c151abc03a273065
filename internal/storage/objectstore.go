package storage

import (
	"context"

	"social_messenger/internal/domain"
)

// ObjectStore - узкая граница к blob-хранилищу. Сервисный слой знает только
// про upload/destroy/signed-url, конкретный провайдер подставляется при сборке.
type ObjectStore interface {
	Upload(ctx context.Context, in UploadInput) (*UploadResult, error)
	Destroy(ctx context.Context, objectID string, kind domain.ResourceKind, mode domain.AccessMode) error
	SignedURL(objectID string, kind domain.ResourceKind, opts SignOptions) (string, error)
}

type UploadInput struct {
	LocalPath string
	Kind      domain.ResourceKind
	Mode      domain.AccessMode
	Format    string
}

type UploadResult struct {
	ObjectID string
	URL      string // Заполнен только для public-объектов
	Size     int64
	Format   string
}

type SignOptions struct {
	Format   string
	ForceMP3 bool // Аудио отдаем как mp3 для максимальной совместимости
}
