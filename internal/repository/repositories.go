package repository

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"social_messenger/pkg/logger"
)

type Repositories struct {
	Conversation ConversationRepository
	Message      MessageRepository
	RateLimit    RateLimitRepository
}

func NewRepositories(db *pgxpool.Pool, redis *redis.Client, log logger.Logger) *Repositories {
	return &Repositories{
		Conversation: NewConversationRepository(db, log),
		Message:      NewMessageRepository(db, log),
		RateLimit:    NewRateLimitRepository(redis, log),
	}
}
