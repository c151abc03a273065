package service

import (
	"context"

	"github.com/google/uuid"

	"social_messenger/internal/config"
	"social_messenger/internal/domain"
	apperrors "social_messenger/pkg/errors"
	"social_messenger/pkg/jwt"
	"social_messenger/pkg/logger"
)

// AuthService проверяет токены внешнего сервиса аутентификации. Выпуск и
// обновление токенов здесь не живут - только валидация и извлечение identity.
type AuthService interface {
	ValidateToken(ctx context.Context, tokenString string) (*domain.Identity, error)
}

type authService struct {
	jwtCfg config.JWTConfig
	log    logger.Logger
}

func NewAuthService(jwtCfg config.JWTConfig, log logger.Logger) AuthService {
	return &authService{jwtCfg: jwtCfg, log: log}
}

func (s *authService) ValidateToken(ctx context.Context, tokenString string) (*domain.Identity, error) {
	claims, err := jwt.ValidateToken(tokenString, s.jwtCfg.AccessSecret)
	if err != nil {
		return nil, err
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, apperrors.ErrInvalidToken
	}

	return &domain.Identity{
		ID:       userID,
		Email:    claims.Email,
		Username: claims.Username,
	}, nil
}
