package student

import (
	"context"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACE
// Контракт для работы с хранилищем студентов.
// Реализация находится в infrastructure/persistence/jsonstore.
// ══════════════════════════════════════════════════════════════════════════════

// Repository определяет операции над справочником студентов.
type Repository interface {
	// GetByUserID возвращает студента по Telegram ID.
	// Возвращает shared.ErrNotFound, если студент не зарегистрирован.
	GetByUserID(ctx context.Context, id UserID) (*Student, error)

	// Save создаёт или перезаписывает запись студента.
	Save(ctx context.Context, s Student) error

	// All возвращает весь справочник, ключованный UserID.
	// Пустое хранилище возвращает пустую map, не ошибку.
	All(ctx context.Context) (map[UserID]Student, error)
}
