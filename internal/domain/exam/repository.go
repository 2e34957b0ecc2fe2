package exam

import (
	"context"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Контракты для работы с коллекциями экзаменов и отчётов.
// Реализации находятся в infrastructure/persistence/jsonstore.
// ══════════════════════════════════════════════════════════════════════════════

// Repository определяет операции над списком экзаменов.
type Repository interface {
	// All возвращает все экзамены в порядке хранения.
	All(ctx context.Context) ([]Exam, error)

	// Append добавляет экзамен в конец списка и сохраняет коллекцию.
	Append(ctx context.Context, e Exam) error

	// Remove удаляет экзамен по id. Возвращает false, если id не найден.
	Remove(ctx context.Context, id string) (bool, error)
}

// ReportRepository определяет операции над списком отчётов.
type ReportRepository interface {
	// All возвращает все отчёты в порядке хранения.
	All(ctx context.Context) ([]Report, error)

	// Append добавляет отчёт в конец списка и сохраняет коллекцию.
	Append(ctx context.Context, r Report) error

	// RemoveByExam удаляет все отчёты, ссылающиеся на экзамен, и
	// возвращает удалённые записи (для зачистки файлов фотографий).
	RemoveByExam(ctx context.Context, examID string) ([]Report, error)

	// BackfillUsername проставляет username во все отчёты пользователя,
	// у которых поле ещё пустое. Возвращает число затронутых отчётов.
	BackfillUsername(ctx context.Context, userID, username string) (int, error)
}
