package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/livrini/internal/model"
)

const notificationColumns = `id, user_id, type, title, message, read, link, metadata, created_at`

func scanNotification(row pgx.Row) (*model.Notification, error) {
	var n model.Notification
	if err := row.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.Read, &n.Link, &n.Metadata, &n.CreatedAt); err != nil {
		return nil, err
	}
	if n.Metadata == nil {
		n.Metadata = map[string]any{}
	}
	return &n, nil
}

func metadataArg(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// CreateNotification сохраняет уведомление.
func (r *PostgresRepository) CreateNotification(ctx context.Context, n *model.Notification) error {
	n.Metadata = metadataArg(n.Metadata)

	err := r.pool.QueryRow(ctx,
		`INSERT INTO notifications (id, user_id, type, title, message, read, link, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING created_at`,
		n.ID, n.UserID, string(n.Type), n.Title, n.Message, n.Read, n.Link, n.Metadata,
	).Scan(&n.CreatedAt)
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// CreateNotifications сохраняет одно и то же уведомление для нескольких пользователей.
// Возвращает количество созданных записей.
func (r *PostgresRepository) CreateNotifications(ctx context.Context, userIDs []uuid.UUID, tmpl model.Notification) (int, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, userID := range userIDs {
		batch.Queue(
			`INSERT INTO notifications (id, user_id, type, title, message, link, metadata)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			uuid.New(), userID, string(tmpl.Type), tmpl.Title, tmpl.Message, tmpl.Link, metadataArg(tmpl.Metadata),
		)
	}

	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return 0, fmt.Errorf("insert notifications: %w", err)
	}
	return len(userIDs), nil
}

// CreateNotificationsForRole рассылает уведомление всем пользователям с указанной ролью.
func (r *PostgresRepository) CreateNotificationsForRole(ctx context.Context, role model.Role, tmpl model.Notification) (int, error) {
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO notifications (id, user_id, type, title, message, link, metadata)
		 SELECT gen_random_uuid(), id, $2, $3, $4, $5, $6
		 FROM users
		 WHERE role = $1`,
		string(role), string(tmpl.Type), tmpl.Title, tmpl.Message, tmpl.Link, metadataArg(tmpl.Metadata),
	)
	if err != nil {
		return 0, fmt.Errorf("insert role notifications: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ListNotifications возвращает последние уведомления пользователя.
func (r *PostgresRepository) ListNotifications(ctx context.Context, userID uuid.UUID, limit int) ([]model.Notification, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+notificationColumns+` FROM notifications
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select notifications: %w", err)
	}
	defer rows.Close()

	var res []model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		res = append(res, *n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// CountUnreadNotifications возвращает количество непрочитанных уведомлений пользователя.
func (r *PostgresRepository) CountUnreadNotifications(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read = FALSE`, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

// MarkNotificationRead помечает уведомление прочитанным. Чужие уведомления не затрагиваются.
func (r *PostgresRepository) MarkNotificationRead(ctx context.Context, id, userID uuid.UUID) (*model.Notification, error) {
	n, err := scanNotification(r.pool.QueryRow(ctx,
		`UPDATE notifications SET read = TRUE
		 WHERE id = $1 AND user_id = $2
		 RETURNING `+notificationColumns,
		id, userID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotificationNotFound
		}
		return nil, fmt.Errorf("mark notification read: %w", err)
	}
	return n, nil
}

// MarkAllNotificationsRead помечает прочитанными все уведомления пользователя.
func (r *PostgresRepository) MarkAllNotificationsRead(ctx context.Context, userID uuid.UUID) (int, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE notifications SET read = TRUE WHERE user_id = $1 AND read = FALSE`, userID,
	)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// DeleteNotification удаляет уведомление пользователя.
func (r *PostgresRepository) DeleteNotification(ctx context.Context, id, userID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM notifications WHERE id = $1 AND user_id = $2`, id, userID,
	)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// DeleteAllNotifications удаляет все уведомления пользователя.
func (r *PostgresRepository) DeleteAllNotifications(ctx context.Context, userID uuid.UUID) (int, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM notifications WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete notifications: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
