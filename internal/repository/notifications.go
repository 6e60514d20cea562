package repository

import (
	"context"
	"database/sql"
	"fmt"

	"carelink-monitor/internal/models"

	"go.uber.org/zap"
)

// NotificationsRepository 通知仓库
// 追加写入；创建后只有 read 标志可更新
type NotificationsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewNotificationsRepository 创建通知仓库
func NewNotificationsRepository(db *sql.DB, logger *zap.Logger) *NotificationsRepository {
	return &NotificationsRepository{
		db:     db,
		logger: logger,
	}
}

// CreateNotification 创建通知记录
func (r *NotificationsRepository) CreateNotification(ctx context.Context, notification *models.Notification) error {
	if notification == nil {
		return fmt.Errorf("notification is required")
	}
	if notification.NotificationID == "" {
		return fmt.Errorf("notification_id is required")
	}
	if notification.SubjectID == "" {
		return fmt.Errorf("subject_id is required")
	}

	query := `
		INSERT INTO notifications (
			notification_id, subject_id, type, message, read, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)
	`

	_, err := r.db.ExecContext(ctx, query,
		notification.NotificationID,
		notification.SubjectID,
		notification.Type,
		notification.Message,
		notification.Read,
		notification.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	return nil
}

// MarkNotificationRead 标记单条通知为已读并返回更新后的记录
func (r *NotificationsRepository) MarkNotificationRead(ctx context.Context, notificationID string) (*models.Notification, error) {
	if notificationID == "" {
		return nil, fmt.Errorf("notification_id is required")
	}

	query := `
		UPDATE notifications
		SET read = TRUE
		WHERE notification_id = $1
		RETURNING notification_id, subject_id, type, message, read, created_at
	`

	var notification models.Notification
	err := r.db.QueryRowContext(ctx, query, notificationID).Scan(
		&notification.NotificationID,
		&notification.SubjectID,
		&notification.Type,
		&notification.Message,
		&notification.Read,
		&notification.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("notification not found: notification_id=%s: %w", notificationID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to mark notification read: %w", err)
	}

	return &notification, nil
}

// MarkAllRead 标记被监护人全部未读通知为已读，返回更新条数
func (r *NotificationsRepository) MarkAllRead(ctx context.Context, subjectID string) (int, error) {
	if subjectID == "" {
		return 0, fmt.Errorf("subject_id is required")
	}

	query := `
		UPDATE notifications
		SET read = TRUE
		WHERE subject_id = $1
		  AND read = FALSE
	`

	result, err := r.db.ExecContext(ctx, query, subjectID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark all notifications read: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(rowsAffected), nil
}

// ListNotifications 列表查询被监护人通知（按创建时间倒序，支持分页）
func (r *NotificationsRepository) ListNotifications(ctx context.Context, subjectID string, unreadOnly bool, page, size int) ([]*models.Notification, int, error) {
	if subjectID == "" {
		return nil, 0, fmt.Errorf("subject_id is required")
	}

	whereClause := "WHERE subject_id = $1"
	if unreadOnly {
		whereClause += " AND read = FALSE"
	}

	queryCount := fmt.Sprintf(`SELECT COUNT(*) FROM notifications %s`, whereClause)

	var total int
	if err := r.db.QueryRowContext(ctx, queryCount, subjectID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`
		SELECT notification_id, subject_id, type, message, read, created_at
		FROM notifications
		%s
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, whereClause)

	rows, err := r.db.QueryContext(ctx, query, subjectID, size, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	notifications := []*models.Notification{}
	for rows.Next() {
		var notification models.Notification
		err := rows.Scan(
			&notification.NotificationID,
			&notification.SubjectID,
			&notification.Type,
			&notification.Message,
			&notification.Read,
			&notification.CreatedAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, &notification)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate notifications: %w", err)
	}

	return notifications, total, nil
}
