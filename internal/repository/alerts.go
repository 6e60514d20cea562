package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"carelink-monitor/internal/models"

	"go.uber.org/zap"
)

// AlertsRepository 告警仓库
// 追加写入；创建后只有 acknowledged 标志可更新（单向 false → true）
type AlertsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAlertsRepository 创建告警仓库
func NewAlertsRepository(db *sql.DB, logger *zap.Logger) *AlertsRepository {
	return &AlertsRepository{
		db:     db,
		logger: logger,
	}
}

// AlertFilters 告警查询过滤条件
type AlertFilters struct {
	SubjectID *string
	Category  *string
	Severity  *string
	Unacked   bool // 仅未确认
	StartTime *time.Time
	EndTime   *time.Time
}

// CreateAlert 创建告警记录
func (r *AlertsRepository) CreateAlert(ctx context.Context, alert *models.Alert) error {
	if alert == nil {
		return fmt.Errorf("alert is required")
	}
	if alert.AlertID == "" {
		return fmt.Errorf("alert_id is required")
	}
	if alert.SubjectID == "" {
		return fmt.Errorf("subject_id is required")
	}

	query := `
		INSERT INTO alerts (
			alert_id, subject_id, category, severity, message, detail, acknowledged, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
	`

	_, err := r.db.ExecContext(ctx, query,
		alert.AlertID,
		alert.SubjectID,
		alert.Category,
		alert.Severity,
		alert.Message,
		alert.Detail,
		alert.Acknowledged,
		alert.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}

	return nil
}

// GetAlert 根据 alert_id 获取告警
func (r *AlertsRepository) GetAlert(ctx context.Context, alertID string) (*models.Alert, error) {
	if alertID == "" {
		return nil, fmt.Errorf("alert_id is required")
	}

	query := `
		SELECT alert_id, subject_id, category, severity, message, detail, acknowledged, created_at
		FROM alerts
		WHERE alert_id = $1
	`

	alert, err := r.scanAlert(r.db.QueryRowContext(ctx, query, alertID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("alert not found: alert_id=%s: %w", alertID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}

	return alert, nil
}

// AcknowledgeAlert 确认告警并返回确认后的记录
// 幂等：重复确认不改变任何字段，acknowledged 保持 true
func (r *AlertsRepository) AcknowledgeAlert(ctx context.Context, alertID string) (*models.Alert, error) {
	if alertID == "" {
		return nil, fmt.Errorf("alert_id is required")
	}

	query := `
		UPDATE alerts
		SET acknowledged = TRUE
		WHERE alert_id = $1
		RETURNING alert_id, subject_id, category, severity, message, detail, acknowledged, created_at
	`

	alert, err := r.scanAlert(r.db.QueryRowContext(ctx, query, alertID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("alert not found: alert_id=%s: %w", alertID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to acknowledge alert: %w", err)
	}

	return alert, nil
}

// ListAlerts 列表查询（支持过滤、分页），按创建时间倒序
func (r *AlertsRepository) ListAlerts(ctx context.Context, filters AlertFilters, page, size int) ([]*models.Alert, int, error) {
	// 构建 WHERE 子句
	where := []string{}
	args := []interface{}{}
	argN := 1

	if filters.SubjectID != nil {
		where = append(where, fmt.Sprintf("subject_id = $%d", argN))
		args = append(args, *filters.SubjectID)
		argN++
	}
	if filters.Category != nil {
		where = append(where, fmt.Sprintf("category = $%d", argN))
		args = append(args, *filters.Category)
		argN++
	}
	if filters.Severity != nil {
		where = append(where, fmt.Sprintf("severity = $%d", argN))
		args = append(args, *filters.Severity)
		argN++
	}
	if filters.Unacked {
		where = append(where, "acknowledged = FALSE")
	}
	if filters.StartTime != nil {
		where = append(where, fmt.Sprintf("created_at >= $%d", argN))
		args = append(args, *filters.StartTime)
		argN++
	}
	if filters.EndTime != nil {
		where = append(where, fmt.Sprintf("created_at <= $%d", argN))
		args = append(args, *filters.EndTime)
		argN++
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	// 计算总数
	queryCount := fmt.Sprintf(`SELECT COUNT(*) FROM alerts %s`, whereClause)

	var total int
	if err := r.db.QueryRowContext(ctx, queryCount, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count alerts: %w", err)
	}

	// 分页处理
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`
		SELECT alert_id, subject_id, category, severity, message, detail, acknowledged, created_at
		FROM alerts
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, whereClause, argN, argN+1)

	args = append(args, size, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	alerts := []*models.Alert{}
	for rows.Next() {
		alert, err := r.scanAlert(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate alerts: %w", err)
	}

	return alerts, total, nil
}

// GetRecentAlerts 获取最近 N 分钟内同一被监护人、同一类别的告警
// 预留给未来的跨巡检去重决策，当前评估链路不调用
func (r *AlertsRepository) GetRecentAlerts(ctx context.Context, subjectID, category string, withinMinutes int) ([]*models.Alert, error) {
	if subjectID == "" {
		return nil, fmt.Errorf("subject_id is required")
	}
	if category == "" {
		return nil, fmt.Errorf("category is required")
	}

	thresholdTime := time.Now().Add(-time.Duration(withinMinutes) * time.Minute)

	query := `
		SELECT alert_id, subject_id, category, severity, message, detail, acknowledged, created_at
		FROM alerts
		WHERE subject_id = $1
		  AND category = $2
		  AND created_at > $3
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, subjectID, category, thresholdTime)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent alerts: %w", err)
	}
	defer rows.Close()

	alerts := []*models.Alert{}
	for rows.Next() {
		alert, err := r.scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate recent alerts: %w", err)
	}

	return alerts, nil
}

// scanAlert 扫描一行告警，处理可空 detail
func (r *AlertsRepository) scanAlert(row rowScanner) (*models.Alert, error) {
	var alert models.Alert
	var detail sql.NullString

	err := row.Scan(
		&alert.AlertID,
		&alert.SubjectID,
		&alert.Category,
		&alert.Severity,
		&alert.Message,
		&detail,
		&alert.Acknowledged,
		&alert.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if detail.Valid && detail.String != "" {
		alert.Detail = detail.String
	} else {
		alert.Detail = "{}"
	}

	return &alert, nil
}
