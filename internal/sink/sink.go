package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"carelink-monitor/internal/models"
	"carelink-monitor/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Result 单条结果的落库产出
type Result struct {
	AlertID        string // 为空表示该结果未产生 Alert
	NotificationID string // 为空表示该结果未产生 Notification
}

// Sink 告警/通知落库器
// 按固定路由表把 Finding 转换为持久化记录：
//   vital_alert → Alert
//   missed_meds → Alert + med_reminder Notification
//   low_stock   → Notification
//   summary     → Alert
// 追加写入，不做跨巡检去重；写失败立即重试一次，仍失败则记录丢弃
type Sink struct {
	alertsRepo        *repository.AlertsRepository
	notificationsRepo *repository.NotificationsRepository
	logger            *zap.Logger
}

// NewSink 创建落库器
func NewSink(
	alertsRepo *repository.AlertsRepository,
	notificationsRepo *repository.NotificationsRepository,
	logger *zap.Logger,
) *Sink {
	return &Sink{
		alertsRepo:        alertsRepo,
		notificationsRepo: notificationsRepo,
		logger:            logger,
	}
}

// Persist 按路由表持久化单条结果
// Alert 与 Notification 互相独立：一条写失败不影响另一条
func (s *Sink) Persist(ctx context.Context, finding *models.Finding) (*Result, error) {
	if finding == nil {
		return nil, fmt.Errorf("finding is required")
	}
	if finding.SubjectID == "" {
		return nil, fmt.Errorf("subject_id is required")
	}

	result := &Result{}
	var firstErr error

	switch finding.Category {
	case models.CategoryVitalAlert, models.CategorySummary:
		alertID, err := s.persistAlert(ctx, finding)
		if err != nil {
			firstErr = err
		}
		result.AlertID = alertID

	case models.CategoryMissedMeds:
		alertID, err := s.persistAlert(ctx, finding)
		if err != nil {
			firstErr = err
		}
		result.AlertID = alertID

		notificationID, err := s.persistNotification(ctx, finding, models.NotificationTypeMedReminder)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		result.NotificationID = notificationID

	case models.CategoryLowStock:
		notificationID, err := s.persistNotification(ctx, finding, models.NotificationTypeLowStock)
		if err != nil {
			firstErr = err
		}
		result.NotificationID = notificationID

	default:
		return nil, fmt.Errorf("unknown finding category: %s", finding.Category)
	}

	return result, firstErr
}

// persistAlert 写入 Alert，失败立即重试一次
func (s *Sink) persistAlert(ctx context.Context, finding *models.Finding) (string, error) {
	detail := "{}"
	if finding.Detail != nil {
		detailJSON, err := json.Marshal(finding.Detail)
		if err != nil {
			return "", fmt.Errorf("failed to marshal finding detail: %w", err)
		}
		detail = string(detailJSON)
	}

	alert := &models.Alert{
		AlertID:      uuid.New().String(),
		SubjectID:    finding.SubjectID,
		Category:     finding.Category,
		Severity:     finding.Severity,
		Message:      finding.Message,
		Detail:       detail,
		Acknowledged: false,
		CreatedAt:    time.Now(),
	}

	err := s.alertsRepo.CreateAlert(ctx, alert)
	if err != nil {
		// 立即重试一次
		if retryErr := s.alertsRepo.CreateAlert(ctx, alert); retryErr != nil {
			s.logger.Error("Alert lost after retry",
				zap.String("subject_id", finding.SubjectID),
				zap.String("rule_id", finding.RuleID),
				zap.String("category", finding.Category),
				zap.Error(retryErr),
			)
			return "", fmt.Errorf("failed to persist alert after retry: %w", retryErr)
		}
	}

	s.logger.Info("Alert created",
		zap.String("alert_id", alert.AlertID),
		zap.String("subject_id", alert.SubjectID),
		zap.String("category", alert.Category),
		zap.String("severity", alert.Severity),
	)

	return alert.AlertID, nil
}

// persistNotification 写入 Notification，失败立即重试一次
func (s *Sink) persistNotification(ctx context.Context, finding *models.Finding, notificationType string) (string, error) {
	notification := &models.Notification{
		NotificationID: uuid.New().String(),
		SubjectID:      finding.SubjectID,
		Type:           notificationType,
		Message:        finding.Message,
		Read:           false,
		CreatedAt:      time.Now(),
	}

	err := s.notificationsRepo.CreateNotification(ctx, notification)
	if err != nil {
		// 立即重试一次
		if retryErr := s.notificationsRepo.CreateNotification(ctx, notification); retryErr != nil {
			s.logger.Error("Notification lost after retry",
				zap.String("subject_id", finding.SubjectID),
				zap.String("rule_id", finding.RuleID),
				zap.String("type", notificationType),
				zap.Error(retryErr),
			)
			return "", fmt.Errorf("failed to persist notification after retry: %w", retryErr)
		}
	}

	s.logger.Info("Notification created",
		zap.String("notification_id", notification.NotificationID),
		zap.String("subject_id", notification.SubjectID),
		zap.String("type", notification.Type),
	)

	return notification.NotificationID, nil
}
