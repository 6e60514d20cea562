package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"carelink-monitor/internal/models"
	"carelink-monitor/internal/repository"
	"carelink-monitor/internal/scheduler"

	"go.uber.org/zap"
)

// Runner 巡检触发接口（由 scheduler.Scheduler 实现）
type Runner interface {
	RunNow(ctx context.Context, scope, subjectID string) (*scheduler.RunSummary, error)
}

// AlertStore 告警读写接口（由 repository.AlertsRepository 实现）
type AlertStore interface {
	AcknowledgeAlert(ctx context.Context, alertID string) (*models.Alert, error)
	ListAlerts(ctx context.Context, filters repository.AlertFilters, page, size int) ([]*models.Alert, int, error)
}

// NotificationStore 通知读写接口（由 repository.NotificationsRepository 实现）
type NotificationStore interface {
	MarkNotificationRead(ctx context.Context, notificationID string) (*models.Notification, error)
	MarkAllRead(ctx context.Context, subjectID string) (int, error)
	ListNotifications(ctx context.Context, subjectID string, unreadOnly bool, page, size int) ([]*models.Notification, int, error)
}

// MonitorHandler 监测引擎运维 Handler
type MonitorHandler struct {
	runner        Runner
	alerts        AlertStore
	notifications NotificationStore
	logger        *zap.Logger
}

// NewMonitorHandler 创建监测引擎运维 Handler
func NewMonitorHandler(
	runner Runner,
	alerts AlertStore,
	notifications NotificationStore,
	logger *zap.Logger,
) *MonitorHandler {
	return &MonitorHandler{
		runner:        runner,
		alerts:        alerts,
		notifications: notifications,
		logger:        logger,
	}
}

// runRequest RunNow 请求体
type runRequest struct {
	Scope      string `json:"scope"`                 // subject | household | all
	SubjectID  string `json:"subject_id,omitempty"`  // subject/household 范围必填
	TimeoutSec int    `json:"timeout_sec,omitempty"` // 默认 60
}

// RunNow 同步触发一轮巡检并返回汇总
func (h *MonitorHandler) RunNow(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	if req.Scope == "" {
		req.Scope = scheduler.ScopeAll
	}
	if req.TimeoutSec <= 0 {
		req.TimeoutSec = 60
	}

	ctx, cancel := context.WithTimeout(r.Context(), time.Duration(req.TimeoutSec)*time.Second)
	defer cancel()

	summary, err := h.runner.RunNow(ctx, req.Scope, req.SubjectID)
	if err != nil {
		h.logger.Warn("RunNow failed",
			zap.String("scope", req.Scope),
			zap.String("subject_id", req.SubjectID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, Ok(summary))
}

// ackRequest 确认告警请求体
type ackRequest struct {
	AlertID string `json:"alert_id"`
}

// AcknowledgeAlert 确认告警（幂等）
func (h *MonitorHandler) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	var req ackRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil || req.AlertID == "" {
		writeJSON(w, http.StatusBadRequest, Fail("alert_id is required"))
		return
	}

	alert, err := h.alerts.AcknowledgeAlert(r.Context(), req.AlertID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, Fail("alert not found"))
			return
		}
		h.logger.Error("Failed to acknowledge alert",
			zap.String("alert_id", req.AlertID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, Fail("failed to acknowledge alert"))
		return
	}

	writeJSON(w, http.StatusOK, Ok(alert))
}

// ListAlerts 查询告警列表
func (h *MonitorHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	filters := repository.AlertFilters{}

	if subjectID := strings.TrimSpace(r.URL.Query().Get("subject_id")); subjectID != "" {
		filters.SubjectID = &subjectID
	}
	if category := strings.TrimSpace(r.URL.Query().Get("category")); category != "" {
		filters.Category = &category
	}
	if severity := strings.TrimSpace(r.URL.Query().Get("severity")); severity != "" {
		filters.Severity = &severity
	}
	if r.URL.Query().Get("unacked") == "true" {
		filters.Unacked = true
	}

	page := parseInt(r.URL.Query().Get("page"), 1)
	pageSize := parseInt(r.URL.Query().Get("page_size"), 20)
	if pageSize > 100 {
		pageSize = 100
	}

	alerts, total, err := h.alerts.ListAlerts(r.Context(), filters, page, pageSize)
	if err != nil {
		h.logger.Error("Failed to list alerts",
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, Fail("failed to list alerts"))
		return
	}

	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"items": alerts,
		"pagination": map[string]any{
			"page":      page,
			"page_size": pageSize,
			"total":     total,
		},
	}))
}

// ListNotifications 查询被监护人通知列表
func (h *MonitorHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	subjectID := strings.TrimSpace(r.URL.Query().Get("subject_id"))
	if subjectID == "" {
		writeJSON(w, http.StatusBadRequest, Fail("subject_id is required"))
		return
	}
	unreadOnly := r.URL.Query().Get("unread") == "true"

	page := parseInt(r.URL.Query().Get("page"), 1)
	pageSize := parseInt(r.URL.Query().Get("page_size"), 20)
	if pageSize > 100 {
		pageSize = 100
	}

	notifications, total, err := h.notifications.ListNotifications(r.Context(), subjectID, unreadOnly, page, pageSize)
	if err != nil {
		h.logger.Error("Failed to list notifications",
			zap.String("subject_id", subjectID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, Fail("failed to list notifications"))
		return
	}

	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"items": notifications,
		"pagination": map[string]any{
			"page":      page,
			"page_size": pageSize,
			"total":     total,
		},
	}))
}

// readRequest 标记通知已读请求体
type readRequest struct {
	NotificationID string `json:"notification_id"`
}

// MarkNotificationRead 标记单条通知为已读
func (h *MonitorHandler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	var req readRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil || req.NotificationID == "" {
		writeJSON(w, http.StatusBadRequest, Fail("notification_id is required"))
		return
	}

	notification, err := h.notifications.MarkNotificationRead(r.Context(), req.NotificationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, Fail("notification not found"))
			return
		}
		h.logger.Error("Failed to mark notification read",
			zap.String("notification_id", req.NotificationID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, Fail("failed to mark notification read"))
		return
	}

	writeJSON(w, http.StatusOK, Ok(notification))
}

// readAllRequest 全部已读请求体
type readAllRequest struct {
	SubjectID string `json:"subject_id"`
}

// MarkAllRead 标记被监护人全部通知为已读
func (h *MonitorHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	var req readAllRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil || req.SubjectID == "" {
		writeJSON(w, http.StatusBadRequest, Fail("subject_id is required"))
		return
	}

	count, err := h.notifications.MarkAllRead(r.Context(), req.SubjectID)
	if err != nil {
		h.logger.Error("Failed to mark all notifications read",
			zap.String("subject_id", req.SubjectID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, Fail("failed to mark all notifications read"))
		return
	}

	writeJSON(w, http.StatusOK, Ok(map[string]any{"updated": count}))
}
