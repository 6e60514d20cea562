package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"carelink-monitor/internal/models"
	"carelink-monitor/internal/repository"
	"carelink-monitor/internal/scheduler"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// ============================================
// 测试替身
// ============================================

type fakeRunner struct {
	summary *scheduler.RunSummary
	err     error

	gotScope     string
	gotSubjectID string
}

func (f *fakeRunner) RunNow(ctx context.Context, scope, subjectID string) (*scheduler.RunSummary, error) {
	f.gotScope = scope
	f.gotSubjectID = subjectID
	return f.summary, f.err
}

type fakeAlertStore struct {
	alert   *models.Alert
	alerts  []*models.Alert
	total   int
	ackErr  error
	listErr error

	gotFilters repository.AlertFilters
	gotPage    int
	gotSize    int
}

func (f *fakeAlertStore) AcknowledgeAlert(ctx context.Context, alertID string) (*models.Alert, error) {
	return f.alert, f.ackErr
}

func (f *fakeAlertStore) ListAlerts(ctx context.Context, filters repository.AlertFilters, page, size int) ([]*models.Alert, int, error) {
	f.gotFilters = filters
	f.gotPage = page
	f.gotSize = size
	return f.alerts, f.total, f.listErr
}

type fakeNotificationStore struct {
	notification *models.Notification
	readErr      error
	allCount     int
	allErr       error

	notifications []*models.Notification
	total         int
	listErr       error
	gotUnreadOnly bool
}

func (f *fakeNotificationStore) MarkNotificationRead(ctx context.Context, notificationID string) (*models.Notification, error) {
	return f.notification, f.readErr
}

func (f *fakeNotificationStore) MarkAllRead(ctx context.Context, subjectID string) (int, error) {
	return f.allCount, f.allErr
}

func (f *fakeNotificationStore) ListNotifications(ctx context.Context, subjectID string, unreadOnly bool, page, size int) ([]*models.Notification, int, error) {
	f.gotUnreadOnly = unreadOnly
	return f.notifications, f.total, f.listErr
}

func setupTestRouter(runner *fakeRunner, alerts *fakeAlertStore, notifications *fakeNotificationStore) *Router {
	logger := zap.NewNop()
	handler := NewMonitorHandler(runner, alerts, notifications, logger)
	router := NewRouter(logger)
	router.RegisterMonitorRoutes(handler)
	return router
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) Result[json.RawMessage] {
	var result Result[json.RawMessage]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	return result
}

// ============================================
// RunNow 接口测试
// ============================================

func TestRunNowEndpoint_Success(t *testing.T) {
	runner := &fakeRunner{
		summary: &scheduler.RunSummary{
			RunID:             "run-1",
			Scope:             scheduler.ScopeSubject,
			SubjectID:         "subject-1",
			SubjectsEvaluated: 1,
			AlertsCreated:     1,
			StartedAt:         time.Now(),
			FinishedAt:        time.Now(),
		},
	}
	router := setupTestRouter(runner, &fakeAlertStore{}, &fakeNotificationStore{})

	body := `{"scope":"subject","subject_id":"subject-1"}`
	req := httptest.NewRequest(http.MethodPost, "/monitor/api/v1/run", strings.NewReader(body))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, scheduler.ScopeSubject, runner.gotScope)
	assert.Equal(t, "subject-1", runner.gotSubjectID)

	result := decodeResult(t, rec)
	assert.Equal(t, ResultSuccess, result.Code)

	var summary scheduler.RunSummary
	require.NoError(t, json.Unmarshal(result.Result, &summary))
	assert.Equal(t, "run-1", summary.RunID)
	assert.Equal(t, 1, summary.AlertsCreated)
}

func TestRunNowEndpoint_DefaultsToScopeAll(t *testing.T) {
	runner := &fakeRunner{summary: &scheduler.RunSummary{RunID: "run-1", Scope: scheduler.ScopeAll}}
	router := setupTestRouter(runner, &fakeAlertStore{}, &fakeNotificationStore{})

	req := httptest.NewRequest(http.MethodPost, "/monitor/api/v1/run", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, scheduler.ScopeAll, runner.gotScope)
}

func TestRunNowEndpoint_InvalidScope(t *testing.T) {
	runner := &fakeRunner{err: fmt.Errorf("invalid scope: tenant")}
	router := setupTestRouter(runner, &fakeAlertStore{}, &fakeNotificationStore{})

	req := httptest.NewRequest(http.MethodPost, "/monitor/api/v1/run", strings.NewReader(`{"scope":"tenant"}`))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	result := decodeResult(t, rec)
	assert.Equal(t, ResultError, result.Code)
	assert.Contains(t, result.Message, "invalid scope")
}

func TestRunNowEndpoint_MethodNotAllowed(t *testing.T) {
	router := setupTestRouter(&fakeRunner{}, &fakeAlertStore{}, &fakeNotificationStore{})

	req := httptest.NewRequest(http.MethodGet, "/monitor/api/v1/run", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

// ============================================
// 告警接口测试
// ============================================

func TestListAlertsEndpoint_Success(t *testing.T) {
	alerts := &fakeAlertStore{
		alerts: []*models.Alert{
			{
				AlertID:   "alert-1",
				SubjectID: "subject-1",
				Category:  models.CategoryVitalAlert,
				Severity:  models.SeverityModerate,
				Message:   "High blood pressure detected: 150/95 mmHg",
				Detail:    "{}",
				CreatedAt: time.Now(),
			},
		},
		total: 1,
	}
	router := setupTestRouter(&fakeRunner{}, alerts, &fakeNotificationStore{})

	req := httptest.NewRequest(http.MethodGet,
		"/monitor/api/v1/alerts?subject_id=subject-1&category=vital_alert&unacked=true&page=2&page_size=10", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, alerts.gotFilters.SubjectID)
	assert.Equal(t, "subject-1", *alerts.gotFilters.SubjectID)
	require.NotNil(t, alerts.gotFilters.Category)
	assert.Equal(t, models.CategoryVitalAlert, *alerts.gotFilters.Category)
	assert.True(t, alerts.gotFilters.Unacked)
	assert.Equal(t, 2, alerts.gotPage)
	assert.Equal(t, 10, alerts.gotSize)

	result := decodeResult(t, rec)
	assert.Equal(t, ResultSuccess, result.Code)
}

func TestListAlertsEndpoint_PageSizeCapped(t *testing.T) {
	alerts := &fakeAlertStore{}
	router := setupTestRouter(&fakeRunner{}, alerts, &fakeNotificationStore{})

	req := httptest.NewRequest(http.MethodGet, "/monitor/api/v1/alerts?page_size=500", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 100, alerts.gotSize)
}

func TestAcknowledgeAlertEndpoint_Success(t *testing.T) {
	alerts := &fakeAlertStore{
		alert: &models.Alert{
			AlertID:      "alert-1",
			SubjectID:    "subject-1",
			Category:     models.CategoryVitalAlert,
			Severity:     models.SeverityModerate,
			Acknowledged: true,
			CreatedAt:    time.Now(),
		},
	}
	router := setupTestRouter(&fakeRunner{}, alerts, &fakeNotificationStore{})

	body := `{"alert_id":"alert-1"}`
	req := httptest.NewRequest(http.MethodPost, "/monitor/api/v1/alerts/ack", strings.NewReader(body))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	result := decodeResult(t, rec)
	assert.Equal(t, ResultSuccess, result.Code)

	var alert models.Alert
	require.NoError(t, json.Unmarshal(result.Result, &alert))
	assert.True(t, alert.Acknowledged)
}

func TestAcknowledgeAlertEndpoint_NotFound(t *testing.T) {
	alerts := &fakeAlertStore{
		ackErr: fmt.Errorf("alert not found: alert_id=alert-x: %w", repository.ErrNotFound),
	}
	router := setupTestRouter(&fakeRunner{}, alerts, &fakeNotificationStore{})

	body := `{"alert_id":"alert-x"}`
	req := httptest.NewRequest(http.MethodPost, "/monitor/api/v1/alerts/ack", strings.NewReader(body))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAcknowledgeAlertEndpoint_MissingAlertID(t *testing.T) {
	router := setupTestRouter(&fakeRunner{}, &fakeAlertStore{}, &fakeNotificationStore{})

	req := httptest.NewRequest(http.MethodPost, "/monitor/api/v1/alerts/ack", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// ============================================
// 通知接口测试
// ============================================

func TestListNotificationsEndpoint_Success(t *testing.T) {
	notifications := &fakeNotificationStore{
		notifications: []*models.Notification{
			{
				NotificationID: "notification-1",
				SubjectID:      "subject-1",
				Type:           models.NotificationTypeLowStock,
				Message:        "Low stock for Metformin: 5 doses left (refill at 10)",
				CreatedAt:      time.Now(),
			},
		},
		total: 1,
	}
	router := setupTestRouter(&fakeRunner{}, &fakeAlertStore{}, notifications)

	req := httptest.NewRequest(http.MethodGet, "/monitor/api/v1/notifications?subject_id=subject-1&unread=true", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, notifications.gotUnreadOnly)

	result := decodeResult(t, rec)
	assert.Equal(t, ResultSuccess, result.Code)
}

func TestListNotificationsEndpoint_MissingSubjectID(t *testing.T) {
	router := setupTestRouter(&fakeRunner{}, &fakeAlertStore{}, &fakeNotificationStore{})

	req := httptest.NewRequest(http.MethodGet, "/monitor/api/v1/notifications", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMarkNotificationReadEndpoint_Success(t *testing.T) {
	notifications := &fakeNotificationStore{
		notification: &models.Notification{
			NotificationID: "notification-1",
			SubjectID:      "subject-1",
			Type:           models.NotificationTypeMedReminder,
			Read:           true,
			CreatedAt:      time.Now(),
		},
	}
	router := setupTestRouter(&fakeRunner{}, &fakeAlertStore{}, notifications)

	body := `{"notification_id":"notification-1"}`
	req := httptest.NewRequest(http.MethodPost, "/monitor/api/v1/notifications/read", strings.NewReader(body))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	result := decodeResult(t, rec)
	var notification models.Notification
	require.NoError(t, json.Unmarshal(result.Result, &notification))
	assert.True(t, notification.Read)
}

func TestMarkNotificationReadEndpoint_NotFound(t *testing.T) {
	notifications := &fakeNotificationStore{
		readErr: fmt.Errorf("notification not found: %w", repository.ErrNotFound),
	}
	router := setupTestRouter(&fakeRunner{}, &fakeAlertStore{}, notifications)

	body := `{"notification_id":"notification-x"}`
	req := httptest.NewRequest(http.MethodPost, "/monitor/api/v1/notifications/read", strings.NewReader(body))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMarkAllReadEndpoint_Success(t *testing.T) {
	notifications := &fakeNotificationStore{allCount: 3}
	router := setupTestRouter(&fakeRunner{}, &fakeAlertStore{}, notifications)

	body := `{"subject_id":"subject-1"}`
	req := httptest.NewRequest(http.MethodPost, "/monitor/api/v1/notifications/read-all", strings.NewReader(body))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	result := decodeResult(t, rec)
	var payload map[string]int
	require.NoError(t, json.Unmarshal(result.Result, &payload))
	assert.Equal(t, 3, payload["updated"])
}

func TestMarkAllReadEndpoint_MissingSubjectID(t *testing.T) {
	router := setupTestRouter(&fakeRunner{}, &fakeAlertStore{}, &fakeNotificationStore{})

	req := httptest.NewRequest(http.MethodPost, "/monitor/api/v1/notifications/read-all", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
