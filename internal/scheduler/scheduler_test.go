package scheduler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"carelink-monitor/internal/config"
	"carelink-monitor/internal/evaluator"
	"carelink-monitor/internal/models"
	"carelink-monitor/internal/sink"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// ============================================
// 测试替身
// ============================================

type fakeSubjectSource struct {
	allIDs       []string
	allErr       error
	householdIDs map[string][]string
	subjects     map[string]*models.Subject
	contacts     map[string][]models.EmergencyContact
}

func (f *fakeSubjectSource) GetAllSubjectIDs(ctx context.Context) ([]string, error) {
	return f.allIDs, f.allErr
}

func (f *fakeSubjectSource) GetHouseholdSubjectIDs(ctx context.Context, subjectID string) ([]string, error) {
	return f.householdIDs[subjectID], nil
}

func (f *fakeSubjectSource) GetSubject(ctx context.Context, subjectID string) (*models.Subject, error) {
	if s, ok := f.subjects[subjectID]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("subject not found")
}

func (f *fakeSubjectSource) GetHouseholdContacts(ctx context.Context, subjectID string) ([]models.EmergencyContact, error) {
	return f.contacts[subjectID], nil
}

type fakeEvaluator struct {
	mu       sync.Mutex
	findings map[string][]models.Finding
	failures map[string][]evaluator.Failure
	calls    []string
	delay    time.Duration
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, subjectID string) ([]models.Finding, []evaluator.Failure) {
	f.mu.Lock()
	f.calls = append(f.calls, subjectID)
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.findings[subjectID], f.failures[subjectID]
}

func (f *fakeEvaluator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeSink struct {
	mu       sync.Mutex
	persists []models.Finding
	err      error
}

func (f *fakeSink) Persist(ctx context.Context, finding *models.Finding) (*sink.Result, error) {
	f.mu.Lock()
	f.persists = append(f.persists, *finding)
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}

	result := &sink.Result{}
	switch finding.Category {
	case models.CategoryVitalAlert, models.CategorySummary:
		result.AlertID = "alert-" + finding.RuleID
	case models.CategoryMissedMeds:
		result.AlertID = "alert-" + finding.RuleID
		result.NotificationID = "notification-" + finding.RuleID
	case models.CategoryLowStock:
		result.NotificationID = "notification-" + finding.RuleID
	}
	return result, nil
}

func (f *fakeSink) persistCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.persists)
}

type fakeDispatcher struct {
	mu    sync.Mutex
	sends []models.Finding
	err   error
}

func (f *fakeDispatcher) Send(contacts []models.EmergencyContact, subjectName string, finding *models.Finding) error {
	f.mu.Lock()
	f.sends = append(f.sends, *finding)
	f.mu.Unlock()
	return f.err
}

type fakeCache struct {
	mu      sync.Mutex
	updates map[string][]models.Finding
}

func (f *fakeCache) UpdateFindings(ctx context.Context, subjectID string, findings []models.Finding) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updates == nil {
		f.updates = make(map[string][]models.Finding)
	}
	f.updates[subjectID] = findings
	return nil
}

func schedulerConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Monitor.SweepInterval = 300
	cfg.Monitor.SubjectTimeout = 10
	return cfg
}

func vitalFinding(subjectID string) models.Finding {
	return models.Finding{
		RuleID:    "high_blood_pressure",
		SubjectID: subjectID,
		Category:  models.CategoryVitalAlert,
		Severity:  models.SeverityModerate,
		Message:   "High blood pressure detected: 150/95 mmHg",
	}
}

// ============================================
// RunNow 范围测试
// ============================================

func TestRunNow_ScopeSubject(t *testing.T) {
	subjects := &fakeSubjectSource{}
	eval := &fakeEvaluator{
		findings: map[string][]models.Finding{
			"subject-1": {vitalFinding("subject-1")},
		},
	}
	s := &fakeSink{}

	sched := NewScheduler(subjects, eval, s, nil, nil, schedulerConfig(), zap.NewNop())

	summary, err := sched.RunNow(context.Background(), ScopeSubject, "subject-1")

	require.NoError(t, err)
	assert.Equal(t, ScopeSubject, summary.Scope)
	assert.Equal(t, "subject-1", summary.SubjectID)
	assert.Equal(t, 1, summary.SubjectsEvaluated)
	assert.Equal(t, 1, summary.AlertsCreated)
	assert.Equal(t, 0, summary.NotificationsCreated)
	assert.NotEmpty(t, summary.RunID)
	assert.False(t, summary.FinishedAt.Before(summary.StartedAt))
}

func TestRunNow_ScopeHousehold(t *testing.T) {
	subjects := &fakeSubjectSource{
		householdIDs: map[string][]string{
			"subject-1": {"subject-1", "subject-2"},
		},
	}
	eval := &fakeEvaluator{}
	s := &fakeSink{}

	sched := NewScheduler(subjects, eval, s, nil, nil, schedulerConfig(), zap.NewNop())

	summary, err := sched.RunNow(context.Background(), ScopeHousehold, "subject-1")

	require.NoError(t, err)
	assert.Equal(t, 2, summary.SubjectsEvaluated)
	assert.Equal(t, []string{"subject-1", "subject-2"}, eval.calls)
}

func TestRunNow_ScopeAll(t *testing.T) {
	subjects := &fakeSubjectSource{allIDs: []string{"subject-1", "subject-2", "subject-3"}}
	eval := &fakeEvaluator{}
	s := &fakeSink{}

	sched := NewScheduler(subjects, eval, s, nil, nil, schedulerConfig(), zap.NewNop())

	summary, err := sched.RunNow(context.Background(), ScopeAll, "")

	require.NoError(t, err)
	assert.Equal(t, 3, summary.SubjectsEvaluated)
}

func TestRunNow_InvalidScope(t *testing.T) {
	sched := NewScheduler(&fakeSubjectSource{}, &fakeEvaluator{}, &fakeSink{}, nil, nil, schedulerConfig(), zap.NewNop())

	summary, err := sched.RunNow(context.Background(), "tenant", "")

	assert.Error(t, err)
	assert.Nil(t, summary)
	assert.Contains(t, err.Error(), "invalid scope")
}

func TestRunNow_SubjectScopeRequiresSubjectID(t *testing.T) {
	sched := NewScheduler(&fakeSubjectSource{}, &fakeEvaluator{}, &fakeSink{}, nil, nil, schedulerConfig(), zap.NewNop())

	summary, err := sched.RunNow(context.Background(), ScopeSubject, "")

	assert.Error(t, err)
	assert.Nil(t, summary)
	assert.Contains(t, err.Error(), "subject_id is required")
}

// ============================================
// 落库与计数测试
// ============================================

func TestRunNow_MissedMedsCountsAlertAndNotification(t *testing.T) {
	subjects := &fakeSubjectSource{}
	eval := &fakeEvaluator{
		findings: map[string][]models.Finding{
			"subject-1": {
				{
					RuleID:    "medication_due",
					SubjectID: "subject-1",
					Category:  models.CategoryMissedMeds,
					Severity:  models.SeverityHigh,
					Message:   "Time to take Metformin (500mg) - scheduled for 08:00",
				},
				{
					RuleID:    "low_stock",
					SubjectID: "subject-1",
					Category:  models.CategoryLowStock,
					Severity:  models.SeverityLow,
					Message:   "Low stock for Metformin: 5 doses left (refill at 10)",
				},
			},
		},
	}
	s := &fakeSink{}

	sched := NewScheduler(subjects, eval, s, nil, nil, schedulerConfig(), zap.NewNop())

	summary, err := sched.RunNow(context.Background(), ScopeSubject, "subject-1")

	require.NoError(t, err)
	// missed_meds 产生 Alert+Notification，low_stock 只产生 Notification
	assert.Equal(t, 1, summary.AlertsCreated)
	assert.Equal(t, 2, summary.NotificationsCreated)
	assert.Equal(t, 2, s.persistCount())
}

func TestRunNow_SinkFailureRecordedAndSweepContinues(t *testing.T) {
	subjects := &fakeSubjectSource{allIDs: []string{"subject-1", "subject-2"}}
	eval := &fakeEvaluator{
		findings: map[string][]models.Finding{
			"subject-1": {vitalFinding("subject-1")},
			"subject-2": {vitalFinding("subject-2")},
		},
	}
	s := &fakeSink{err: fmt.Errorf("db unavailable")}

	sched := NewScheduler(subjects, eval, s, nil, nil, schedulerConfig(), zap.NewNop())

	summary, err := sched.RunNow(context.Background(), ScopeAll, "")

	require.NoError(t, err)
	assert.Equal(t, 2, summary.SubjectsEvaluated)
	assert.Equal(t, 0, summary.AlertsCreated)
	require.Len(t, summary.Failures, 2)
	assert.Equal(t, "sink", summary.Failures[0].Failures[0].Stage)
}

func TestRunNow_EvaluatorFailureIsolatedPerSubject(t *testing.T) {
	// subject-1 评估失败，subject-2 仍正常产出
	subjects := &fakeSubjectSource{allIDs: []string{"subject-1", "subject-2"}}
	eval := &fakeEvaluator{
		findings: map[string][]models.Finding{
			"subject-2": {vitalFinding("subject-2")},
		},
		failures: map[string][]evaluator.Failure{
			"subject-1": {{Stage: "provider", Error: "connection refused"}},
		},
	}
	s := &fakeSink{}

	sched := NewScheduler(subjects, eval, s, nil, nil, schedulerConfig(), zap.NewNop())

	summary, err := sched.RunNow(context.Background(), ScopeAll, "")

	require.NoError(t, err)
	assert.Equal(t, 2, summary.SubjectsEvaluated)
	assert.Equal(t, 1, summary.AlertsCreated)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "subject-1", summary.Failures[0].SubjectID)
}

func TestRunNow_ConsecutiveRunsAppendAlerts(t *testing.T) {
	subjects := &fakeSubjectSource{}
	eval := &fakeEvaluator{
		findings: map[string][]models.Finding{
			"subject-1": {vitalFinding("subject-1")},
		},
	}
	s := &fakeSink{}

	sched := NewScheduler(subjects, eval, s, nil, nil, schedulerConfig(), zap.NewNop())

	// 状况未解除时连续两轮巡检各落一条告警
	first, err := sched.RunNow(context.Background(), ScopeSubject, "subject-1")
	require.NoError(t, err)
	second, err := sched.RunNow(context.Background(), ScopeSubject, "subject-1")
	require.NoError(t, err)

	assert.Equal(t, 1, first.AlertsCreated)
	assert.Equal(t, 1, second.AlertsCreated)
	assert.Equal(t, 2, s.persistCount())
}

// ============================================
// 外发测试
// ============================================

func TestRunNow_DispatchesToContacts(t *testing.T) {
	subjects := &fakeSubjectSource{
		subjects: map[string]*models.Subject{
			"subject-1": {SubjectID: "subject-1", HouseholdID: "h1", FullName: "Zhang Wei"},
		},
		contacts: map[string][]models.EmergencyContact{
			"subject-1": {{ContactID: "c1", Email: "lina@example.com", ReceiveEmail: true}},
		},
	}
	eval := &fakeEvaluator{
		findings: map[string][]models.Finding{
			"subject-1": {vitalFinding("subject-1")},
		},
	}
	s := &fakeSink{}
	d := &fakeDispatcher{}

	sched := NewScheduler(subjects, eval, s, d, nil, schedulerConfig(), zap.NewNop())

	summary, err := sched.RunNow(context.Background(), ScopeSubject, "subject-1")

	require.NoError(t, err)
	assert.Equal(t, 1, summary.DispatchesAttempted)
	assert.Equal(t, 0, summary.DispatchesFailed)
	require.Len(t, d.sends, 1)
	assert.Equal(t, "high_blood_pressure", d.sends[0].RuleID)
}

func TestRunNow_SummaryFindingNotDispatched(t *testing.T) {
	subjects := &fakeSubjectSource{}
	eval := &fakeEvaluator{
		findings: map[string][]models.Finding{
			"subject-1": {
				{
					RuleID:    "daily_summary",
					SubjectID: "subject-1",
					Category:  models.CategorySummary,
					Severity:  models.SeverityLow,
					Message:   "Daily health summary (2 readings): avg BP 135/90 mmHg",
				},
			},
		},
	}
	s := &fakeSink{}
	d := &fakeDispatcher{}

	sched := NewScheduler(subjects, eval, s, d, nil, schedulerConfig(), zap.NewNop())

	summary, err := sched.RunNow(context.Background(), ScopeSubject, "subject-1")

	require.NoError(t, err)
	assert.Equal(t, 1, summary.AlertsCreated)
	assert.Equal(t, 0, summary.DispatchesAttempted)
	assert.Empty(t, d.sends)
}

func TestRunNow_DispatchFailureDoesNotFailRun(t *testing.T) {
	subjects := &fakeSubjectSource{
		subjects: map[string]*models.Subject{
			"subject-1": {SubjectID: "subject-1", FullName: "Zhang Wei"},
		},
	}
	eval := &fakeEvaluator{
		findings: map[string][]models.Finding{
			"subject-1": {vitalFinding("subject-1")},
		},
	}
	s := &fakeSink{}
	d := &fakeDispatcher{err: fmt.Errorf("gateway timeout")}

	sched := NewScheduler(subjects, eval, s, d, nil, schedulerConfig(), zap.NewNop())

	summary, err := sched.RunNow(context.Background(), ScopeSubject, "subject-1")

	require.NoError(t, err)
	// 外发失败不回滚落库
	assert.Equal(t, 1, summary.AlertsCreated)
	assert.Equal(t, 1, summary.DispatchesAttempted)
	assert.Equal(t, 1, summary.DispatchesFailed)
}

func TestRunNow_NoDispatcherConfigured(t *testing.T) {
	subjects := &fakeSubjectSource{}
	eval := &fakeEvaluator{
		findings: map[string][]models.Finding{
			"subject-1": {vitalFinding("subject-1")},
		},
	}
	s := &fakeSink{}

	sched := NewScheduler(subjects, eval, s, nil, nil, schedulerConfig(), zap.NewNop())

	summary, err := sched.RunNow(context.Background(), ScopeSubject, "subject-1")

	require.NoError(t, err)
	assert.Equal(t, 1, summary.AlertsCreated)
	assert.Equal(t, 0, summary.DispatchesAttempted)
}

// ============================================
// 缓存更新测试
// ============================================

func TestRunNow_UpdatesFindingsCache(t *testing.T) {
	subjects := &fakeSubjectSource{}
	eval := &fakeEvaluator{
		findings: map[string][]models.Finding{
			"subject-1": {vitalFinding("subject-1")},
		},
	}
	s := &fakeSink{}
	c := &fakeCache{}

	sched := NewScheduler(subjects, eval, s, nil, c, schedulerConfig(), zap.NewNop())

	_, err := sched.RunNow(context.Background(), ScopeSubject, "subject-1")

	require.NoError(t, err)
	require.Len(t, c.updates["subject-1"], 1)
	assert.Equal(t, "high_blood_pressure", c.updates["subject-1"][0].RuleID)
}

// ============================================
// 截止与并发测试
// ============================================

func TestRunNow_DeadlineStopsBeforeNextSubject(t *testing.T) {
	subjects := &fakeSubjectSource{allIDs: []string{"subject-1", "subject-2", "subject-3"}}
	eval := &fakeEvaluator{delay: 60 * time.Millisecond}
	s := &fakeSink{}

	sched := NewScheduler(subjects, eval, s, nil, nil, schedulerConfig(), zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	summary, err := sched.RunNow(ctx, ScopeAll, "")

	require.NoError(t, err)
	// 进行中的评估完成，后续被监护人不再启动
	assert.GreaterOrEqual(t, summary.SubjectsEvaluated, 1)
	assert.Less(t, summary.SubjectsEvaluated, 3)
}

func TestRunNow_SameScopeSerialized(t *testing.T) {
	subjects := &fakeSubjectSource{}
	eval := &fakeEvaluator{delay: 30 * time.Millisecond}
	s := &fakeSink{}

	sched := NewScheduler(subjects, eval, s, nil, nil, schedulerConfig(), zap.NewNop())

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := sched.RunNow(context.Background(), ScopeSubject, "subject-1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// 同范围的两次调用串行执行
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
	assert.Equal(t, 2, eval.callCount())
}

func TestRunNow_DifferentScopesRunConcurrently(t *testing.T) {
	subjects := &fakeSubjectSource{}
	eval := &fakeEvaluator{delay: 50 * time.Millisecond}
	s := &fakeSink{}

	sched := NewScheduler(subjects, eval, s, nil, nil, schedulerConfig(), zap.NewNop())

	start := time.Now()
	var wg sync.WaitGroup
	for _, id := range []string{"subject-1", "subject-2"} {
		wg.Add(1)
		go func(subjectID string) {
			defer wg.Done()
			_, err := sched.RunNow(context.Background(), ScopeSubject, subjectID)
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()

	// 不同范围互不阻塞
	assert.Less(t, time.Since(start), 95*time.Millisecond)
	assert.Equal(t, 2, eval.callCount())
}

// ============================================
// 后台巡检循环测试
// ============================================

func TestStart_RunsImmediateSweepAndStopsOnCancel(t *testing.T) {
	subjects := &fakeSubjectSource{allIDs: []string{"subject-1"}}
	eval := &fakeEvaluator{}
	s := &fakeSink{}

	cfg := schedulerConfig()
	cfg.Monitor.SweepInterval = 3600

	sched := NewScheduler(subjects, eval, s, nil, nil, cfg, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- sched.Start(ctx)
	}()

	// 启动后立即执行首轮巡检
	require.Eventually(t, func() bool {
		return eval.callCount() == 1
	}, time.Second, 10*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after context cancel")
	}
}
