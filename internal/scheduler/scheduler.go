package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"carelink-monitor/internal/config"
	"carelink-monitor/internal/evaluator"
	"carelink-monitor/internal/models"
	"carelink-monitor/internal/sink"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// 巡检范围
const (
	ScopeSubject   = "subject"
	ScopeHousehold = "household"
	ScopeAll       = "all"
)

// SubjectSource 被监护人枚举接口（由 repository 支撑的实现提供）
type SubjectSource interface {
	GetAllSubjectIDs(ctx context.Context) ([]string, error)
	GetHouseholdSubjectIDs(ctx context.Context, subjectID string) ([]string, error)
	GetSubject(ctx context.Context, subjectID string) (*models.Subject, error)
	GetHouseholdContacts(ctx context.Context, subjectID string) ([]models.EmergencyContact, error)
}

// Evaluator 规则评估器接口
type Evaluator interface {
	Evaluate(ctx context.Context, subjectID string) ([]models.Finding, []evaluator.Failure)
}

// Sink 落库器接口
type Sink interface {
	Persist(ctx context.Context, finding *models.Finding) (*sink.Result, error)
}

// Dispatcher 外发适配器接口
type Dispatcher interface {
	Send(contacts []models.EmergencyContact, subjectName string, finding *models.Finding) error
}

// FindingsCache 最新结果缓存接口
type FindingsCache interface {
	UpdateFindings(ctx context.Context, subjectID string, findings []models.Finding) error
}

// SubjectFailure 单个被监护人巡检中的失败记录
type SubjectFailure struct {
	SubjectID string              `json:"subject_id"`
	Failures  []evaluator.Failure `json:"failures"`
}

// RunSummary 一次巡检的汇总结果
type RunSummary struct {
	RunID                string           `json:"run_id"`
	Scope                string           `json:"scope"`
	SubjectID            string           `json:"subject_id,omitempty"` // subject/household 范围的入口被监护人
	SubjectsEvaluated    int              `json:"subjects_evaluated"`
	AlertsCreated        int              `json:"alerts_created"`
	NotificationsCreated int              `json:"notifications_created"`
	DispatchesAttempted  int              `json:"dispatches_attempted"`
	DispatchesFailed     int              `json:"dispatches_failed"`
	Failures             []SubjectFailure `json:"failures,omitempty"`
	StartedAt            time.Time        `json:"started_at"`
	FinishedAt           time.Time        `json:"finished_at"`
}

// Scheduler 巡检调度器
// 唯一感知时间的组件：后台定时 Tick 全量巡检 + 同步 RunNow 按范围巡检
type Scheduler struct {
	subjects   SubjectSource
	evaluator  Evaluator
	sink       Sink
	dispatcher Dispatcher    // 未配置外发时为 nil
	cache      FindingsCache // 未配置缓存时为 nil
	config     *config.Config
	logger     *zap.Logger

	// Tick 互斥标志：上一轮全量巡检未结束时新一轮 Tick 直接跳过
	sweeping atomic.Bool

	// RunNow 同范围串行化锁
	scopeMu    sync.Mutex
	scopeLocks map[string]*sync.Mutex
}

// NewScheduler 创建巡检调度器
func NewScheduler(
	subjects SubjectSource,
	eval Evaluator,
	s Sink,
	dispatcher Dispatcher,
	cache FindingsCache,
	cfg *config.Config,
	logger *zap.Logger,
) *Scheduler {
	return &Scheduler{
		subjects:   subjects,
		evaluator:  eval,
		sink:       s,
		dispatcher: dispatcher,
		cache:      cache,
		config:     cfg,
		logger:     logger,
		scopeLocks: make(map[string]*sync.Mutex),
	}
}

// Start 启动后台巡检循环（阻塞直到 ctx 取消）
func (s *Scheduler) Start(ctx context.Context) error {
	interval := time.Duration(s.config.Monitor.SweepInterval) * time.Second
	s.logger.Info("Scheduler started",
		zap.Duration("sweep_interval", interval),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// 立即执行一次
	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped")
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick 触发一轮全量巡检
// 上一轮未完成时跳过本轮，避免巡检重叠与重复告警
func (s *Scheduler) tick(ctx context.Context) {
	if !s.sweeping.CompareAndSwap(false, true) {
		s.logger.Warn("Previous sweep still in progress, skipping tick")
		return
	}
	defer s.sweeping.Store(false)

	summary, err := s.runScope(ctx, ScopeAll, "")
	if err != nil {
		s.logger.Error("Sweep failed",
			zap.Error(err),
		)
		return
	}

	s.logger.Info("Sweep finished",
		zap.String("run_id", summary.RunID),
		zap.Int("subjects_evaluated", summary.SubjectsEvaluated),
		zap.Int("alerts_created", summary.AlertsCreated),
		zap.Int("notifications_created", summary.NotificationsCreated),
		zap.Int("dispatches_failed", summary.DispatchesFailed),
		zap.Int("failed_subjects", len(summary.Failures)),
	)
}

// RunNow 按范围同步巡检
// 同一范围的两次调用串行执行；ctx 截止后不再启动新的被监护人评估，
// 进行中的评估允许完成
func (s *Scheduler) RunNow(ctx context.Context, scope, subjectID string) (*RunSummary, error) {
	switch scope {
	case ScopeAll:
	case ScopeSubject, ScopeHousehold:
		if subjectID == "" {
			return nil, fmt.Errorf("subject_id is required for scope %s", scope)
		}
	default:
		return nil, fmt.Errorf("invalid scope: %s", scope)
	}

	lock := s.scopeLock(scopeKey(scope, subjectID))
	lock.Lock()
	defer lock.Unlock()

	return s.runScope(ctx, scope, subjectID)
}

// runScope 执行一轮巡检（范围解析 + 逐个评估）
func (s *Scheduler) runScope(ctx context.Context, scope, subjectID string) (*RunSummary, error) {
	summary := &RunSummary{
		RunID:     uuid.New().String(),
		Scope:     scope,
		SubjectID: subjectID,
		StartedAt: time.Now(),
	}

	ids, err := s.resolveScope(ctx, scope, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve scope: %w", err)
	}

	for _, id := range ids {
		// 截止/取消后不再启动新的评估
		if ctx.Err() != nil {
			s.logger.Warn("Run deadline reached, stopping before next subject",
				zap.String("run_id", summary.RunID),
				zap.Int("subjects_evaluated", summary.SubjectsEvaluated),
				zap.Int("subjects_remaining", len(ids)-summary.SubjectsEvaluated),
			)
			break
		}

		s.evaluateSubject(id, summary)
	}

	summary.FinishedAt = time.Now()
	return summary, nil
}

// evaluateSubject 单个被监护人的完整流水线：评估 → 落库 → 外发 → 缓存
// 任何一步失败都只影响该被监护人，巡检继续
func (s *Scheduler) evaluateSubject(subjectID string, summary *RunSummary) {
	// 进行中的评估不被父级取消强制中断，只受单被监护人超时约束
	ctx, cancel := context.WithTimeout(context.Background(),
		time.Duration(s.config.Monitor.SubjectTimeout)*time.Second)
	defer cancel()

	summary.SubjectsEvaluated++

	findings, failures := s.evaluator.Evaluate(ctx, subjectID)
	if len(failures) > 0 {
		summary.Failures = append(summary.Failures, SubjectFailure{
			SubjectID: subjectID,
			Failures:  failures,
		})
	}
	if len(findings) == 0 {
		return
	}

	// 外发需要的联系人按被监护人只拉取一次
	var contacts []models.EmergencyContact
	var subjectName string
	contactsLoaded := false

	for i := range findings {
		finding := &findings[i]

		// 1. 落库（失败不影响其余结果，也不影响外发判定之外的流程）
		result, err := s.sink.Persist(ctx, finding)
		if err != nil {
			s.logger.Error("Failed to persist finding",
				zap.String("subject_id", subjectID),
				zap.String("rule_id", finding.RuleID),
				zap.Error(err),
			)
			s.appendFailure(summary, subjectID, evaluator.Failure{
				Stage: "sink",
				Error: err.Error(),
			})
		}
		if result != nil {
			if result.AlertID != "" {
				summary.AlertsCreated++
			}
			if result.NotificationID != "" {
				summary.NotificationsCreated++
			}
		}

		// 2. 外发（尽力而为，失败只记录，不回滚落库）
		if s.dispatcher == nil || !finding.Dispatchable() {
			continue
		}

		if !contactsLoaded {
			contactsLoaded = true
			subject, err := s.subjects.GetSubject(ctx, subjectID)
			if err != nil {
				s.logger.Warn("Failed to get subject for dispatch",
					zap.String("subject_id", subjectID),
					zap.Error(err),
				)
			} else {
				subjectName = subject.FullName
			}

			contacts, err = s.subjects.GetHouseholdContacts(ctx, subjectID)
			if err != nil {
				s.logger.Warn("Failed to get household contacts",
					zap.String("subject_id", subjectID),
					zap.Error(err),
				)
				contacts = nil
			}
		}

		summary.DispatchesAttempted++
		if err := s.dispatcher.Send(contacts, subjectName, finding); err != nil {
			summary.DispatchesFailed++
			s.logger.Error("Failed to dispatch finding",
				zap.String("subject_id", subjectID),
				zap.String("rule_id", finding.RuleID),
				zap.Error(err),
			)
		}
	}

	// 3. 更新最新结果缓存（尽力而为）
	if s.cache != nil {
		if err := s.cache.UpdateFindings(ctx, subjectID, findings); err != nil {
			s.logger.Warn("Failed to update findings cache",
				zap.String("subject_id", subjectID),
				zap.Error(err),
			)
		}
	}
}

// resolveScope 解析巡检范围为被监护人 ID 列表
func (s *Scheduler) resolveScope(ctx context.Context, scope, subjectID string) ([]string, error) {
	switch scope {
	case ScopeSubject:
		return []string{subjectID}, nil
	case ScopeHousehold:
		return s.subjects.GetHouseholdSubjectIDs(ctx, subjectID)
	case ScopeAll:
		return s.subjects.GetAllSubjectIDs(ctx)
	default:
		return nil, fmt.Errorf("invalid scope: %s", scope)
	}
}

// appendFailure 追加失败记录，同一被监护人合并到一条
func (s *Scheduler) appendFailure(summary *RunSummary, subjectID string, failure evaluator.Failure) {
	for i := range summary.Failures {
		if summary.Failures[i].SubjectID == subjectID {
			summary.Failures[i].Failures = append(summary.Failures[i].Failures, failure)
			return
		}
	}
	summary.Failures = append(summary.Failures, SubjectFailure{
		SubjectID: subjectID,
		Failures:  []evaluator.Failure{failure},
	})
}

// scopeLock 获取范围锁（懒创建）
func (s *Scheduler) scopeLock(key string) *sync.Mutex {
	s.scopeMu.Lock()
	defer s.scopeMu.Unlock()

	if lock, ok := s.scopeLocks[key]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	s.scopeLocks[key] = lock
	return lock
}

// scopeKey 构建范围锁键
func scopeKey(scope, subjectID string) string {
	if scope == ScopeAll {
		return ScopeAll
	}
	return scope + ":" + subjectID
}
