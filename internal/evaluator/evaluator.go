package evaluator

import (
	"context"
	"fmt"
	"time"

	"carelink-monitor/internal/config"
	"carelink-monitor/internal/models"

	"go.uber.org/zap"
)

// Provider 数据提供方接口（只读，由 repository 支撑的实现提供）
type Provider interface {
	GetLatestReading(ctx context.Context, subjectID string) (*models.Reading, error)
	GetRecentReadings(ctx context.Context, subjectID string, limit int) ([]models.Reading, error)
	GetActiveSchedules(ctx context.Context, subjectID string) ([]models.MedicationSchedule, error)
}

// Failure 单个被监护人评估过程中的局部失败
type Failure struct {
	Stage  string `json:"stage"`             // "provider" 或 "rule"
	RuleID string `json:"rule_id,omitempty"` // Stage == "rule" 时为规则标识
	Error  string `json:"error"`
}

// Evaluator 规则评估器
// 对单个被监护人拉取数据快照，运行目录中的全部规则并汇总结果
type Evaluator struct {
	provider Provider
	rules    []Rule
	config   *config.Config
	logger   *zap.Logger
	now      func() time.Time // 测试时可替换为固定时钟
}

// NewEvaluator 创建评估器（固定规则目录）
func NewEvaluator(provider Provider, cfg *config.Config, logger *zap.Logger) *Evaluator {
	rules := []Rule{
		NewBloodPressureRule(),
		NewGlucoseRule(),
		NewMedicationDueRule(),
		NewLowStockRule(),
	}
	if cfg.Monitor.SummaryTime != "" {
		rules = append(rules, NewDailySummaryRule(cfg.Monitor.SummaryTime))
	}

	return &Evaluator{
		provider: provider,
		rules:    rules,
		config:   cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Evaluate 评估单个被监护人，返回规则命中结果与局部失败列表
// Provider 拉取失败只跳过依赖该数据的规则；单条规则失败不影响其余规则
func (e *Evaluator) Evaluate(ctx context.Context, subjectID string) ([]models.Finding, []Failure) {
	var failures []Failure

	// Now 按被监护人计算一次，保证同一次评估内所有规则看到同一时刻
	now := e.now()
	snap := &Snapshot{
		SubjectID: subjectID,
		Now:       now,
		NowHHMM:   now.Format("15:04"),
	}

	// 1. 拉取最新读数（无读数返回 nil，体征规则自行跳过）
	latest, err := e.provider.GetLatestReading(ctx, subjectID)
	if err != nil {
		e.logger.Warn("Failed to get latest reading",
			zap.String("subject_id", subjectID),
			zap.Error(err),
		)
		failures = append(failures, Failure{Stage: "provider", Error: fmt.Sprintf("latest reading: %v", err)})
	} else {
		snap.Latest = latest
	}

	// 2. 摘要规则启用时拉取读数窗口
	if e.config.Monitor.SummaryTime != "" {
		window, err := e.provider.GetRecentReadings(ctx, subjectID, e.config.Monitor.SummaryWindow)
		if err != nil {
			e.logger.Warn("Failed to get recent readings",
				zap.String("subject_id", subjectID),
				zap.Error(err),
			)
			failures = append(failures, Failure{Stage: "provider", Error: fmt.Sprintf("recent readings: %v", err)})
		} else {
			snap.Window = window
		}
	}

	// 3. 拉取启用中的用药计划
	schedules, err := e.provider.GetActiveSchedules(ctx, subjectID)
	if err != nil {
		e.logger.Warn("Failed to get medication schedules",
			zap.String("subject_id", subjectID),
			zap.Error(err),
		)
		failures = append(failures, Failure{Stage: "provider", Error: fmt.Sprintf("medication schedules: %v", err)})
	} else {
		snap.Schedules = schedules
	}

	// 4. 运行全部规则，单条规则失败隔离处理
	var findings []models.Finding
	for _, rule := range e.rules {
		ruleFindings, err := e.runRule(rule, snap)
		if err != nil {
			e.logger.Error("Failed to evaluate rule",
				zap.String("subject_id", subjectID),
				zap.String("rule_id", rule.ID()),
				zap.Error(err),
			)
			failures = append(failures, Failure{Stage: "rule", RuleID: rule.ID(), Error: err.Error()})
			continue
		}
		findings = append(findings, ruleFindings...)
	}

	return findings, failures
}

// runRule 运行单条规则，panic 转为错误以保证其余规则继续执行
func (e *Evaluator) runRule(rule Rule, snap *Snapshot) (findings []models.Finding, err error) {
	defer func() {
		if r := recover(); r != nil {
			findings = nil
			err = fmt.Errorf("rule panicked: %v", r)
		}
	}()

	return rule.Evaluate(snap)
}

// Rules 返回规则目录（测试用）
func (e *Evaluator) Rules() []Rule {
	return e.rules
}
