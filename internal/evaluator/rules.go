package evaluator

import (
	"time"

	"carelink-monitor/internal/models"
)

// Snapshot 单个被监护人一次评估的数据快照
// 同一次评估内所有规则看到相同的 Now 与相同的数据，互不影响
type Snapshot struct {
	SubjectID string
	Latest    *models.Reading              // 最新读数，可能为 nil（无读数时跳过体征规则）
	Window    []models.Reading             // 最近读数窗口（按时间倒序），供摘要等需要历史的规则使用
	Schedules []models.MedicationSchedule // 启用中的用药计划
	Now       time.Time
	NowHHMM   string // Now 的 "HH:MM" 格式，按评估计算一次
}

// Rule 监测规则接口
// 规则必须是纯函数：相同快照产生相同结果，不读写持久化状态
type Rule interface {
	ID() string
	Evaluate(snap *Snapshot) ([]models.Finding, error)
}
