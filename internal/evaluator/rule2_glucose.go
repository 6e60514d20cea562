package evaluator

import (
	"fmt"

	"carelink-monitor/internal/models"
)

// 血糖阈值 mg/dL
const glucoseThreshold = 160.0

// GlucoseRule 规则2：高血糖检测
// 最新读数 glucose > 160 时触发
type GlucoseRule struct{}

// NewGlucoseRule 创建高血糖规则
func NewGlucoseRule() *GlucoseRule {
	return &GlucoseRule{}
}

// ID 规则标识
func (r *GlucoseRule) ID() string {
	return "high_glucose"
}

// Evaluate 评估规则2
func (r *GlucoseRule) Evaluate(snap *Snapshot) ([]models.Finding, error) {
	if snap.Latest == nil || snap.Latest.Glucose == nil {
		return nil, nil
	}
	if *snap.Latest.Glucose <= glucoseThreshold {
		return nil, nil
	}

	finding := models.Finding{
		RuleID:    r.ID(),
		SubjectID: snap.SubjectID,
		Category:  models.CategoryVitalAlert,
		Severity:  models.SeverityLow,
		Message:   fmt.Sprintf("High glucose level detected: %.0f mg/dL", *snap.Latest.Glucose),
		Detail: &models.FindingDetail{
			Glucose: snap.Latest.Glucose,
		},
	}

	return []models.Finding{finding}, nil
}
