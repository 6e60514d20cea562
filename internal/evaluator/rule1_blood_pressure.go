package evaluator

import (
	"fmt"

	"carelink-monitor/internal/models"
)

// 血压阈值
const (
	systolicThreshold  = 140
	diastolicThreshold = 90
)

// BloodPressureRule 规则1：高血压检测
// 最新读数 systolic > 140 或 diastolic > 90 时触发
type BloodPressureRule struct{}

// NewBloodPressureRule 创建高血压规则
func NewBloodPressureRule() *BloodPressureRule {
	return &BloodPressureRule{}
}

// ID 规则标识
func (r *BloodPressureRule) ID() string {
	return "high_blood_pressure"
}

// Evaluate 评估规则1
func (r *BloodPressureRule) Evaluate(snap *Snapshot) ([]models.Finding, error) {
	// 无读数时跳过（不是错误）
	if snap.Latest == nil {
		return nil, nil
	}

	systolicHigh := snap.Latest.Systolic != nil && *snap.Latest.Systolic > systolicThreshold
	diastolicHigh := snap.Latest.Diastolic != nil && *snap.Latest.Diastolic > diastolicThreshold
	if !systolicHigh && !diastolicHigh {
		return nil, nil
	}

	finding := models.Finding{
		RuleID:    r.ID(),
		SubjectID: snap.SubjectID,
		Category:  models.CategoryVitalAlert,
		Severity:  models.SeverityModerate,
		Message:   fmt.Sprintf("High blood pressure detected: %s mmHg", formatBP(snap.Latest.Systolic, snap.Latest.Diastolic)),
		Detail: &models.FindingDetail{
			Systolic:  snap.Latest.Systolic,
			Diastolic: snap.Latest.Diastolic,
		},
	}

	return []models.Finding{finding}, nil
}

// formatBP 格式化血压读数，缺失的一侧显示为 "-"
func formatBP(systolic, diastolic *int) string {
	s := "-"
	d := "-"
	if systolic != nil {
		s = fmt.Sprintf("%d", *systolic)
	}
	if diastolic != nil {
		d = fmt.Sprintf("%d", *diastolic)
	}
	return s + "/" + d
}
