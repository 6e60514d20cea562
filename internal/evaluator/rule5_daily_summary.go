package evaluator

import (
	"fmt"
	"strings"

	"carelink-monitor/internal/models"
)

// DailySummaryRule 规则5：每日健康摘要
// 在配置的时间点（"HH:MM"，与规则3相同的巡检粒度匹配）对最近读数窗口
// 求平均并生成 summary 类别结果，仅生成 Alert，不外发
type DailySummaryRule struct {
	summaryTime string // 为空则规则不启用
}

// NewDailySummaryRule 创建每日摘要规则
func NewDailySummaryRule(summaryTime string) *DailySummaryRule {
	return &DailySummaryRule{
		summaryTime: summaryTime,
	}
}

// ID 规则标识
func (r *DailySummaryRule) ID() string {
	return "daily_summary"
}

// Evaluate 评估规则5
func (r *DailySummaryRule) Evaluate(snap *Snapshot) ([]models.Finding, error) {
	if r.summaryTime == "" || snap.NowHHMM != r.summaryTime {
		return nil, nil
	}
	// 窗口为空时无内容可摘要
	if len(snap.Window) == 0 {
		return nil, nil
	}

	parts := []string{}
	detail := &models.FindingDetail{}
	windowSize := len(snap.Window)
	detail.WindowSize = &windowSize

	if avgSys, avgDia, ok := averageBP(snap.Window); ok {
		parts = append(parts, fmt.Sprintf("avg BP %d/%d mmHg", avgSys, avgDia))
		detail.Systolic = &avgSys
		detail.Diastolic = &avgDia
	}
	if avgGlucose, ok := averageGlucose(snap.Window); ok {
		parts = append(parts, fmt.Sprintf("avg glucose %.1f mg/dL", avgGlucose))
		detail.Glucose = &avgGlucose
	}
	if len(parts) == 0 {
		return nil, nil
	}

	finding := models.Finding{
		RuleID:    r.ID(),
		SubjectID: snap.SubjectID,
		Category:  models.CategorySummary,
		Severity:  models.SeverityLow,
		Message:   fmt.Sprintf("Daily health summary (%d readings): %s", windowSize, strings.Join(parts, ", ")),
		Detail:    detail,
	}

	return []models.Finding{finding}, nil
}

// averageBP 计算窗口内血压均值，两侧都至少有一个值时才有效
func averageBP(window []models.Reading) (int, int, bool) {
	var sysSum, sysN, diaSum, diaN int
	for i := range window {
		if window[i].Systolic != nil {
			sysSum += *window[i].Systolic
			sysN++
		}
		if window[i].Diastolic != nil {
			diaSum += *window[i].Diastolic
			diaN++
		}
	}
	if sysN == 0 || diaN == 0 {
		return 0, 0, false
	}
	return sysSum / sysN, diaSum / diaN, true
}

// averageGlucose 计算窗口内血糖均值
func averageGlucose(window []models.Reading) (float64, bool) {
	var sum float64
	var n int
	for i := range window {
		if window[i].Glucose != nil {
			sum += *window[i].Glucose
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}
