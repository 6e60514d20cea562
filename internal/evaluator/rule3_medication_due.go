package evaluator

import (
	"fmt"

	"carelink-monitor/internal/models"
)

// MedicationDueRule 规则3：服药时间提醒
// 用药计划的时间点列表包含当前时刻（"HH:MM"，按巡检粒度精确匹配）时触发
// 该规则的命中会同时生成 Alert 和 med_reminder Notification（由 Sink 路由）
type MedicationDueRule struct{}

// NewMedicationDueRule 创建服药提醒规则
func NewMedicationDueRule() *MedicationDueRule {
	return &MedicationDueRule{}
}

// ID 规则标识
func (r *MedicationDueRule) ID() string {
	return "medication_due"
}

// Evaluate 评估规则3
func (r *MedicationDueRule) Evaluate(snap *Snapshot) ([]models.Finding, error) {
	findings := []models.Finding{}

	for i := range snap.Schedules {
		schedule := &snap.Schedules[i]
		if !schedule.DueAt(snap.NowHHMM) {
			continue
		}

		medicineName := schedule.MedicineName
		dosage := schedule.Dosage
		dueTime := snap.NowHHMM

		findings = append(findings, models.Finding{
			RuleID:    r.ID(),
			SubjectID: snap.SubjectID,
			Category:  models.CategoryMissedMeds,
			Severity:  models.SeverityHigh,
			Message:   fmt.Sprintf("Time to take %s (%s) - scheduled for %s", medicineName, dosage, dueTime),
			Detail: &models.FindingDetail{
				MedicineName: &medicineName,
				Dosage:       &dosage,
				DueTime:      &dueTime,
			},
		})
	}

	return findings, nil
}
