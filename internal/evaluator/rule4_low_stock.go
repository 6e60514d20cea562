package evaluator

import (
	"fmt"

	"carelink-monitor/internal/models"
)

// LowStockRule 规则4：药品库存不足
// stock_count <= refill_threshold 时触发，仅生成 Notification（由 Sink 路由）
type LowStockRule struct{}

// NewLowStockRule 创建库存不足规则
func NewLowStockRule() *LowStockRule {
	return &LowStockRule{}
}

// ID 规则标识
func (r *LowStockRule) ID() string {
	return "low_stock"
}

// Evaluate 评估规则4
func (r *LowStockRule) Evaluate(snap *Snapshot) ([]models.Finding, error) {
	findings := []models.Finding{}

	for i := range snap.Schedules {
		schedule := &snap.Schedules[i]
		if !schedule.NeedsRefill() {
			continue
		}

		medicineName := schedule.MedicineName
		stockCount := schedule.StockCount
		threshold := schedule.RefillThreshold

		findings = append(findings, models.Finding{
			RuleID:    r.ID(),
			SubjectID: snap.SubjectID,
			Category:  models.CategoryLowStock,
			Severity:  models.SeverityLow,
			Message:   fmt.Sprintf("Low stock for %s: %d doses left (refill at %d)", medicineName, stockCount, threshold),
			Detail: &models.FindingDetail{
				MedicineName: &medicineName,
				StockCount:   &stockCount,
				Threshold:    &threshold,
			},
		})
	}

	return findings, nil
}
