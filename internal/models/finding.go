package models

// 严重级别
const (
	SeverityLow      = "low"
	SeverityModerate = "moderate"
	SeverityHigh     = "high"
)

// 类别
const (
	CategoryVitalAlert = "vital_alert"
	CategoryMissedMeds = "missed_meds"
	CategoryLowStock   = "low_stock"
	CategorySummary    = "summary"
)

// 通知类型
const (
	NotificationTypeMedReminder = "med_reminder"
	NotificationTypeLowStock    = "low_stock"
	NotificationTypeSystem      = "system"
)

// Finding 规则命中结果（内存值，不直接落库）
// 由 Sink 按路由表转换为 Alert 和/或 Notification
type Finding struct {
	RuleID    string         `json:"rule_id"`
	SubjectID string         `json:"subject_id"`
	Category  string         `json:"category"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Detail    *FindingDetail `json:"detail,omitempty"`
}

// FindingDetail 规则命中时的数据快照（序列化为 Alert 的 detail JSONB）
type FindingDetail struct {
	Systolic     *int     `json:"systolic,omitempty"`
	Diastolic    *int     `json:"diastolic,omitempty"`
	Glucose      *float64 `json:"glucose,omitempty"`
	MedicineName *string  `json:"medicine_name,omitempty"`
	Dosage       *string  `json:"dosage,omitempty"`
	DueTime      *string  `json:"due_time,omitempty"`
	StockCount   *int     `json:"stock_count,omitempty"`
	Threshold    *int     `json:"threshold,omitempty"`
	WindowSize   *int     `json:"window_size,omitempty"` // 摘要规则使用的读数窗口大小
}

// Dispatchable 判断该结果是否需要外发通知（邮件/短信）
// 路由策略：severity == high，或类别为 vital_alert / missed_meds / low_stock
func (f *Finding) Dispatchable() bool {
	if f.Severity == SeverityHigh {
		return true
	}
	switch f.Category {
	case CategoryVitalAlert, CategoryMissedMeds, CategoryLowStock:
		return true
	}
	return false
}
