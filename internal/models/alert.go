package models

import (
	"time"
)

// Alert 告警记录（对应 alerts 表）
// 追加写入，创建后只有 acknowledged 标志可变化（false → true，单向）
type Alert struct {
	AlertID   string `json:"alert_id" db:"alert_id"`
	SubjectID string `json:"subject_id" db:"subject_id"`

	Category string `json:"category" db:"category"` // vital_alert, missed_meds, summary
	Severity string `json:"severity" db:"severity"` // low, moderate, high
	Message  string `json:"message" db:"message"`
	Detail   string `json:"detail" db:"detail"` // JSONB

	Acknowledged bool      `json:"acknowledged" db:"acknowledged"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
