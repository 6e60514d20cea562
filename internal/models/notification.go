package models

import (
	"time"
)

// Notification 通知记录（对应 notifications 表）
// 追加写入，创建后只有 read 标志可变化
type Notification struct {
	NotificationID string `json:"notification_id" db:"notification_id"`
	SubjectID      string `json:"subject_id" db:"subject_id"`

	Type    string `json:"type" db:"type"` // med_reminder, low_stock, system
	Message string `json:"message" db:"message"`

	Read      bool      `json:"read" db:"read"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
