package models

import (
	"time"
)

// MedicationSchedule 用药计划（对应 medication_schedules 表）
// 由外部写入（记录服药时扣减库存），本引擎只读
type MedicationSchedule struct {
	ScheduleID string `json:"schedule_id" db:"schedule_id"`
	SubjectID  string `json:"subject_id" db:"subject_id"`

	MedicineName string   `json:"medicine_name" db:"medicine_name"`
	Dosage       string   `json:"dosage" db:"dosage"`
	Timings      []string `json:"timings" db:"timings"` // 每日服药时间点，"HH:MM" 格式

	StockCount      int  `json:"stock_count" db:"stock_count"`           // 剩余库存
	RefillThreshold int  `json:"refill_threshold" db:"refill_threshold"` // 补货提醒阈值
	Active          bool `json:"active" db:"active"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// DueAt 判断该计划在指定时刻（"HH:MM"）是否到服药时间
func (m *MedicationSchedule) DueAt(hhmm string) bool {
	for _, t := range m.Timings {
		if t == hhmm {
			return true
		}
	}
	return false
}

// NeedsRefill 判断库存是否已达到补货阈值
func (m *MedicationSchedule) NeedsRefill() bool {
	return m.StockCount <= m.RefillThreshold
}
