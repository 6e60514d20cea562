package models

import (
	"time"
)

// Reading 生理指标读数（对应 readings 表）
// 由外部采集链路写入，本引擎只读，永不修改
type Reading struct {
	ReadingID string `json:"reading_id" db:"reading_id"`
	SubjectID string `json:"subject_id" db:"subject_id"`

	// 测量值（采集端可能缺失部分指标，缺失时为 NULL）
	Systolic     *int     `json:"systolic,omitempty" db:"systolic"`          // 收缩压 mmHg
	Diastolic    *int     `json:"diastolic,omitempty" db:"diastolic"`        // 舒张压 mmHg
	Glucose      *float64 `json:"glucose,omitempty" db:"glucose"`            // 血糖 mg/dL
	WeightKg     *float64 `json:"weight_kg,omitempty" db:"weight_kg"`        // 体重 kg
	TemperatureC *float64 `json:"temperature_c,omitempty" db:"temperature_c"` // 体温 ℃

	RecordedAt time.Time `json:"recorded_at" db:"recorded_at"`
}
