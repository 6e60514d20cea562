package repository

import (
	"context"
	"database/sql"
	"fmt"

	"carelink-monitor/internal/models"

	"go.uber.org/zap"
)

// ReadingsRepository 生理读数仓库（只读）
type ReadingsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewReadingsRepository 创建生理读数仓库
func NewReadingsRepository(db *sql.DB, logger *zap.Logger) *ReadingsRepository {
	return &ReadingsRepository{
		db:     db,
		logger: logger,
	}
}

// GetLatestReading 获取被监护人最新一条读数
// 没有读数时返回 (nil, nil)，由评估器跳过体征规则
func (r *ReadingsRepository) GetLatestReading(ctx context.Context, subjectID string) (*models.Reading, error) {
	if subjectID == "" {
		return nil, fmt.Errorf("subject_id is required")
	}

	query := `
		SELECT reading_id, subject_id, systolic, diastolic, glucose, weight_kg, temperature_c, recorded_at
		FROM readings
		WHERE subject_id = $1
		ORDER BY recorded_at DESC
		LIMIT 1
	`

	reading, err := r.scanReading(r.db.QueryRowContext(ctx, query, subjectID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest reading: %w", err)
	}

	return reading, nil
}

// GetRecentReadings 获取最近 limit 条读数（按时间倒序）
// 供需要历史窗口的规则使用，规则本身不查询存储
func (r *ReadingsRepository) GetRecentReadings(ctx context.Context, subjectID string, limit int) ([]models.Reading, error) {
	if subjectID == "" {
		return nil, fmt.Errorf("subject_id is required")
	}
	if limit <= 0 {
		limit = 7
	}

	query := `
		SELECT reading_id, subject_id, systolic, diastolic, glucose, weight_kg, temperature_c, recorded_at
		FROM readings
		WHERE subject_id = $1
		ORDER BY recorded_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, subjectID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent readings: %w", err)
	}
	defer rows.Close()

	readings := []models.Reading{}
	for rows.Next() {
		reading, err := r.scanReading(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		readings = append(readings, *reading)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate readings: %w", err)
	}

	return readings, nil
}

// rowScanner 兼容 *sql.Row 与 *sql.Rows 的扫描接口
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanReading 扫描一行读数，处理可空测量值
func (r *ReadingsRepository) scanReading(row rowScanner) (*models.Reading, error) {
	var reading models.Reading
	var systolic, diastolic sql.NullInt64
	var glucose, weightKg, temperatureC sql.NullFloat64

	err := row.Scan(
		&reading.ReadingID,
		&reading.SubjectID,
		&systolic,
		&diastolic,
		&glucose,
		&weightKg,
		&temperatureC,
		&reading.RecordedAt,
	)
	if err != nil {
		return nil, err
	}

	if systolic.Valid {
		v := int(systolic.Int64)
		reading.Systolic = &v
	}
	if diastolic.Valid {
		v := int(diastolic.Int64)
		reading.Diastolic = &v
	}
	if glucose.Valid {
		v := glucose.Float64
		reading.Glucose = &v
	}
	if weightKg.Valid {
		v := weightKg.Float64
		reading.WeightKg = &v
	}
	if temperatureC.Valid {
		v := temperatureC.Float64
		reading.TemperatureC = &v
	}

	return &reading, nil
}
