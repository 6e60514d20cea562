package repository

import (
	"context"
	"database/sql"
	"fmt"

	"carelink-monitor/internal/models"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// MedicationsRepository 用药计划仓库（只读）
type MedicationsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMedicationsRepository 创建用药计划仓库
func NewMedicationsRepository(db *sql.DB, logger *zap.Logger) *MedicationsRepository {
	return &MedicationsRepository{
		db:     db,
		logger: logger,
	}
}

// GetActiveSchedules 获取被监护人所有启用中的用药计划
func (r *MedicationsRepository) GetActiveSchedules(ctx context.Context, subjectID string) ([]models.MedicationSchedule, error) {
	if subjectID == "" {
		return nil, fmt.Errorf("subject_id is required")
	}

	query := `
		SELECT schedule_id, subject_id, medicine_name, dosage, timings,
		       stock_count, refill_threshold, active, created_at, updated_at
		FROM medication_schedules
		WHERE subject_id = $1
		  AND active = TRUE
		ORDER BY medicine_name
	`

	rows, err := r.db.QueryContext(ctx, query, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query medication schedules: %w", err)
	}
	defer rows.Close()

	schedules := []models.MedicationSchedule{}
	for rows.Next() {
		var schedule models.MedicationSchedule
		var dosage sql.NullString
		var timings pq.StringArray

		err := rows.Scan(
			&schedule.ScheduleID,
			&schedule.SubjectID,
			&schedule.MedicineName,
			&dosage,
			&timings,
			&schedule.StockCount,
			&schedule.RefillThreshold,
			&schedule.Active,
			&schedule.CreatedAt,
			&schedule.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan medication schedule: %w", err)
		}

		if dosage.Valid {
			schedule.Dosage = dosage.String
		}
		schedule.Timings = []string(timings)

		schedules = append(schedules, schedule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate medication schedules: %w", err)
	}

	return schedules, nil
}
