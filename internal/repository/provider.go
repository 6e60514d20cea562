package repository

import (
	"context"
	"database/sql"

	"carelink-monitor/internal/models"

	"go.uber.org/zap"
)

// Provider 聚合只读仓库，作为评估器的数据提供方
type Provider struct {
	readings    *ReadingsRepository
	medications *MedicationsRepository
}

// NewProvider 创建数据提供方
func NewProvider(db *sql.DB, logger *zap.Logger) *Provider {
	return &Provider{
		readings:    NewReadingsRepository(db, logger),
		medications: NewMedicationsRepository(db, logger),
	}
}

// GetLatestReading 获取最新读数
func (p *Provider) GetLatestReading(ctx context.Context, subjectID string) (*models.Reading, error) {
	return p.readings.GetLatestReading(ctx, subjectID)
}

// GetRecentReadings 获取最近读数窗口
func (p *Provider) GetRecentReadings(ctx context.Context, subjectID string, limit int) ([]models.Reading, error) {
	return p.readings.GetRecentReadings(ctx, subjectID, limit)
}

// GetActiveSchedules 获取启用中的用药计划
func (p *Provider) GetActiveSchedules(ctx context.Context, subjectID string) ([]models.MedicationSchedule, error) {
	return p.medications.GetActiveSchedules(ctx, subjectID)
}
