package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"carelink-monitor/internal/config"
	"carelink-monitor/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// FindingsCache Redis 最新结果缓存
// 每次评估后写入被监护人的最新规则命中结果（带 TTL），
// 供上层应用展示"当前状态"而无需查询告警历史
type FindingsCache struct {
	config      *config.Config
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewFindingsCache 创建最新结果缓存
func NewFindingsCache(
	cfg *config.Config,
	redisClient *redis.Client,
	logger *zap.Logger,
) *FindingsCache {
	return &FindingsCache{
		config:      cfg,
		redisClient: redisClient,
		logger:      logger,
	}
}

// cacheEntry 缓存条目
type cacheEntry struct {
	SubjectID   string           `json:"subject_id"`
	Findings    []models.Finding `json:"findings"`
	EvaluatedAt int64            `json:"evaluated_at"`
}

// key 构建缓存键
func (c *FindingsCache) key(subjectID string) string {
	return fmt.Sprintf("%s%s%s",
		c.config.Monitor.Cache.FindingsKeyPrefix,
		subjectID,
		c.config.Monitor.Cache.FindingsSuffix,
	)
}

// UpdateFindings 写入被监护人的最新结果（带 TTL）
func (c *FindingsCache) UpdateFindings(ctx context.Context, subjectID string, findings []models.Finding) error {
	if subjectID == "" {
		return fmt.Errorf("subject_id is required")
	}

	entry := cacheEntry{
		SubjectID:   subjectID,
		Findings:    findings,
		EvaluatedAt: time.Now().Unix(),
	}

	jsonData, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal findings: %w", err)
	}

	err = c.redisClient.Set(
		ctx,
		c.key(subjectID),
		jsonData,
		time.Duration(c.config.Monitor.Cache.FindingsTTL)*time.Second,
	).Err()
	if err != nil {
		return fmt.Errorf("failed to set findings cache: %w", err)
	}

	c.logger.Debug("Updated findings cache",
		zap.String("subject_id", subjectID),
		zap.Int("finding_count", len(findings)),
	)

	return nil
}

// GetFindings 读取被监护人的最新结果
// 缓存不存在时返回 (nil, nil)
func (c *FindingsCache) GetFindings(ctx context.Context, subjectID string) ([]models.Finding, error) {
	if subjectID == "" {
		return nil, fmt.Errorf("subject_id is required")
	}

	val, err := c.redisClient.Get(ctx, c.key(subjectID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get findings cache: %w", err)
	}

	var entry cacheEntry
	if err := json.Unmarshal([]byte(val), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal findings cache: %w", err)
	}

	return entry.Findings, nil
}
