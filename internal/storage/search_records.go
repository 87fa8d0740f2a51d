package storage

import (
	"context"
	"errors"
	"fmt"

	"recruit-desk/internal/storage/models"
	"recruit-desk/internal/types"

	"gorm.io/gorm"
)

// ErrSearchNotFound 搜索记录不存在
var ErrSearchNotFound = errors.New("搜索记录不存在")

// SearchRecordRepo 基于 MySQL 的搜索历史仓库
type SearchRecordRepo struct {
	db *gorm.DB
}

// SearchRecords 返回搜索历史仓库
func (m *MySQL) SearchRecords() *SearchRecordRepo {
	return &SearchRecordRepo{db: m.db}
}

func toModel(workspaceID string, rec types.SearchRecord) models.SearchRecord {
	return models.SearchRecord{
		SearchID:         rec.SearchID,
		WorkspaceID:      workspaceID,
		JobDescription:   rec.JobDescription,
		TotalMatches:     rec.TotalMatches,
		ShortlistedCount: rec.ShortlistedCount,
		SearchStatus:     string(rec.SearchStatus),
		IsJobRequisition: rec.IsJobRequisition,
		CreatedAt:        rec.CreatedAt,
	}
}

func fromModel(m models.SearchRecord) types.SearchRecord {
	return types.SearchRecord{
		SearchID:         m.SearchID,
		JobDescription:   m.JobDescription,
		CreatedAt:        m.CreatedAt,
		TotalMatches:     m.TotalMatches,
		ShortlistedCount: m.ShortlistedCount,
		SearchStatus:     types.SearchStatus(m.SearchStatus),
		IsJobRequisition: m.IsJobRequisition,
	}
}

// Create 新增搜索记录
func (r *SearchRecordRepo) Create(ctx context.Context, workspaceID string, rec types.SearchRecord) error {
	row := toModel(workspaceID, rec)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("保存搜索记录失败: %w", err)
	}
	return nil
}

// List 按创建时间倒序列出工作区的搜索记录
func (r *SearchRecordRepo) List(ctx context.Context, workspaceID string, limit int) ([]types.SearchRecord, error) {
	var rows []models.SearchRecord
	q := r.db.WithContext(ctx).Where("workspace_id = ?", workspaceID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("查询搜索记录失败: %w", err)
	}
	out := make([]types.SearchRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromModel(row))
	}
	return out, nil
}

// Get 读取单条搜索记录
func (r *SearchRecordRepo) Get(ctx context.Context, workspaceID, searchID string) (types.SearchRecord, error) {
	var row models.SearchRecord
	err := r.db.WithContext(ctx).
		Where("workspace_id = ? AND search_id = ?", workspaceID, searchID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.SearchRecord{}, ErrSearchNotFound
	}
	if err != nil {
		return types.SearchRecord{}, err
	}
	return fromModel(row), nil
}

// UpdateShortlisted 更新入围人数。MySQL 对未变化的行返回 0 affected rows，这里不据此判断是否存在。
func (r *SearchRecordRepo) UpdateShortlisted(ctx context.Context, workspaceID, searchID string, count int) error {
	return r.db.WithContext(ctx).Model(&models.SearchRecord{}).
		Where("workspace_id = ? AND search_id = ?", workspaceID, searchID).
		Update("shortlisted_count", count).Error
}

// Delete 删除搜索记录
func (r *SearchRecordRepo) Delete(ctx context.Context, workspaceID, searchID string) error {
	res := r.db.WithContext(ctx).
		Where("workspace_id = ? AND search_id = ?", workspaceID, searchID).
		Delete(&models.SearchRecord{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrSearchNotFound
	}
	return nil
}
