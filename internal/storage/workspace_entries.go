package storage

import (
	"context"
	"errors"

	"recruit-desk/internal/storage/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetWorkspaceEntry 读取工作区的一条持久数据，不存在时返回 (nil, false, nil)
func (m *MySQL) GetWorkspaceEntry(ctx context.Context, workspaceID, key string) ([]byte, bool, error) {
	var entry models.WorkspaceEntry
	err := m.db.WithContext(ctx).
		Where("workspace_id = ? AND entry_key = ?", workspaceID, key).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(entry.Payload), true, nil
}

// PutWorkspaceEntry 写入或覆盖一条持久数据
func (m *MySQL) PutWorkspaceEntry(ctx context.Context, workspaceID, key string, schemaVersion int, payload []byte) error {
	entry := models.WorkspaceEntry{
		WorkspaceID:   workspaceID,
		EntryKey:      key,
		Payload:       datatypes.JSON(payload),
		SchemaVersion: schemaVersion,
	}
	return m.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "workspace_id"}, {Name: "entry_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "schema_version", "updated_at"}),
	}).Create(&entry).Error
}

// DeleteWorkspaceEntry 删除一条持久数据
func (m *MySQL) DeleteWorkspaceEntry(ctx context.Context, workspaceID, key string) error {
	return m.db.WithContext(ctx).
		Where("workspace_id = ? AND entry_key = ?", workspaceID, key).
		Delete(&models.WorkspaceEntry{}).Error
}
