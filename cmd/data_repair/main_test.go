package main

import (
	"testing"

	"recruit-desk/internal/persist"
	"recruit-desk/internal/storage/models"

	"github.com/stretchr/testify/assert"
	"gorm.io/datatypes"
)

func TestUnreadable(t *testing.T) {
	tests := []struct {
		name  string
		entry models.WorkspaceEntry
		want  bool
	}{
		{"current", models.WorkspaceEntry{SchemaVersion: persist.SchemaVersion, Payload: datatypes.JSON(`{"schema_version":1,"data":[]}`)}, false},
		{"newer version", models.WorkspaceEntry{SchemaVersion: persist.SchemaVersion + 1, Payload: datatypes.JSON(`{}`)}, true},
		{"corrupt payload", models.WorkspaceEntry{SchemaVersion: persist.SchemaVersion, Payload: datatypes.JSON(`{"schema_version":`)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, unreadable(tt.entry))
		})
	}
}
