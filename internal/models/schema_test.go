package models

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestSubmissionColumnNames(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:models_schema?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&User{}, &Classroom{}, &Assignment{}, &Submission{}))

	columns, err := db.Migrator().ColumnTypes(&Submission{})
	require.NoError(t, err)
	names := make([]string, 0, len(columns))
	for _, column := range columns {
		names = append(names, column.Name())
	}

	for _, name := range []string{"file_urls", "ai_score", "ai_feedback", "ai_detail", "graded_by", "submitted_at", "revision"} {
		require.Contains(t, names, name)
	}
	require.NotContains(t, names, "a_idetail")
}
