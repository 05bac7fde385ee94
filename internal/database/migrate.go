package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/noah-isme/edumark-api/internal/models"
)

// Migrate creates or updates the tables backing the domain models.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Classroom{},
		&models.Assignment{},
		&models.Submission{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	return nil
}
