/*
Copyright (C) 2026 QLC+ Show Creator Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"gorm.io/gorm"

	"github.com/varghele/QLCplusShowCreator/internal/models"
)

// Migrate applies the schema using GORM auto-migrate.
func Migrate(database *gorm.DB) error {
	return database.AutoMigrate(
		&models.Project{},
		&models.Fixture{},
		&models.Show{},
		&models.ShowPart{},
		&models.Lane{},
		&models.Block{},
		&models.CompileRun{},
		&models.PlaybackSession{},
	)
}
