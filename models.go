package linedb

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// A database stored in the catalog. Its records are kept as they were
// assembled, so it can be queried without reading the sources again.
type Database struct {
	gorm.Model

	// Name of the database
	Name string `gorm:"uniqueIndex"`
	// Source identifiers, in the order they were read
	Sources datatypes.JSONSlice[string]
	// Sources that could not be resolved when the database was loaded
	Skipped datatypes.JSONSlice[string]
	// Assembled records
	Records []*Record `gorm:"foreignKey:DatabaseID;constraint:OnDelete:CASCADE"`
}

type Record struct {
	ID uint `gorm:"primarykey"`

	DatabaseID uint `gorm:"uniqueIndex:idx_record_position"`
	// Index of the record in the database, from 0
	Position int `gorm:"uniqueIndex:idx_record_position"`
	Text     string
}

// Catalog listing entry
type DatabaseSummary struct {
	Name    string
	Sources []string
	Skipped []string
	Records int64
}
