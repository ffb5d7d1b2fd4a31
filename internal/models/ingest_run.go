package models

import (
	"time"

	"gorm.io/datatypes"
)

// IngestRun records one bulk archive load.
type IngestRun struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	Source          string         `gorm:"not null" json:"source"`
	CheckDuplicates bool           `gorm:"not null" json:"check_duplicates"`
	Parsed          int            `gorm:"not null" json:"parsed"`
	Loaded          int            `gorm:"not null" json:"loaded"`
	Skipped         datatypes.JSON `gorm:"type:jsonb;not null" json:"skipped"`
	StartedAt       time.Time      `gorm:"type:timestamptz;not null;index" json:"started_at"`
	FinishedAt      time.Time      `gorm:"type:timestamptz;not null" json:"finished_at"`
}

// SkippedEntry names an archive member that was not loaded and why.
type SkippedEntry struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

func (IngestRun) TableName() string {
	return "ingest_run"
}
