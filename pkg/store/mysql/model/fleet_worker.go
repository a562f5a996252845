package model

import "time"

// Fleet snapshot kinds
const (
	SnapshotState  = "state"
	SnapshotBackup = "backup"
)

// FleetWorker one worker record of a persisted fleet snapshot
type FleetWorker struct {
	ID           int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Fleet        string    `gorm:"column:fleet;not null;size:128;uniqueIndex:idx_fleet_kind_worker"`
	Kind         string    `gorm:"column:kind;not null;size:16;uniqueIndex:idx_fleet_kind_worker"` // state, backup
	WorkerName   string    `gorm:"column:worker_name;not null;size:255;uniqueIndex:idx_fleet_kind_worker"`
	Tag          string    `gorm:"column:tag;not null;default:''"`
	WorkerID     int       `gorm:"column:worker_id;not null"`
	Status       string    `gorm:"column:status;not null"`
	ProgressIdx  *int      `gorm:"column:progress_index"`
	PackageCount *int      `gorm:"column:package_count"`
	Config       string    `gorm:"column:config;type:text;not null"` // JSON launch config
	UpdatedAt    time.Time `gorm:"column:updated_at;not null"`
}

func (FleetWorker) TableName() string {
	return "fleet_workers"
}
