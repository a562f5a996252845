package mysql

import (
	"context"
	"fmt"
	"time"

	"crawlfleet/internal/model"
	mysqlmodel "crawlfleet/pkg/store/mysql/model"
)

// FleetRepository stores fleet snapshots as rows, one row per worker
type FleetRepository struct {
	ds   *Datastore
	name string
}

// NewFleetRepository creates a fleet repository for the named fleet
func NewFleetRepository(ds *Datastore, name string) *FleetRepository {
	if name == "" {
		name = "crawlfleet"
	}
	return &FleetRepository{ds: ds, name: name}
}

// Location describes the snapshot rows backing this fleet
func (r *FleetRepository) Location() string {
	return fmt.Sprintf("mysql table fleet_workers (fleet=%s)", r.name)
}

// Load reads the current state snapshot; no rows is an empty fleet
func (r *FleetRepository) Load(ctx context.Context) (*model.Fleet, error) {
	var rows []*mysqlmodel.FleetWorker
	err := r.ds.DB(ctx).
		Where("fleet = ? AND kind = ?", r.name, mysqlmodel.SnapshotState).
		Order("tag, worker_id, worker_name").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load fleet: %w", err)
	}

	fleet, err := FromFleetWorkerRows(rows)
	if err != nil {
		return nil, fmt.Errorf("corrupt state at %s: %w", r.Location(), err)
	}
	return fleet, nil
}

// Save replaces the state snapshot in one transaction
func (r *FleetRepository) Save(ctx context.Context, fleet *model.Fleet) error {
	return r.replace(ctx, mysqlmodel.SnapshotState, fleet)
}

// Backup replaces the backup snapshot in one transaction
func (r *FleetRepository) Backup(ctx context.Context, fleet *model.Fleet) error {
	return r.replace(ctx, mysqlmodel.SnapshotBackup, fleet)
}

// Clear deletes the state snapshot
func (r *FleetRepository) Clear(ctx context.Context) error {
	err := r.ds.DB(ctx).
		Where("fleet = ? AND kind = ?", r.name, mysqlmodel.SnapshotState).
		Delete(&mysqlmodel.FleetWorker{}).Error
	if err != nil {
		return fmt.Errorf("failed to clear fleet: %w", err)
	}
	return nil
}

// Close closes the database connection
func (r *FleetRepository) Close() error {
	return r.ds.Close()
}

func (r *FleetRepository) replace(ctx context.Context, kind string, fleet *model.Fleet) error {
	rows, err := ToFleetWorkerRows(r.name, kind, fleet, time.Now().UTC())
	if err != nil {
		return err
	}

	return r.ds.ExecTx(ctx, func(ctx context.Context) error {
		err := r.ds.DB(ctx).
			Where("fleet = ? AND kind = ?", r.name, kind).
			Delete(&mysqlmodel.FleetWorker{}).Error
		if err != nil {
			return fmt.Errorf("failed to delete %s snapshot: %w", kind, err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := r.ds.DB(ctx).CreateInBatches(rows, 100).Error; err != nil {
			return fmt.Errorf("failed to write %s snapshot: %w", kind, err)
		}
		return nil
	})
}
