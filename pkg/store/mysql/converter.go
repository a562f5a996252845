package mysql

import (
	"encoding/json"
	"fmt"
	"time"

	"crawlfleet/internal/model"
	"crawlfleet/pkg/constants"
	mysqlmodel "crawlfleet/pkg/store/mysql/model"
)

// ToFleetWorkerRows converts a fleet into snapshot rows
func ToFleetWorkerRows(fleetName, kind string, fleet *model.Fleet, now time.Time) ([]*mysqlmodel.FleetWorker, error) {
	workers := fleet.List()
	rows := make([]*mysqlmodel.FleetWorker, 0, len(workers))
	for _, w := range workers {
		cfg, err := json.Marshal(w.Config)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal config for %s: %w", w.Name, err)
		}
		rows = append(rows, &mysqlmodel.FleetWorker{
			Fleet:        fleetName,
			Kind:         kind,
			WorkerName:   w.Name,
			Tag:          w.Tag,
			WorkerID:     w.ID,
			Status:       w.Status.String(),
			ProgressIdx:  w.Index,
			PackageCount: w.Packages,
			Config:       string(cfg),
			UpdatedAt:    now,
		})
	}
	return rows, nil
}

// FromFleetWorkerRows rebuilds a fleet from snapshot rows.
// Rows with an unknown status or unreadable config make the snapshot corrupt.
func FromFleetWorkerRows(rows []*mysqlmodel.FleetWorker) (*model.Fleet, error) {
	fleet := model.NewFleet()
	for _, row := range rows {
		status, err := constants.ParseWorkerStatus(row.Status)
		if err != nil {
			return nil, fmt.Errorf("worker %s: %w", row.WorkerName, err)
		}
		var cfg model.LaunchConfig
		if err := json.Unmarshal([]byte(row.Config), &cfg); err != nil {
			return nil, fmt.Errorf("worker %s: failed to unmarshal config: %w", row.WorkerName, err)
		}
		if fleet.Has(row.WorkerName) {
			return nil, fmt.Errorf("duplicate worker %s", row.WorkerName)
		}
		fleet.Put(&model.Worker{
			Name:     row.WorkerName,
			Tag:      row.Tag,
			ID:       row.WorkerID,
			Status:   status,
			Index:    row.ProgressIdx,
			Packages: row.PackageCount,
			Config:   cfg,
		})
	}
	return fleet, nil
}
