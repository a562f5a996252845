package mysql

import "context"

// Repository aggregates all MySQL repositories
type Repository struct {
	ds *Datastore

	Fleet *FleetRepository
}

// NewRepository creates a new MySQL repository and migrates its tables
func NewRepository(ctx context.Context, dsn, fleetName string) (*Repository, error) {
	ds, err := NewDatastore(dsn)
	if err != nil {
		return nil, err
	}
	if err := ds.Migrate(ctx); err != nil {
		ds.Close()
		return nil, err
	}

	return &Repository{
		ds:    ds,
		Fleet: NewFleetRepository(ds, fleetName),
	}, nil
}

// GetDatastore returns the underlying datastore for transaction support
func (r *Repository) GetDatastore() *Datastore {
	return r.ds
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.ds.Close()
}
