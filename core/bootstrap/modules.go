package bootstrap

import "context"

// Storage represents shared infrastructure passed to seeders.
type Storage interface{}

// Seeder loads reference data into a storage implementation.
type Seeder interface {
	Seed(ctx context.Context, storage Storage) error
}
