// Package db provides the database driver factory.
package db

import (
	"github.com/pkg/errors"

	"github.com/safartrip/safarbot/internal/profile"
	"github.com/safartrip/safarbot/store"
	"github.com/safartrip/safarbot/store/db/postgres"
)

// NewDBDriver creates the Postgres driver for the given profile.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	driver, err := postgres.NewDB(profile)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create postgres driver")
	}
	return driver, nil
}
