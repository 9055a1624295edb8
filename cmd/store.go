package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/artcrm/artcrm/internal/config"
	"github.com/artcrm/artcrm/internal/contact"
)

func initStore(ctx context.Context, c *config.Config) (contact.Store, error) {
	timeout := time.Duration(c.Store.OpTimeoutSecs) * time.Second
	switch c.Store.Driver {
	case "sqlite":
		dsn := c.Store.DatabaseURL
		if dsn == "" {
			dsn = "artcrm.db"
		}
		return contact.NewSQLite(dsn, timeout)
	case "postgres":
		return contact.NewPostgres(ctx, c.Store.DatabaseURL, contact.PostgresOptions{
			MaxConns:  c.Store.MaxConns,
			PostGIS:   c.Store.EnablePostGIS,
			OpTimeout: timeout,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
}
