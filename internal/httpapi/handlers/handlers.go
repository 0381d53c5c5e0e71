// Package handlers implements the HTTP endpoints of the template API.
package handlers

import (
	"context"

	"github.com/redis/go-redis/v9"

	"mailtpl/internal/pkg/logger"
	"mailtpl/internal/templates"
)

// Pinger is a dependency the deep health check can ping.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Store *templates.Store
	// DB is the repository behind Store; StoreDriver names it in health output.
	DB          Pinger
	StoreDriver string
	// RDB is nil when the version cache is disabled.
	RDB *redis.Client
	Log *logger.Logger
}

type Handler struct {
	store  *templates.Store
	db     Pinger
	driver string
	rdb    *redis.Client
	log    *logger.Logger
}

func New(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logger.Discard()
	}
	return &Handler{
		store:  d.Store,
		db:     d.DB,
		driver: d.StoreDriver,
		rdb:    d.RDB,
		log:    log,
	}
}
