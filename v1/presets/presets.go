// Package presets assembles ready-made reservation stacks so services can
// start with one call instead of wiring lock manager, bus, stores and
// pipeline by hand.
package presets

import (
	redis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/railstack/go-resv/v1/audit"
	"github.com/railstack/go-resv/v1/lock"
	"github.com/railstack/go-resv/v1/pipeline"
	"github.com/railstack/go-resv/v1/syncbus"
	"github.com/railstack/go-resv/v1/tenant"
)

// RedisOptions configures the connection to Redis.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisStack builds the production topology: Redis as the shared lock
// store and release-notification bus, a SQL database (any gorm dialector)
// as the audit store and tenant registry. The registry gates acquisition
// for suspended tenants.
func NewRedisStack(opts RedisOptions, db *gorm.DB, popts ...pipeline.Option) (*pipeline.Pipeline, *tenant.Registry, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	bus := syncbus.NewRedisBus(client)
	locker := lock.NewRedis(client, bus)

	store, err := audit.NewGormStore(db)
	if err != nil {
		return nil, nil, err
	}
	registry, err := tenant.NewRegistry(db)
	if err != nil {
		return nil, nil, err
	}

	recorder := audit.NewRecorder(store)
	popts = append([]pipeline.Option{pipeline.WithRegistry(registry)}, popts...)
	return pipeline.New(locker, recorder, popts...), registry, nil
}

// NewInMemoryStandalone builds a stack with no external dependencies, for
// local development and tests. Locks and audit records live in process
// memory; there is no tenant registry gate.
func NewInMemoryStandalone(popts ...pipeline.Option) *pipeline.Pipeline {
	locker := lock.NewInMemory(syncbus.NewInMemoryBus())
	recorder := audit.NewRecorder(audit.NewInMemoryStore())
	return pipeline.New(locker, recorder, popts...)
}
