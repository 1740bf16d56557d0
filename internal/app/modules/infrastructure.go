package modules

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/riverqueue/river"

	"pdsno.io/controller/internal/admission"
	"pdsno.io/controller/internal/config"
	"pdsno.io/controller/internal/envelope"
	"pdsno.io/controller/internal/infrastructure"
	"pdsno.io/controller/internal/nib"
	"pdsno.io/controller/internal/pkg/worker"
)

// Infrastructure holds shared cross-cutting dependencies for all modules.
// It is a provider, not a Module.
type Infrastructure struct {
	Config *config.Config

	// DB is nil on the Badger backend: a local controller has no Postgres
	// pool and no River job queue of its own.
	DB    *infrastructure.DatabaseClients
	Pools *worker.Pools

	Store         nib.Store
	RedisClient   *redis.Client
	RootKey       []byte
	Authenticator *envelope.Authenticator

	RiverClient *river.Client[pgx.Tx]
}

// NewInfrastructure initializes the NIB store, worker pools, and the
// envelope authenticator shared by every module.
func NewInfrastructure(ctx context.Context, cfg *config.Config) (*Infrastructure, error) {
	pools, err := worker.NewPools(ctx, worker.PoolConfig{
		GeneralPoolSize:   cfg.Worker.GeneralPoolSize,
		DiscoveryPoolSize: cfg.Worker.DiscoveryPoolSize,
	})
	if err != nil {
		return nil, fmt.Errorf("init worker pools: %w", err)
	}

	var db *infrastructure.DatabaseClients
	var store nib.Store

	switch cfg.Controller.NIBBackend {
	case "badger":
		bstore, err := nib.NewBadgerStore(cfg.Controller.BadgerPath)
		if err != nil {
			pools.Shutdown()
			return nil, fmt.Errorf("init badger nib store: %w", err)
		}
		store = bstore
	default:
		db, err = infrastructure.NewDatabaseClients(ctx, cfg.Database)
		if err != nil {
			pools.Shutdown()
			return nil, fmt.Errorf("init database: %w", err)
		}
		store = nib.NewPostgresStore(db.Pool)
	}

	rootKey, err := admission.DecodeRootKey(cfg.Security.EncryptionKey)
	if err != nil {
		closeAll(db, pools)
		return nil, fmt.Errorf("decode envelope root key: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Transport.RedisAddr})

	nonceStore, err := newNonceStore(redisClient, cfg)
	if err != nil {
		closeAll(db, pools)
		return nil, fmt.Errorf("init nonce store: %w", err)
	}

	senders := admission.NewActiveControllerChecker(store)
	authenticator := envelope.NewAuthenticator(rootKey, nonceStore, senders)

	return &Infrastructure{
		Config:        cfg,
		DB:            db,
		Pools:         pools,
		Store:         store,
		RedisClient:   redisClient,
		RootKey:       rootKey,
		Authenticator: authenticator,
	}, nil
}

// newNonceStore prefers the shared Redis store, required for a multi-
// process regional/global deployment to agree on which nonces have been
// consumed; a single-process local controller falls back to an in-memory
// LRU when no Redis address is configured.
func newNonceStore(client *redis.Client, cfg *config.Config) (envelope.NonceStore, error) {
	if cfg.Transport.RedisAddr == "" {
		return envelope.NewLRUNonceStore(100_000)
	}
	return envelope.NewRedisNonceStore(client), nil
}

func closeAll(db *infrastructure.DatabaseClients, pools *worker.Pools) {
	if db != nil {
		db.Close()
	}
	if pools != nil {
		pools.Shutdown()
	}
}

// InitRiver initializes the River client on top of a prepared worker
// registry. A Badger-backed local controller has no Postgres pool to back
// River and runs without a job queue: no execute_config or rollback_config
// job runs on that tier, and nothing else executes approved changes there.
func (i *Infrastructure) InitRiver(workers *river.Workers) error {
	if i == nil || i.Config == nil {
		return fmt.Errorf("infrastructure is not initialized")
	}
	if i.DB == nil {
		return nil
	}
	if err := i.DB.InitRiverClient(workers, i.Config.River); err != nil {
		return fmt.Errorf("init river: %w", err)
	}
	i.RiverClient = i.DB.RiverClient
	return nil
}

// Close releases infra resources in reverse dependency order.
func (i *Infrastructure) Close() {
	if i == nil {
		return
	}
	if i.Pools != nil {
		i.Pools.Shutdown()
	}
	if i.DB != nil {
		i.DB.Close()
	}
	if i.RedisClient != nil {
		i.RedisClient.Close()
	}
	if i.Store != nil {
		i.Store.Close()
	}
}
