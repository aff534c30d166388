package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/akriventsev/commerce/framework/adapters/repository"
	"github.com/akriventsev/commerce/framework/config"
	"github.com/akriventsev/commerce/framework/eventsourcing"
	"github.com/akriventsev/commerce/framework/observability"
	"github.com/akriventsev/commerce/framework/outbox"
	"github.com/akriventsev/commerce/internal/inventory"
	"github.com/akriventsev/commerce/internal/location"
	"github.com/akriventsev/commerce/internal/order"
	"github.com/akriventsev/commerce/internal/product"
	"github.com/akriventsev/commerce/internal/seller"
)

// stores хранилища агрегатов, представлений, журнала и outbox
type stores struct {
	products        repository.Repository[product.Product]
	productViews    repository.Repository[product.View]
	inventory       repository.Repository[inventory.Inventory]
	orders          repository.Repository[order.Order]
	sellers         repository.Repository[seller.Seller]
	locationRecords repository.Repository[location.Record]
	locationViews   repository.Repository[location.View]
	events          eventsourcing.EventStore
	outbox          outbox.Store

	checks []observability.HealthCheck
	close  func(ctx context.Context)
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	switch cfg.Storage.Driver {
	case "memory":
		return memoryStores(), nil
	case "postgres":
		return postgresStores(ctx, cfg.Postgres)
	case "mongo":
		return mongoStores(ctx, cfg.Mongo)
	}
	return nil, fmt.Errorf("unknown storage driver: %s", cfg.Storage.Driver)
}

func memoryStores() *stores {
	return &stores{
		products:        repository.NewInMemoryRepository[product.Product](repository.DefaultInMemoryConfig()),
		productViews:    product.NewInMemoryViews(),
		inventory:       repository.NewInMemoryRepository[inventory.Inventory](repository.DefaultInMemoryConfig()),
		orders:          order.NewInMemoryOrders(),
		sellers:         seller.NewInMemorySellers(),
		locationRecords: location.NewInMemoryRecords(),
		locationViews:   location.NewInMemoryViews(),
		events:          eventsourcing.NewInMemoryEventStore(),
		outbox:          outbox.NewInMemoryStore(),
		close:           func(context.Context) {},
	}
}

func postgresStores(ctx context.Context, cfg config.PostgresConfig) (*stores, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	s := &stores{close: func(context.Context) { pool.Close() }}
	table := func(name string) repository.PostgresConfig {
		return repository.PostgresConfig{SchemaName: cfg.Schema, TableName: name}
	}

	if s.products, err = repository.NewPostgresRepository[product.Product](pool, table("products")); err != nil {
		return nil, err
	}
	if s.productViews, err = repository.NewPostgresRepository[product.View](pool, table("product_views")); err != nil {
		return nil, err
	}
	if s.inventory, err = repository.NewPostgresRepository[inventory.Inventory](pool, table("inventory")); err != nil {
		return nil, err
	}
	if s.orders, err = repository.NewPostgresRepository[order.Order](pool, table("orders")); err != nil {
		return nil, err
	}
	if s.sellers, err = repository.NewPostgresRepository[seller.Seller](pool, table("sellers")); err != nil {
		return nil, err
	}
	if s.locationRecords, err = repository.NewPostgresRepository[location.Record](pool, table("location_records")); err != nil {
		return nil, err
	}
	if s.locationViews, err = repository.NewPostgresRepository[location.View](pool, table("location_views")); err != nil {
		return nil, err
	}

	esCfg := eventsourcing.DefaultPostgresEventStoreConfig()
	esCfg.SchemaName = cfg.Schema
	if s.events, err = eventsourcing.NewPostgresEventStore(pool, esCfg); err != nil {
		return nil, err
	}
	if s.outbox, err = outbox.NewPostgresStore(pool, cfg.Schema, "outbox"); err != nil {
		return nil, err
	}

	s.checks = append(s.checks, observability.HealthCheckFunc{
		CheckName: "postgres",
		Fn:        func(ctx context.Context) error { return pool.Ping(ctx) },
	})
	return s, nil
}

// mongoStores хранит агрегаты, представления и журнал в MongoDB.
// Outbox остается в памяти процесса: у MongoDB нет хранилища outbox.
func mongoStores(ctx context.Context, cfg config.MongoConfig) (*stores, error) {
	connectCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}
	db := client.Database(cfg.Database)

	s := &stores{
		outbox: outbox.NewInMemoryStore(),
		close:  func(ctx context.Context) { _ = client.Disconnect(ctx) },
	}
	coll := func(name string, indexFields ...string) repository.MongoConfig {
		return repository.MongoConfig{Collection: name, IndexFields: indexFields}
	}

	if s.products, err = repository.NewMongoRepository[product.Product](ctx, db, coll("products", "sellerId")); err != nil {
		return nil, err
	}
	if s.productViews, err = repository.NewMongoRepository[product.View](ctx, db, coll("product_views", "sellerId")); err != nil {
		return nil, err
	}
	if s.inventory, err = repository.NewMongoRepository[inventory.Inventory](ctx, db, coll("inventory")); err != nil {
		return nil, err
	}
	if s.orders, err = repository.NewMongoRepository[order.Order](ctx, db, coll("orders", "userId")); err != nil {
		return nil, err
	}
	if s.sellers, err = repository.NewMongoRepository[seller.Seller](ctx, db, coll("sellers", "email")); err != nil {
		return nil, err
	}
	if s.locationRecords, err = repository.NewMongoRepository[location.Record](ctx, db, coll("location_records", "userId")); err != nil {
		return nil, err
	}
	if s.locationViews, err = repository.NewMongoRepository[location.View](ctx, db, coll("location_views", "userId")); err != nil {
		return nil, err
	}
	if s.events, err = eventsourcing.NewMongoEventStore(ctx, db, eventsourcing.DefaultMongoEventStoreConfig()); err != nil {
		return nil, err
	}

	s.checks = append(s.checks, observability.HealthCheckFunc{
		CheckName: "mongodb",
		Fn:        func(ctx context.Context) error { return client.Ping(ctx, readpref.Primary()) },
	})
	return s, nil
}
