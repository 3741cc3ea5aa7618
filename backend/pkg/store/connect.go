package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// Config selects and locates the storage backend.
type Config struct {
	Driver string

	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresHost     string
	PostgresPort     string
	PostgresSSLMode  string
	PostgresTimeZone string

	MongoURI string
	MongoDB  string
}

// DSN builds the Postgres connection string.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		c.PostgresHost, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresPort, c.PostgresSSLMode, c.PostgresTimeZone,
	)
}

// Open connects to the configured backend and returns its repositories.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Repositories, error) {
	switch cfg.Driver {
	case "", DriverPostgres:
		db, err := ConnectPostgres(cfg, logger)
		if err != nil {
			return nil, err
		}
		return NewGormRepositories(db), nil
	case DriverMongo:
		client, db, err := ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, err
		}
		if err := EnsureMongoIndexes(ctx, db); err != nil {
			_ = client.Disconnect(ctx)
			return nil, fmt.Errorf("ensure mongo indexes: %w", err)
		}
		logger.Info("Connected to MongoDB", zap.String("database", cfg.MongoDB))
		return &Repositories{
			Transactions:   NewMongoTransactionRepository(db),
			Orders:         NewMongoOrderRepository(db),
			Reconciliation: NewMongoReconciliationRepository(db),
			Close:          client.Disconnect,
		}, nil
	case DriverMemory:
		logger.Warn("Using in-memory store; data is lost on restart")
		return NewMemoryRepositories(), nil
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.Driver)
	}
}

// NewGormRepositories wires the GORM repositories over one connection.
func NewGormRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Transactions:   NewGormTransactionRepository(db),
		Orders:         NewGormOrderRepository(db),
		Reconciliation: NewGormReconciliationRepository(db),
		Close: func(context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return fmt.Errorf("failed to get database instance: %w", err)
			}
			return sqlDB.Close()
		},
	}
}

// ConnectPostgres opens the database with retries and migrates the schema.
func ConnectPostgres(cfg Config, logger *zap.Logger) (*gorm.DB, error) {
	if cfg.PostgresUser == "" || cfg.PostgresPassword == "" || cfg.PostgresDB == "" {
		return nil, fmt.Errorf("database config incomplete")
	}

	var db *gorm.DB
	var err error

	for i := 0; i < 10; i++ {
		db, err = gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{TranslateError: true})
		if err == nil {
			sqlDB, poolErr := db.DB()
			if poolErr == nil {
				sqlDB.SetMaxOpenConns(25)
				sqlDB.SetMaxIdleConns(5)
				sqlDB.SetConnMaxLifetime(5 * time.Minute)
			}

			logger.Info("Connected to PostgreSQL successfully")

			if err := db.AutoMigrate(&Transaction{}, &Order{}, &ReconciliationException{}); err != nil {
				return nil, fmt.Errorf("AutoMigrate failed: %w", err)
			}
			return db, nil
		}

		logger.Warn("DB connection failed, retrying",
			zap.Int("attempt", i+1),
			zap.Error(err),
		)
		time.Sleep(time.Duration(i+1) * 2 * time.Second)
	}

	return nil, fmt.Errorf("failed to connect to PostgreSQL after retries: %w", err)
}

// ConnectMongo connects and pings MongoDB.
func ConnectMongo(ctx context.Context, uri, dbName string) (*mongo.Client, *mongo.Database, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(timeoutCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(timeoutCtx, nil); err != nil {
		return nil, nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return client, client.Database(dbName), nil
}
