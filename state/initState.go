package state

import (
	"context"
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/xenn00/musori/config"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"gorm.io/gorm"
)

type JwtSecret struct {
	Private *rsa.PrivateKey
	Public  *rsa.PublicKey
}

// AppState holds the process-wide connections. Redis and Mongo are nil when they are not
// configured; components that need them fall back to in-process implementations.
type AppState struct {
	Ctx       context.Context
	Cancel    context.CancelFunc
	DB        *gorm.DB
	Redis     *redis.Client
	Mongo     *mongo.Client
	MongoDB   *mongo.Database
	JwtSecret *JwtSecret
}

func InitAppState(ctx context.Context, cancel context.CancelFunc) (*AppState, error) {
	conf := config.Conf
	st := &AppState{Ctx: ctx, Cancel: cancel}

	var err error
	switch conf.DATABASE.Driver {
	case "postgres":
		st.DB, _, err = InitPostgres(conf.DATABASE.Postgres.DSN)
	default:
		st.DB, _, err = InitSqlite(conf.DATABASE.Sqlite.Path)
	}
	if err != nil {
		return nil, err
	}
	if err := Migrate(st.DB); err != nil {
		st.Close()
		return nil, err
	}

	if conf.DATABASE.Redis.Addr != "" {
		st.Redis, err = InitRedis(conf.DATABASE.Redis.Addr, conf.DATABASE.Redis.Password, 0)
		if err != nil {
			st.Close()
			return nil, err
		}
	}

	if conf.DATABASE.Mongo.Url != "" {
		st.Mongo, err = InitMongo(ctx, conf.DATABASE.Mongo.Url)
		if err != nil {
			st.Close()
			return nil, err
		}
		st.MongoDB = st.Mongo.Database(conf.DATABASE.Mongo.Database)
	}

	st.JwtSecret, err = InitSecret(conf.JWT.PublicKeyPath, conf.JWT.PrivateKeyPath)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to load jwt keys: %w", err)
	}

	return st, nil
}

func (a *AppState) Close() {
	if a.DB != nil {
		sqlDB, err := a.DB.DB()
		if err == nil {
			log.Info().Msg("Closing database connection...")
			sqlDB.Close()
		}
	}

	if a.Mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		log.Info().Msg("Closing MongoDB client...")
		defer cancel()
		if err := a.Mongo.Disconnect(ctx); err != nil {
			log.Error().Err(err).Msg("failed to disconnect MongoDB client")
		}
	}

	if a.Redis != nil {
		log.Info().Msg("Closing Redis client...")
		if err := a.Redis.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close Redis client")
		}
	}
}
