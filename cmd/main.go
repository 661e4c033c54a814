package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/xenn00/musori/config"
	"github.com/xenn00/musori/internal/presence"
	"github.com/xenn00/musori/internal/queue"
	"github.com/xenn00/musori/internal/relay"
	chat_repo "github.com/xenn00/musori/internal/repo/chat"
	"github.com/xenn00/musori/internal/routers"
	"github.com/xenn00/musori/internal/storage"
	chat_service "github.com/xenn00/musori/internal/use-case/chat-case"
	room_service "github.com/xenn00/musori/internal/use-case/room-case"
	user_service "github.com/xenn00/musori/internal/use-case/user-case"
	"github.com/xenn00/musori/internal/websocket"
	"github.com/xenn00/musori/internal/worker"
	worker_handler "github.com/xenn00/musori/internal/worker/worker-handler"
	worker_service "github.com/xenn00/musori/internal/worker/worker-service"
	"github.com/xenn00/musori/state"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// initialize the application
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	conf := config.Conf

	level, err := zerolog.ParseLevel(conf.App.LogLevel)
	if err != nil {
		log.Warn().Str("level", conf.App.LogLevel).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	state, err := state.InitAppState(ctx, stop)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize application state")
	}
	defer state.Close()

	var tracker presence.Tracker
	switch conf.PRESENCE.Backend {
	case "redis":
		tracker = presence.NewRedisTracker(state.Redis, conf.PRESENCE.Window)
	default:
		tracker = presence.NewMemoryTracker(conf.PRESENCE.Window)
	}
	go tracker.Run(ctx, conf.PRESENCE.SweepInterval)
	log.Info().Str("backend", conf.PRESENCE.Backend).Dur("window", conf.PRESENCE.Window).Msg("presence tracker initialized")

	var chatRepo chat_repo.ChatRepoContract
	var store relay.Store = relay.NewMemoryStore(0)
	if state.MongoDB != nil {
		chatRepo = chat_repo.NewChatRepo(state)
		if err := chatRepo.EnsureIndexes(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to create message indexes")
		}
		if conf.RELAY.MigrateOnBoot {
			migrated, err := chatRepo.MigrateLegacyMessages(ctx)
			if err != nil {
				log.Fatal().Err(err).Msg("failed to migrate legacy messages")
			}
			log.Info().Int64("migrated", migrated).Msg("legacy messages migrated")
		}
		store = chatRepo
	} else {
		log.Warn().Msg("mongo is not configured, message history is kept in memory")
	}

	var bridge relay.Bridge
	switch conf.RELAY.Bridge {
	case "redis":
		bridge = relay.NewRedisBridge(state.Redis, conf.App.NodeID)
	case "nats":
		nc, err := nats.Connect(conf.RELAY.NatsURL, nats.Name(conf.App.Name))
		if err != nil {
			log.Fatal().Err(err).Str("url", conf.RELAY.NatsURL).Msg("failed to connect to nats")
		}
		defer nc.Drain()
		bridge = relay.NewNATSBridge(nc, conf.App.NodeID)
	}

	chatRelay := relay.New(store, relay.Options{
		NodeID:       conf.App.NodeID,
		HistoryLimit: conf.RELAY.HistoryLimit,
		MaxPending:   conf.RELAY.MaxPending,
		Bridge:       bridge,
	})
	go func() {
		if err := chatRelay.Run(ctx); err != nil {
			log.Error().Err(err).Msg("relay bridge stopped")
		}
	}()
	log.Info().Str("node_id", chatRelay.NodeID()).Str("bridge", conf.RELAY.Bridge).Msg("relay initialized")

	var avatars storage.AvatarStore
	switch conf.STORAGE.Backend {
	case "gridfs":
		avatars = storage.NewGridFSStore(state.MongoDB)
	default:
		fileStore, err := storage.NewFileStore(conf.STORAGE.Dir)
		if err != nil {
			log.Fatal().Err(err).Str("dir", conf.STORAGE.Dir).Msg("failed to prepare avatar directory")
		}
		avatars = fileStore
	}

	wsHub := websocket.NewHub(tracker)
	log.Info().Msg("Websocket hub initialized")

	var mailer worker_service.Mailer
	if conf.MAILTRAP.SMTPHost != "" {
		mailer = worker_service.NewSMTPMailer(conf.MAILTRAP.SMTPHost, conf.MAILTRAP.SMTPPort, conf.MAILTRAP.Username, conf.MAILTRAP.Password, conf.MAILTRAP.From, conf.App.PublicURL)
	} else {
		log.Warn().Msg("smtp is not configured, invite emails are skipped")
	}
	jobHandler := worker_handler.NewWorkerHandler(wsHub, mailer)

	var producer queue.Producer
	if state.Redis != nil {
		producer = queue.NewProducer(state.Redis)
	} else {
		producer = queue.NewInlineProducer(func(ctx context.Context, job queue.Job) error {
			return worker.HandleJob(ctx, job, jobHandler)
		})
		log.Warn().Msg("redis is not configured, jobs run inline without retries")
	}

	rooms := room_service.NewRoomService(state, producer, tracker)
	users := user_service.NewUserService(state, tracker, avatars, conf.STORAGE.MaxAvatarBytes, conf.App.PublicURL)
	chat := chat_service.NewChatService(state, rooms, chatRelay)
	if err := rooms.EnsureDefaultRoom(ctx); err != nil {
		log.Fatal().Str("error", err.Message).Msg("failed to create default room")
	}

	var workerPool *worker.WorkerPool
	if state.Redis != nil {
		var deadLetters worker.DeadLetterStore
		if chatRepo != nil {
			deadLetters = chatRepo
		}
		workerPool = worker.NewWorkerPool(state.Redis, conf.WORKER.Count, jobHandler, deadLetters)
		workerPool.Start(ctx)
		workerPool.StartDLQWorker(ctx)
	}

	r := routers.NewRouter(routers.Dependencies{
		State:          state,
		Hub:            wsHub,
		Presence:       tracker,
		Users:          users,
		Rooms:          rooms,
		Chat:           chat,
		Avatars:        avatars,
		MaxAvatarBytes: conf.STORAGE.MaxAvatarBytes,
		ServiceName:    conf.App.Name,
		DevTokens:      conf.JWT.DevTokens,
		DevTokenTTL:    conf.JWT.DevTokenTTL,
	})

	server := &http.Server{
		Addr:        conf.App.Port,
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		// no WriteTimeout: it would cut long-lived websocket connections
		IdleTimeout: 60 * time.Second,
	}

	// serve the application
	go func() {
		log.Info().Msgf("Starting server on http://localhost%s", conf.App.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			panic(fmt.Sprintf("ListenAndServe failed: %v", err))
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutdown initiated...")
	// gracefully shutdown the application
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	} else {
		log.Info().Msg("Server exited gracefully.")
	}
	wsHub.Close()
	if workerPool != nil {
		workerPool.Wait()
	}
}
