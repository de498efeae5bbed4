package cli

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/vincentsi/FastQuizParty-sub000/internal/app"
	"github.com/vincentsi/FastQuizParty-sub000/internal/config"
	"github.com/vincentsi/FastQuizParty-sub000/internal/domain"
	"github.com/vincentsi/FastQuizParty-sub000/internal/infra/memory"
	pginfra "github.com/vincentsi/FastQuizParty-sub000/internal/infra/postgres"
	redisinfra "github.com/vincentsi/FastQuizParty-sub000/internal/infra/redis"
	transport "github.com/vincentsi/FastQuizParty-sub000/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz party server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	roomTTL := config.TTLDuration(cfg.Redis.RoomTTL, 2*time.Hour)
	sessionTTL := config.TTLDuration(cfg.Redis.SessionTTL, 2*time.Hour)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if pool != nil {
		loader = pginfra.NewQuizLoader(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizzes app.QuizRepository
	if redisClient != nil {
		quizzes = redisinfra.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizzes = memory.NewQuizRepository(loader, quizTTL)
	}

	var roomStore app.RoomStore
	var sessionStore app.SessionStore
	if redisClient != nil {
		roomStore = redisinfra.NewRoomStore(redisClient, roomTTL, log)
		sessionStore = redisinfra.NewSessionStore(redisClient, sessionTTL, log)
	} else {
		roomStore = memory.NewRoomStore()
		sessionStore = memory.NewSessionStore()
	}

	var archiver app.GameArchiver
	if cfg.Postgres.URL != "" {
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
		bunDB := bun.NewDB(sqldb, pgdialect.New())
		defer bunDB.Close()
		archiver = pginfra.NewGameArchiver(bunDB)
	}

	hub := transport.NewHub(log)
	rooms := app.NewRoomService(roomStore, quizzes, log)
	games := app.NewGameService(roomStore, sessionStore, quizzes, archiver, hub, log)
	wsHandler := transport.NewWSHandler(rooms, games, hub, log)
	resultsHandler := transport.NewResultsHandler(rooms, games, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	resultsHandler.Register(mux)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Infof("starting quiz party server on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server...")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server...")
	}

	games.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleQuizzes seeds the in-memory loader when no postgres is configured;
// useful for local development.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:    "quiz-1",
			Title: "Warm-up trivia",
			Questions: []domain.Question{
				{
					ID:                 "q1",
					Text:               "What is 2 + 2?",
					Options:            []string{"3", "4", "5", "22"},
					CorrectAnswerIndex: 1,
					TimeLimitSeconds:   15,
					Points:             1000,
				},
				{
					ID:                 "q2",
					Text:               "Which planet is known as the red planet?",
					Options:            []string{"Venus", "Jupiter", "Mars", "Saturn"},
					CorrectAnswerIndex: 2,
					TimeLimitSeconds:   15,
					Points:             1000,
				},
			},
		},
	}
}
