package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/jonboulle/clockwork"
	natsio "github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"trivia-lobby-service/internal/app"
	"trivia-lobby-service/internal/config"
	"trivia-lobby-service/internal/domain"
	"trivia-lobby-service/internal/infra/memory"
	natssink "trivia-lobby-service/internal/infra/nats"
	pgloader "trivia-lobby-service/internal/infra/postgres"
	redisinfra "trivia-lobby-service/internal/infra/redis"
	transport "trivia-lobby-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the trivia lobby server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

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
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 24*time.Hour)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if pool != nil {
		loader = pgloader.NewQuizLoader(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = redisinfra.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	var lobbies app.LobbyStore
	var teams app.TeamStore
	if redisClient != nil {
		lobbies = redisinfra.NewLobbyStore(redisClient, redisTTL)
		teams = redisinfra.NewTeamStore(redisClient)
	} else {
		lobbies = memory.NewLobbyStore()
		teams = memory.NewTeamStore()
	}

	var sinks []app.SnapshotSink
	if cfg.Nats.URL != "" {
		conn, err := natsio.Connect(cfg.Nats.URL)
		if err != nil {
			return err
		}
		defer conn.Close()
		sinks = append(sinks, natssink.NewSnapshotPublisher(conn, cfg.Nats.SubjectPrefix, logger))
	}

	service := app.NewLobbyService(lobbies, quizRepo, teams, clockwork.NewRealClock(), logger, sinks...)

	creds := memory.NewCredentialStore()
	if cfg.Admin.Pseudo != "" {
		creds.Register(cfg.Admin.Pseudo, cfg.Admin.Password, true)
	}
	identity := app.NewIdentityService(creds, teams)

	wsHandler := transport.NewWSHandler(service, logger)
	apiHandler := transport.NewAPIHandler(service, identity, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	apiHandler.Register(mux)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info().Str("port", finalPort).Msg("starting trivia lobby service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info().Msg("shutting down server")
	case <-ctx.Done():
		logger.Info().Msg("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleQuizzes provides demo content; swap the loader for Postgres in
// production.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:    "quiz-1",
			Title: "General knowledge",
			Questions: []domain.Question{
				{
					ID:           "q1",
					Text:         "Which river is the longest in Europe?",
					Answer:       "Volga",
					Type:         "text",
					Points:       2,
					TimerSeconds: 30,
				},
				{
					ID:           "q2",
					Text:         "In what year did the Berlin Wall fall?",
					Answer:       "1989",
					Type:         "text",
					Points:       1,
					TimerSeconds: 20,
				},
			},
		},
	}
}
