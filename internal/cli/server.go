package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/config"
	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/infra/grader"
	"quiz-session-service/internal/infra/memory"
	pginfra "quiz-session-service/internal/infra/postgres"
	redisinfra "quiz-session-service/internal/infra/redis"
	transport "quiz-session-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz session engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
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
	redisTTL := config.Duration(cfg.Redis.TTL, time.Hour)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var directory app.QuizDirectory = memory.NewStaticQuizDirectory(sampleQuizzes())
	if pool != nil {
		directory = pginfra.NewQuizDirectory(pool)
	}
	directory = memory.NewQuizCache(directory, config.Duration(cfg.Quiz.TTL, 10*time.Minute))

	var store app.SessionStore
	if redisClient != nil {
		store = redisinfra.NewSessionStore(redisClient, redisTTL)
	} else {
		store = memory.NewSessionStore()
	}

	var attempts app.AttemptLog = memory.NewAttemptLog()
	if pool != nil {
		attempts = pginfra.NewAttemptLog(pool)
	}

	oracleTimeout := config.Duration(cfg.Oracle.Timeout, 10*time.Second)
	var answerGrader app.Grader = grader.NewExactMatch()
	if cfg.Oracle.URL != "" {
		answerGrader = grader.NewHTTP(cfg.Oracle.URL, oracleTimeout)
	}

	coordinator := app.NewCoordinator(store, directory, answerGrader, attempts, app.NewRegistry(), oracleTimeout)
	wsHandler := transport.NewWSHandler(coordinator)
	sessionHandler := transport.NewSessionHandler(store)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	mux.HandleFunc("/sessions", sessionHandler.CreateSession)

	server := &http.Server{
		Addr:    ":" + finalPort,
		Handler: mux,
	}

	go func() {
		log.Printf("starting quiz session engine on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleQuizzes seeds the in-memory directory when Postgres is not
// configured; swap in the database-backed directory for real deployments.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:      "quiz-1",
			OwnerID: "host-1",
			Questions: []domain.Question{
				{
					ID:            "q1",
					Content:       "What is 2 + 2?",
					Type:          "mcq",
					Options:       []string{"3", "4", "5"},
					CorrectAnswer: "4",
					Points:        10,
				},
				{
					ID:            "q2",
					Content:       "The sky is blue.",
					Type:          "tf",
					Options:       []string{"true", "false"},
					CorrectAnswer: "true",
					Points:        20,
				},
			},
		},
	}
}
