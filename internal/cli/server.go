package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quizroom-service/internal/app"
	"quizroom-service/internal/config"
	"quizroom-service/internal/domain"
	"quizroom-service/internal/infra/memory"
	pgloader "quizroom-service/internal/infra/postgres"
	redisinfra "quizroom-service/internal/infra/redis"
	transport "quizroom-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz room server",
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
	roomTTL := config.Duration(cfg.Redis.TTL, 6*time.Hour)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var loader memory.BankLoader = memory.NewStaticBankLoader(sampleBanks())
	if pool != nil {
		loader = pgloader.NewBankLoader(pool)
	}

	bankTTL := config.Duration(cfg.Game.BankTTL, 10*time.Minute)
	var banks app.BankRepository
	if redisClient != nil {
		banks = redisinfra.NewBankRepository(redisClient, loader, bankTTL)
	} else {
		banks = memory.NewBankRepository(loader, bankTTL)
	}

	var registry app.RoomRegistry
	if redisClient != nil {
		registry = redisinfra.NewRoomRegistry(redisClient, roomTTL)
	} else {
		registry = memory.NewRoomRegistry()
	}

	service := app.NewRoomService(registry, banks, app.Options{
		DefaultBank:         cfg.Game.Bank,
		DefaultRoundSeconds: cfg.Game.RoundSeconds,
		TickInterval:        config.Duration(cfg.Game.TickInterval, 500*time.Millisecond),
		CodeLength:          cfg.Game.CodeLength,
	})
	wsHandler := transport.NewWSHandler(service)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting quizroom service on :%s", finalPort)
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

// sampleBanks ships the demo question set; swap the loader for Postgres in production.
func sampleBanks() map[string]domain.QuestionBank {
	return map[string]domain.QuestionBank{
		"default": {
			ID: "default",
			Questions: []domain.Question{
				{
					ID:          0,
					Title:       "Labor - Binär",
					Text:        "Welche Buchstaben ergeben 0100 0110 0101 0100 (ASCII)?",
					Type:        domain.QuestionMultiple,
					Choices:     []string{"CODE", "FED", "AI"},
					AnswerIndex: 1,
				},
				{
					ID:         1,
					Title:      "Datenbank - Wissen",
					Text:       "Welche Aussagen sind richtig? (z.B. 2,4)",
					Type:       domain.QuestionText,
					AnswerText: "2,4",
				},
				{
					ID:         2,
					Title:      "Neuronales Netzwerk - Rechnen",
					Text:       "Addiere die geraden Zahlen: 3,8,12,15,20,21",
					Type:       domain.QuestionText,
					AnswerText: "40",
				},
				{
					ID:         3,
					Title:      "Finale - Passwort",
					Text:       "Wie lautet das Passwort? Hinweis: 'Ich bin, was du mich lehrst.'",
					Type:       domain.QuestionText,
					AnswerText: "LERNEN",
				},
			},
		},
	}
}
