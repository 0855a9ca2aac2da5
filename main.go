package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"portfolio-chat/internal/config"
	"portfolio-chat/internal/domain/interfaces/repository"
	Iservices "portfolio-chat/internal/domain/interfaces/services"
	"portfolio-chat/internal/infra/handlers"
	"portfolio-chat/internal/infra/logger"
	"portfolio-chat/internal/infra/metrics"
	repo "portfolio-chat/internal/infra/repository"
	"portfolio-chat/internal/infra/routes"
	"portfolio-chat/internal/infra/services"
	"portfolio-chat/internal/middleware"
	client "portfolio-chat/internal/pkg"

	"github.com/gorilla/mux"
)

func main() {
	config.LoadEnv()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx := context.Background()
	log := logger.NewLogger(ctx, cfg.LogLevel, cfg.LogJSON)

	var conversationRepo repository.ConversationRepository
	switch cfg.Store {
	case config.StoreMemory:
		log.Warn("Using in-memory conversation store, data is lost on restart")
		conversationRepo = repo.NewMemoryRepository()
	default:
		mongoClient, err := client.MongoClient(ctx, cfg.MongoURI)
		if err != nil {
			log.Fatal(err.Error())
		}
		defer mongoClient.Disconnect(context.Background())

		mongoRepo := repo.NewMongoRepository(mongoClient.Database(cfg.MongoDatabase))
		if err := mongoRepo.EnsureIndexes(ctx); err != nil {
			log.Fatal(err.Error())
		}
		conversationRepo = mongoRepo
	}

	m := metrics.New()

	var conversationSvc Iservices.IConversationService = services.NewConversationService(conversationRepo, log, m)
	chatLogHandlers := handlers.NewChatLogHandlers(log, conversationSvc, m, cfg.MaxBodyBytes)
	chatLogHandlers.ReadToken = cfg.ReadToken
	if cfg.ReadToken == "" {
		log.Warn("CHAT_READ_TOKEN not set, conversation reads are disabled")
	}

	router := mux.NewRouter()
	router.Use(middleware.LoggingMiddleware(log))
	router.Use(middleware.RecoverMiddleware(log))

	routes := routes.NewRoutes(router, chatLogHandlers, m)
	routes.Init()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           middleware.CORS(cfg.CORSAllowedOrigins)(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info(fmt.Sprintf("Server is running on port %s", cfg.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(fmt.Sprintf("Error running HTTP server: %s", err))
			os.Exit(1)
		}
	}()

	<-stop
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error(fmt.Sprintf("Server forced to shutdown: %v", err))
	} else {
		log.Info("Server stopped gracefully.")
	}
}
