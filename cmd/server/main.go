package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"bloom.ai/plant-dashboard/internal/api"
	"bloom.ai/plant-dashboard/internal/auth"
	"bloom.ai/plant-dashboard/internal/capture"
	"bloom.ai/plant-dashboard/internal/config"
	"bloom.ai/plant-dashboard/internal/core"
	"bloom.ai/plant-dashboard/internal/logger"
	"bloom.ai/plant-dashboard/internal/store"
	"bloom.ai/plant-dashboard/internal/telemetry"
	"bloom.ai/plant-dashboard/internal/voice"
)

func main() {
	pollOnce := flag.Bool("poll-once", false, "Poll the ThingSpeak channel once and exit")
	deviceToken := flag.String("device-token", "", "Print a telemetry token for the given device id and exit")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	if *deviceToken != "" {
		token, err := auth.GenerateDeviceToken(cfg.Auth.JWTSecret, *deviceToken, cfg.Auth.DeviceTokenTTL)
		if err != nil {
			log.FatalWithError(err, "Failed to generate device token")
		}
		fmt.Println(token)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database store
	dbStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		log.FatalWithError(err, "Failed to initialize database")
	}
	defer dbStore.Close()
	log.Info().Str("driver", cfg.Store.Driver).Msg("Store ready")

	if *pollOnce {
		if cfg.ThingSpeak.ChannelID == "" {
			log.Fatal().Msg("THINGSPEAK_CHANNEL_ID is required for -poll-once")
		}
		poller := telemetry.NewThingSpeakPoller(cfg.ThingSpeak.BaseURL, cfg.ThingSpeak.ChannelID, cfg.ThingSpeak.PollInterval, dbStore, log)
		inserted, err := poller.PollOnce(ctx)
		if err != nil {
			log.FatalWithError(err, "ThingSpeak poll failed")
		}
		log.Info().Bool("inserted", inserted).Msg("Poll complete. Exiting.")
		return
	}

	// Initialize completion provider and services
	provider, err := core.NewProvider(ctx, cfg.LLM, log)
	if err != nil {
		log.FatalWithError(err, "Failed to initialize completion provider")
	}
	defer provider.Close()

	assistant := core.NewAssistant(provider, cfg.LLM, dbStore, log)
	chatService := core.NewChatService(dbStore, assistant, log)
	feed := telemetry.NewFeed(dbStore, log)

	var expressions *core.ExpressionService
	if cfg.Hume.Enabled {
		expressions = core.NewExpressionService(cfg.Hume.BaseURL, cfg.Hume.APIKey, cfg.Hume.PollInterval, log)
	}

	var agent *voice.Agent
	if cfg.Voice.AgentEnabled {
		deepgram := voice.NewDeepgramClient(cfg.Voice.DeepgramAPIKey, cfg.Voice.DeepgramURL, log)
		agent = voice.NewAgent(deepgram, chatService, chatService.Forward, log)
	}
	bridge := voice.NewBridge(cfg.Voice.Endpoint, chatService.Forward, log)

	// Background ingestion
	var wg sync.WaitGroup
	if cfg.ThingSpeak.ChannelID != "" {
		poller := telemetry.NewThingSpeakPoller(cfg.ThingSpeak.BaseURL, cfg.ThingSpeak.ChannelID, cfg.ThingSpeak.PollInterval, dbStore, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			poller.Run(ctx)
		}()
	}

	var subscriber *telemetry.MQTTSubscriber
	if cfg.MQTT.BrokerURL != "" {
		subscriber = telemetry.NewMQTTSubscriber(telemetry.MQTTOptions{
			BrokerURL: cfg.MQTT.BrokerURL,
			Topic:     cfg.MQTT.Topic,
			ClientID:  cfg.MQTT.ClientID,
			Username:  cfg.MQTT.Username,
			Password:  cfg.MQTT.Password,
		}, dbStore, log)
		if err := subscriber.Start(ctx); err != nil {
			log.FatalWithError(err, "Failed to start MQTT subscriber")
		}
	}

	if cfg.Capture.Enabled() {
		uploader, err := capture.NewCloudinaryUploader(cfg.Capture.CloudName, cfg.Capture.APIKey, cfg.Capture.APISecret, cfg.Capture.Folder)
		if err != nil {
			log.FatalWithError(err, "Failed to configure Cloudinary")
		}
		watcher, err := capture.NewWatcher(cfg.Capture.Dir, uploader, dbStore, log)
		if err != nil {
			log.FatalWithError(err, "Failed to create capture watcher")
		}
		if err := watcher.Start(ctx); err != nil {
			log.FatalWithError(err, "Failed to start capture watcher")
		}
	}

	// Initialize API Handler and Router
	apiHandler := api.NewAPIHandler(api.Services{
		Store:       dbStore,
		Chats:       chatService,
		Assistant:   assistant,
		Expressions: expressions,
		Feed:        feed,
		Bridge:      bridge,
		Agent:       agent,
		JWTSecret:   cfg.Auth.JWTSecret,
	}, log)
	router := api.NewRouter(apiHandler, cfg.CORS, log)

	serverAddr := fmt.Sprintf(":%s", cfg.Server.HTTPPort)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Str("addr", serverAddr).Str("provider", provider.Name()).Msg("Starting server. Press Ctrl+C to quit.")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.FatalWithError(err, "Could not listen on "+serverAddr)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	bridge.Stop(shutdownCtx)
	if agent != nil {
		if err := agent.Stop(); err != nil && !errors.Is(err, voice.ErrAgentNotRunning) {
			log.Error().Err(err).Msg("Error stopping voice agent")
		}
	}

	cancel()
	if subscriber != nil {
		subscriber.Stop()
	}
	wg.Wait()

	log.Info().Msg("Server exiting gracefully")
}

func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case config.StoreDriverMongo:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		s, err := store.NewMongoStore(connectCtx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		s, err := store.NewSQLiteStore(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}
