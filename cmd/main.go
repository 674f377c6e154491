package main

import (
	"chat-relay/contract"
	grpcserver "chat-relay/infrastructure/grpc/server"
	"chat-relay/infrastructure/websocket"
	"chat-relay/internal"
	"chat-relay/moderation"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/services"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// Deferred cleanups always execute before the process exits.
func run() error {
	// 1. Configuration & Logger
	config, err := internal.LoadConfig()
	if err != nil {
		return err
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Core: registry, broadcast gateway, connection factory
	censorChar, err := internal.CharacterRune(config.CensorCharacter)
	if err != nil {
		return err
	}
	words := config.CensoredWordList()
	if config.CensoredWordsDir != "" {
		dict, err := moderation.NewDictionaryLoader(os.DirFS(config.CensoredWordsDir)).Load(".")
		if err != nil {
			return fmt.Errorf("censored words loading failed: %w", err)
		}
		log.Info("Censored dictionary loaded", "words", len(dict.Words), "languages", dict.Languages)
		words = append(words, dict.Words...)
	}
	moderator, err := moderation.NewModerator(lo.Uniq(words), censorChar, log)
	if err != nil {
		return fmt.Errorf("moderation setup failed: %w", err)
	}

	registry := runtime.NewRegistry(log, runtime.NewIdentifierGenerator())
	broadcaster := runtime.NewBroadcaster(log)
	chatService := services.NewChatService(log, registry, broadcaster,
		runtime.WithTextFilter(moderator),
		runtime.WithMaxTextLength(config.MaxTextLength),
	)

	// 3. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Supervised background workers
	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(workers.NewStatsReporter(log, registry, config.StatsInterval))
	supDone := make(chan struct{})
	go func() {
		defer close(supDone)
		sup.Run(ctx)
	}()

	// 5. Transports
	wsServer := websocket.NewServer(log, chatService, websocket.Options{
		ConnectionBufferSize: config.ConnectionBufferSize,
		WriteTimeout:         config.WriteTimeout,
		PongWait:             config.PongWait,
		MaxMessageBytes:      config.MaxMessageBytes,
	})
	mux := http.NewServeMux()
	mux.Handle("/ws", wsServer)
	httpServer := &http.Server{Addr: config.Address(), Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	grpcListener, err := net.Listen("tcp", config.GrpcAddress())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", config.GrpcAddress(), err)
	}
	healthServer := grpcserver.NewHealthServer(log)

	errChan := make(chan error, 2)
	go func() {
		if err := healthServer.Serve(grpcListener); err != nil {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()
	go func() {
		log.Info("Starting websocket server", "address", config.Address(), "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()
	healthServer.MarkServing()

	// 6. Wait for Stop or Error
	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case runErr = <-errChan:
		log.Error("Server failed", "error", runErr)
	}

	// 7. Final Cleanup
	shutdown(config.ShutdownTimeout, log, httpServer, wsServer, healthServer, sup)
	<-supDone
	log.Info("Program stopped cleanly", "stats", chatService.Stats())
	return runErr
}

// shutdown stops accepting peers first, then closes the live ones so that
// every close transition runs before the workers stop.
func shutdown(timeout time.Duration, log *slog.Logger, httpServer *http.Server,
	wsServer *websocket.Server, healthServer *grpcserver.HealthServer, sup contract.ISupervisor) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown incomplete", "error", err)
	}
	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("Websocket connections not drained", "error", err)
	}
	healthServer.Stop()
	sup.Stop()
}
