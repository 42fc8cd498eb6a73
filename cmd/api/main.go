package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/helpline/backend/internal/config"
	"github.com/zhouzirui/helpline/backend/internal/handler"
	"github.com/zhouzirui/helpline/backend/internal/service/ai"
	callservice "github.com/zhouzirui/helpline/backend/internal/service/call"
	wordservice "github.com/zhouzirui/helpline/backend/internal/service/word"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	systemPrompt := loadSystemPrompt(cfg.Gemini.SystemPromptPath)

	// Initialize the AI bridge dialer
	var dialer ai.Dialer
	if cfg.Gemini.Enabled() {
		dialer = ai.NewGeminiLive(ai.LiveConfig{
			APIKey:            cfg.Gemini.APIKey,
			Model:             cfg.Gemini.Model,
			BaseURL:           cfg.Gemini.LiveURL,
			SystemInstruction: systemPrompt,
		})
		log.Printf("Gemini Live bridge initialized, model=%s", cfg.Gemini.Model)
	} else {
		log.Println("GEMINI_API_KEY not set, callers can queue but accepts will fail until it is configured")
	}

	registry := callservice.NewRegistry()
	callSvc := callservice.NewService(registry, dialer, callservice.Options{
		MinForwardInterval: cfg.Call.MinForwardInterval(),
		IntroDelay:         cfg.Call.IntroDelay(),
		RejectCloseDelay:   cfg.Call.RejectCloseDelay(),
		AudioMIME:          cfg.Call.AudioMIME,
	})

	// Initialize the word triage service
	var wordSvc *wordservice.Service
	if cfg.Ark.Enabled() {
		chatModel, err := cfg.Ark.NewChatModel(ctx)
		if err != nil {
			log.Printf("warning: failed to initialize chat model: %v", err)
			log.Println("continuing without word triage")
		} else {
			wordSvc, err = wordservice.NewService(ctx, chatModel, systemPrompt)
			if err != nil {
				log.Printf("warning: failed to initialize word triage service: %v", err)
			} else {
				log.Println("Word triage service initialized successfully")
			}
		}
	} else {
		log.Println("Ark credentials not configured, skipping word triage")
	}

	router := handler.NewRouter(callSvc, wordSvc)

	startServer(ctx, cfg.Server, router)
}

// loadSystemPrompt reads the shared system instruction. A missing file
// is survivable; the AI then runs without instructions.
func loadSystemPrompt(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("warning: failed to read system prompt %s: %v", path, err)
		return ""
	}
	return string(data)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Helpline backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
