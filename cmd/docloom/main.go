package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/docloom/docloom/internal/agent"
	"github.com/docloom/docloom/internal/api"
	"github.com/docloom/docloom/internal/chunker"
	"github.com/docloom/docloom/internal/common"
	"github.com/docloom/docloom/internal/kvstore"
	"github.com/docloom/docloom/internal/llm"
	"github.com/docloom/docloom/internal/publish"
	"github.com/docloom/docloom/internal/session"
	"github.com/docloom/docloom/internal/vector"
)

func main() {
	logger := common.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		logger.Warn("docloom: .env file not loaded", "error", err)
	} else {
		logger.Info("docloom: environment loaded from .env")
	}

	addr := flag.String("addr", ":8080", "listen address")
	storePath := flag.String("store", "", "path to the session store database")
	collection := flag.String("collection", "", "vector index collection for published chunks")
	sessionTTL := flag.String("session-ttl", "", "draft session lifetime (e.g. 24h)")
	allowDraftPublish := flag.Bool("allow-draft-publish", envBool("DOCLOOM_ALLOW_DRAFT_PUBLISH"), "permit publishing sessions still in DRAFT")
	flag.Parse()

	logger.Info("docloom: startup initiated", "addr", *addr)

	storeCfg, err := kvstore.LoadConfig()
	if err != nil {
		fatal(logger, "store config error", err)
	}
	if trimmed := strings.TrimSpace(*storePath); trimmed != "" {
		storeCfg.Path = trimmed
	}
	kv, err := kvstore.OpenWithConfig(storeCfg)
	if err != nil {
		fatal(logger, "store error", err)
	}
	defer kv.Close()
	logger.Info("docloom: session store ready", "path", storeCfg.Path)

	ttl := session.DefaultTTL
	if trimmed := strings.TrimSpace(*sessionTTL); trimmed != "" {
		dur, err := time.ParseDuration(trimmed)
		if err != nil {
			fatal(logger, "session ttl error", err)
		}
		ttl = dur
	}

	vectorCfg, err := vector.LoadConfig()
	if err != nil {
		fatal(logger, "vector config error", err)
	}
	if trimmed := strings.TrimSpace(*collection); trimmed != "" {
		vectorCfg.Collection = trimmed
	}
	index, err := vector.New(ctx, vectorCfg)
	if err != nil {
		fatal(logger, "vector index error", err)
	}
	if index.Available() {
		logger.Info("docloom: vector index available", "collection", index.Collection())
	} else {
		logger.Warn("docloom: vector index unreachable", "collection", index.Collection())
	}

	provider := llm.NewProvider()
	logger.Info("docloom: llm provider ready", "provider", provider.Name())

	sessions := session.NewStore(kv, ttl)
	machine := session.NewMachine(sessions, chunker.NewSemantic(provider))
	engine := publish.NewEngine(sessions, index, provider, publish.Config{
		AllowDraftPublish: *allowDraftPublish,
	})

	ledger := agent.NewLedger(kv, ttl)
	suggestions := agent.NewSuggestionStore(kv, ttl)
	history := agent.NewHistory(kv, ttl)
	runner := agent.NewRunner(provider, machine, suggestions, ledger, history)

	server, err := api.NewServer(machine, engine, runner, ledger, suggestions, api.Config{
		Collection: index.Collection(),
	})
	if err != nil {
		fatal(logger, "server error", err)
	}

	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("docloom: server listening", "addr", *addr, "health", "/healthz")
		fmt.Printf("Serving on %s\n", *addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			fatal(logger, "server stopped", err)
		}
	case <-ctx.Done():
		logger.Info("docloom: shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("docloom: shutdown failed", "error", err)
		}
	}
	logger.Info("docloom: stopped")
}

func envBool(key string) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return false
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return false
	}
	return parsed
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error("docloom: "+msg, "error", err)
	fmt.Println(msg+":", err)
	os.Exit(1)
}
