package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/cvchat/internal/api"
	"github.com/dgallion1/cvchat/internal/chat"
	"github.com/dgallion1/cvchat/internal/claude"
	"github.com/dgallion1/cvchat/internal/config"
	"github.com/dgallion1/cvchat/internal/intent"
	"github.com/dgallion1/cvchat/internal/pathstore"
	"github.com/dgallion1/cvchat/internal/pipeline"
	"github.com/dgallion1/cvchat/internal/store"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	level, _ := cfg.Level()
	log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	if err := run(cfg, log); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	// Classification: Claude in front of the rule table when a key is set.
	var llm *claude.Client
	var primary intent.Classifier
	if cfg.LLMEnabled() {
		llm = claude.NewClient(cfg.AnthropicBaseURL, cfg.AnthropicAPIKey, cfg.AnthropicModel)
		defer llm.Close()
		primary = intent.NewLLMClassifier(llm, int64(cfg.LLMConcurrency), log)
	}
	classifier := intent.NewFallbackClassifier(primary, intent.NewRuleClassifier(log), cfg.LLMTimeout, log)
	svc := chat.NewService(st, store.NewLocks(), classifier, chat.Options{
		DiffContext:  cfg.DiffContext,
		MaxDiffLines: cfg.MaxDiffLines,
	}, log)

	orch := pipeline.NewOrchestrator(cfg, st, log)
	orch.Start(ctx)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api.NewServer(orch, svc, llm, log, cfg),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting cvchat", "port", cfg.Port, "store", cfg.StoreBackend, "llm", cfg.LLMEnabled())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down...")

		orch.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openStore(cfg config.Config) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendSQLite:
		return store.OpenSQLite(cfg.SQLitePath)
	case config.BackendPathstore:
		return store.NewPathstore(pathstore.NewClient(cfg.PathstoreURL, cfg.PathstoreAPIKey)), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}
