package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hardstakes/arena/internal/application/oracle"
	"github.com/hardstakes/arena/internal/config"
	"github.com/hardstakes/arena/internal/domain/history"
	"github.com/hardstakes/arena/internal/domain/identity"
	"github.com/hardstakes/arena/internal/infrastructure/keystore"
	"github.com/hardstakes/arena/internal/infrastructure/postgres"
	"github.com/hardstakes/arena/internal/infrastructure/sse"
	"github.com/hardstakes/arena/internal/migrations"
	"github.com/hardstakes/arena/internal/p2p/api"
	"github.com/hardstakes/arena/internal/p2p/consensus"
	"github.com/hardstakes/arena/internal/p2p/state"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config error")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logger = logger.Level(level)
	}

	keyStore, err := keystore.NewFromEnv()
	if err != nil {
		logger.Fatal().Err(err).Msg("keystore error")
	}
	genesis, err := buildGenesis(cfg, keyStore)
	if err != nil {
		logger.Fatal().Err(err).Msg("genesis error")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var recorder history.Recorder = history.Nop{}
	if cfg.DatabaseURL != "" {
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("db error")
		}
		defer pool.Close()
		if err := postgres.RunMigrations(ctx, pool, migrations.FS); err != nil {
			logger.Fatal().Err(err).Msg("migration error")
		}
		recorder = postgres.NewReceiptRepository(pool)
	}

	node, err := consensus.NewNode(consensus.Config{
		NodeID:         cfg.NodeID,
		RaftAddr:       cfg.RaftAddr,
		DataDir:        cfg.DataDir,
		Bootstrap:      cfg.Bootstrap,
		SnapshotRetain: 2,
		ApplyTimeout:   cfg.ApplyTimeout,
		Genesis:        genesis,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("create raft node")
	}
	defer func() {
		_ = node.Shutdown()
	}()

	if !cfg.Bootstrap && cfg.JoinEndpoint != "" {
		if err := joinCluster(cfg, node.RaftAddr()); err != nil {
			logger.Error().Err(err).Str("endpoint", cfg.JoinEndpoint).Msg("join cluster failed")
		} else {
			logger.Info().Str("endpoint", cfg.JoinEndpoint).Msg("joined cluster")
		}
	}

	if cfg.StartupWaitLeader > 0 {
		waitCtx, cancel := context.WithTimeout(ctx, cfg.StartupWaitLeader)
		_, _ = node.WaitForLeader(waitCtx, 150*time.Millisecond)
		cancel()
	}

	if cfg.OracleEnabled {
		if _, err := keyStore.SigningKey(ctx, keystore.RoleAuthority); err != nil {
			logger.Warn().Msg("no results authority key configured; oracle disabled")
		} else {
			svc := oracle.NewService(node, node.Machine(), keyStore, recorder, logger)
			go runOracle(ctx, svc, cfg, logger)
		}
	}

	hub := sse.NewHub()
	node.Machine().Observe(hub.Publish)

	httpServer := &http.Server{
		Addr:        cfg.HTTPAddr,
		Handler:     api.NewServer(node, hub, recorder, logger, api.WithAllowedOrigins(cfg.WSAllowedOrigins)).Router(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("http_addr", cfg.HTTPAddr).
			Str("node_id", cfg.NodeID).
			Str("raft_addr", node.RaftAddr()).
			Bool("bootstrap", cfg.Bootstrap).
			Msg("arena node listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	hub.Stop()
	_ = httpServer.Shutdown(shutdownCtx)
}

// buildGenesis takes identities from config, falling back to the local keys.
func buildGenesis(cfg *config.Config, keys *keystore.StaticKeyStore) (state.Genesis, error) {
	params, err := cfg.ContestParams()
	if err != nil {
		return state.Genesis{}, err
	}
	authority, err := resolveIdentity(cfg.ResultsAuthority, keys, keystore.RoleAuthority)
	if err != nil {
		return state.Genesis{}, fmt.Errorf("results authority: %w", err)
	}
	treasury, err := resolveIdentity(cfg.Treasury, keys, keystore.RoleTreasury)
	if err != nil {
		return state.Genesis{}, fmt.Errorf("treasury: %w", err)
	}
	genesis := state.Genesis{ResultsAuthority: authority, Treasury: treasury, Contest: params}
	return genesis, genesis.Validate()
}

func resolveIdentity(raw string, keys *keystore.StaticKeyStore, role string) (identity.Identity, error) {
	if raw != "" {
		return identity.Parse(raw)
	}
	return keys.Identity(role)
}

func runOracle(ctx context.Context, svc *oracle.Service, cfg *config.Config, logger zerolog.Logger) {
	ticker := time.NewTicker(cfg.OracleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.ProcessPending(ctx, cfg.OracleBatch)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn().Err(err).Msg("oracle pass failed")
				continue
			}
			if n > 0 {
				logger.Debug().Int("settled", n).Msg("oracle pass")
			}
		}
	}
}

func joinCluster(cfg *config.Config, raftAddr string) error {
	endpoint := strings.TrimRight(cfg.JoinEndpoint, "/") + "/v1/arena/raft/join"
	body, err := json.Marshal(map[string]string{
		"node_id":   cfg.NodeID,
		"raft_addr": raftAddr,
	})
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 5 * time.Second}
	var lastErr error
	for i := 0; i < cfg.JoinRetries; i++ {
		req, _ := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			time.Sleep(cfg.JoinRetryDelay)
			continue
		}
		if resp.Body != nil {
			_ = resp.Body.Close()
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("join returned status %d", resp.StatusCode)
		time.Sleep(cfg.JoinRetryDelay)
	}
	if lastErr == nil {
		lastErr = errors.New("join failed")
	}
	return lastErr
}
