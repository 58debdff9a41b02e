package app

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/mselser95/phantombet/internal/chain"
	"github.com/mselser95/phantombet/internal/consensus"
	"github.com/mselser95/phantombet/internal/evidence"
	"github.com/mselser95/phantombet/internal/gateway"
	"github.com/mselser95/phantombet/internal/inference"
	"github.com/mselser95/phantombet/internal/ledger"
	"github.com/mselser95/phantombet/internal/lock"
	"github.com/mselser95/phantombet/internal/orchestrator"
	"github.com/mselser95/phantombet/internal/settlement"
	"github.com/mselser95/phantombet/internal/storage"
	"github.com/mselser95/phantombet/pkg/cache"
	"github.com/mselser95/phantombet/pkg/config"
	"github.com/mselser95/phantombet/pkg/healthprobe"
	"github.com/mselser95/phantombet/pkg/httpserver"
	"github.com/mselser95/phantombet/pkg/wallet"
	"github.com/mselser95/phantombet/pkg/websocket"
	"go.uber.org/zap"
)

// New creates a new application instance. ctx bounds the startup dials only.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts *Options) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if opts == nil {
		opts = &Options{}
	}

	appCtx, cancel := context.WithCancel(context.Background())
	a := &App{
		cfg:           cfg,
		logger:        logger,
		healthChecker: healthprobe.New(),
		ctx:           appCtx,
		cancel:        cancel,
	}
	ready := false
	defer func() {
		if !ready {
			_ = a.closeAll()
			cancel()
		}
	}()

	key, err := nodeKey(cfg, opts, logger)
	if err != nil {
		return nil, err
	}
	a.nodeAddress = crypto.PubkeyToAddress(key.PublicKey)

	attestor, err := settlement.NewKeyAttestor(key)
	if err != nil {
		return nil, fmt.Errorf("create attestor: %w", err)
	}

	var (
		reader orchestrator.MarketReader
		gw     settlement.Gateway
	)
	if cfg.LedgerMode == config.LedgerModeEVM {
		reader, gw, err = a.setupChain(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("setup chain: %w", err)
		}
	} else {
		reader, gw, err = a.setupSimnet(opts.Clock)
		if err != nil {
			return nil, fmt.Errorf("setup simnet: %w", err)
		}
	}

	coordinator, err := setupConsensus(cfg, logger, opts)
	if err != nil {
		return nil, fmt.Errorf("setup consensus: %w", err)
	}

	var gate settlement.Gate
	if a.breaker != nil {
		gate = a.breaker
	}
	submitter, err := settlement.New(&settlement.Config{
		Gateway:  gw,
		Attestor: attestor,
		Verifier: reader,
		Breaker:  gate,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create submitter: %w", err)
	}

	a.storage, err = setupStorage(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("setup storage: %w", err)
	}
	a.closers = append(a.closers, a.storage.Close)

	locker, err := a.setupLocker(ctx)
	if err != nil {
		return nil, fmt.Errorf("setup locker: %w", err)
	}

	a.orchestrator, err = orchestrator.New(&orchestrator.Config{
		Reader:              reader,
		Consensus:           coordinator,
		Submitter:           submitter,
		Storage:             a.storage,
		Locker:              locker,
		Logger:              logger,
		Clock:               opts.Clock,
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		MinEvidenceSources:  cfg.MinEvidenceSources,
		MaxConcurrent:       cfg.MaxConcurrentMarkets,
		LockTTL:             cfg.LockTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("create orchestrator: %w", err)
	}

	a.scheduler, err = orchestrator.NewScheduler(a.orchestrator, cfg.SettlementSchedule, logger)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	a.httpServer = setupHTTPServer(cfg, logger, a.healthChecker, a.orchestrator, a.eventHub)

	logger.Info("application-configured",
		zap.String("ledger-mode", cfg.LedgerMode),
		zap.String("node", a.nodeAddress.Hex()),
		zap.Int("oracle-nodes", cfg.OracleNodes),
		zap.Bool("unanimous", coordinator.Unanimous()),
		zap.Float64("confidence-threshold", cfg.ConfidenceThreshold))

	ready = true
	return a, nil
}

func nodeKey(cfg *config.Config, opts *Options, logger *zap.Logger) (*ecdsa.PrivateKey, error) {
	if opts.NodeKey != nil {
		return opts.NodeKey, nil
	}

	if cfg.OraclePrivateKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.OraclePrivateKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("parse oracle private key: %w", err)
		}
		return key, nil
	}

	if cfg.LedgerMode == config.LedgerModeEVM {
		return nil, errors.New("ORACLE_PRIVATE_KEY is required in evm mode")
	}

	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate node key: %w", err)
	}
	logger.Warn("ephemeral-node-key",
		zap.String("address", crypto.PubkeyToAddress(key.PublicKey).Hex()))
	return key, nil
}

// setupSimnet builds the ledger and gateway in-process. The node is the ledger
// owner and gateway admin, and authorizes itself.
func (a *App) setupSimnet(clock func() time.Time) (orchestrator.MarketReader, settlement.Gateway, error) {
	if a.cfg.BreakerEnabled {
		a.logger.Warn("gas-breaker-ignored", zap.String("reason", "simnet has no gas"))
	}

	admin := a.nodeAddress
	gatewayAddr := crypto.CreateAddress(admin, 1)

	policy := ledger.RefundRevealed
	if a.cfg.EmptyPoolPolicy == "lock" {
		policy = ledger.LockFunds
	}
	a.ledger = ledger.New(&ledger.Config{
		Owner:           admin,
		Oracle:          gatewayAddr,
		Clock:           clock,
		EmptyPoolPolicy: policy,
		Logger:          a.logger,
	})

	var err error
	a.gateway, err = gateway.New(&gateway.Config{
		Admin:   admin,
		Address: gatewayAddr,
		Table:   gateway.NewMemoryTable(),
		Ledger:  a.ledger,
		Logger:  a.logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create gateway: %w", err)
	}

	err = a.gateway.SetAuthorization(admin, a.nodeAddress, true)
	if err != nil {
		return nil, nil, fmt.Errorf("authorize node: %w", err)
	}

	a.eventHub, err = websocket.NewHub(&websocket.HubConfig{Source: a.ledger, Logger: a.logger})
	if err != nil {
		return nil, nil, fmt.Errorf("create event hub: %w", err)
	}

	a.logger.Info("simnet-ready",
		zap.String("owner", admin.Hex()),
		zap.String("gateway", gatewayAddr.Hex()))

	return ledger.NewReader(a.ledger), gateway.NewNodeClient(a.gateway, a.nodeAddress), nil
}

func (a *App) setupChain(ctx context.Context, key *ecdsa.PrivateKey) (orchestrator.MarketReader, settlement.Gateway, error) {
	cfg := a.cfg
	ledgerAddr := common.HexToAddress(cfg.PredictionMarketAddress)

	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, nil, fmt.Errorf("dial rpc: %w", err)
	}
	a.closers = append(a.closers, func() error {
		client.Close()
		return nil
	})

	outcomeCache, err := cache.NewRistrettoCache(&cache.RistrettoConfig{
		Name:        "market-outcomes",
		NumCounters: 10000, // 10x expected max markets
		MaxCost:     1000,
		BufferItems: 64,
		Logger:      a.logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("setup cache: %w", err)
	}
	a.closers = append(a.closers, func() error {
		outcomeCache.Close()
		return nil
	})

	reader, err := chain.NewReader(&chain.ReaderConfig{
		Backend: client,
		Ledger:  ledgerAddr,
		Cache:   outcomeCache,
		Logger:  a.logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create reader: %w", err)
	}

	tx, err := chain.NewTransactor(&chain.TransactorConfig{
		Backend:    client,
		PrivateKey: key,
		ChainID:    big.NewInt(cfg.ChainID),
		Ledger:     ledgerAddr,
		Gateway:    common.HexToAddress(cfg.OracleGatewayAddress),
		GasLimit:   cfg.GasLimit,
		Logger:     a.logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create transactor: %w", err)
	}

	a.healthChecker.Register("rpc", func(ctx context.Context) error {
		_, err := reader.ChainTime(ctx)
		return err
	})

	authorized, err := tx.IsAuthorized(ctx, a.nodeAddress)
	switch {
	case err != nil:
		a.logger.Warn("node-authorization-unknown", zap.Error(err))
	case !authorized:
		a.logger.Warn("node-not-authorized",
			zap.String("node", a.nodeAddress.Hex()),
			zap.String("note", "submissions will revert until the gateway admin authorizes this node"))
	}

	if cfg.BreakerEnabled {
		walletClient, err := wallet.NewClient(cfg.RPCURL, a.logger)
		if err != nil {
			return nil, nil, fmt.Errorf("create wallet client: %w", err)
		}
		a.breaker, err = settlement.NewGasBreaker(&settlement.BreakerConfig{
			CheckInterval:   cfg.BreakerCheckInterval,
			MinBalance:      cfg.BreakerMinBalanceWei,
			HysteresisRatio: cfg.BreakerHysteresisRatio,
			Wallet:          walletClient,
			Address:         a.nodeAddress,
			Logger:          a.logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("create gas breaker: %w", err)
		}
	}

	if cfg.WalletPollInterval > 0 {
		a.tracker, err = wallet.New(&wallet.Config{
			RPCEndpoint:  cfg.RPCURL,
			Address:      a.nodeAddress,
			Ledger:       ledgerAddr,
			PollInterval: cfg.WalletPollInterval,
			Logger:       a.logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("create wallet tracker: %w", err)
		}
	}

	return reader, tx, nil
}

// setupConsensus builds one isolated pipeline per oracle node. Nodes never
// share sources or reasoning clients.
func setupConsensus(cfg *config.Config, logger *zap.Logger, opts *Options) (*consensus.Coordinator, error) {
	sources := opts.Sources
	if sources == nil {
		sources = func() []evidence.Source { return defaultSources(cfg, logger) }
	}
	reasoner := opts.Reasoner
	if reasoner == nil {
		reasoner = func() (inference.Reasoner, error) { return defaultReasoner(cfg) }
	}

	retry := evidence.DefaultRetryConfig()
	retry.MaxRetries = cfg.SourceMaxRetries

	nodes := make([]consensus.Node, 0, cfg.OracleNodes)
	maxSources := 0
	for i := range cfg.OracleNodes {
		srcs := sources()
		maxSources = max(maxSources, len(srcs))

		agg, err := evidence.New(&evidence.Config{
			Sources:     srcs,
			Retry:       retry,
			CallTimeout: cfg.NodeCallTimeout,
			Logger:      logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create aggregator: %w", err)
		}

		r, err := reasoner()
		if err != nil {
			return nil, fmt.Errorf("create reasoner: %w", err)
		}
		inf, err := inference.New(&inference.Config{
			Reasoner: r,
			Timeout:  cfg.NodeCallTimeout,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create inferrer: %w", err)
		}

		nodes = append(nodes, consensus.NewPipelineNode(fmt.Sprintf("node-%d", i), agg, inf))
	}

	// Every source call with its retries and backoff, plus the inference call.
	calls := maxSources*(retry.MaxRetries+1) + 1
	nodeTimeout := time.Duration(calls) * (cfg.NodeCallTimeout + retry.MaxDelay)

	return consensus.New(&consensus.Config{
		Nodes:       nodes,
		Quorum:      cfg.ConsensusQuorum,
		NodeTimeout: nodeTimeout,
		Logger:      logger,
	})
}

func defaultSources(cfg *config.Config, logger *zap.Logger) []evidence.Source {
	var sources []evidence.Source
	if cfg.NewsAPIKey != "" {
		sources = append(sources, evidence.NewNewsAPISource(cfg.NewsAPIURL, cfg.NewsAPIKey, cfg.NodeCallTimeout, logger))
	}
	if cfg.CoinGeckoAPIURL != "" {
		sources = append(sources, evidence.NewCoinGeckoSource(cfg.CoinGeckoAPIURL, cfg.NodeCallTimeout, logger))
	}
	return sources
}

// defaultReasoner returns nil without an API key; every verdict then falls back
// and no market is ever settled. Every node gets the same seed and temperature
// so identical evidence can produce identical verdicts.
func defaultReasoner(cfg *config.Config) (inference.Reasoner, error) {
	if cfg.OpenAIAPIKey == "" {
		return nil, nil
	}
	r, err := inference.NewOpenAIReasoner(inference.OpenAIConfig{
		APIKey:      cfg.OpenAIAPIKey,
		BaseURL:     cfg.OpenAIBaseURL,
		Model:       cfg.OpenAIModel,
		Temperature: cfg.OpenAITemperature,
		MaxTokens:   500,
		Seed:        cfg.OpenAISeed,
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func setupStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Storage, error) {
	if cfg.StorageMode == "postgres" {
		pgStorage, err := storage.NewPostgresStorage(ctx, &storage.PostgresConfig{
			Host:     cfg.PostgresHost,
			Port:     cfg.PostgresPort,
			User:     cfg.PostgresUser,
			Password: cfg.PostgresPass,
			Database: cfg.PostgresDB,
			SSLMode:  cfg.PostgresSSL,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create postgres storage: %w", err)
		}
		return pgStorage, nil
	}

	return storage.NewConsoleStorage(logger), nil
}

func (a *App) setupLocker(ctx context.Context) (lock.Locker, error) {
	if a.cfg.LockMode == "redis" {
		rl, err := lock.NewRedisLocker(ctx, lock.RedisConfig{
			Addr:     a.cfg.RedisAddr,
			Password: a.cfg.RedisPassword,
			DB:       a.cfg.RedisDB,
		})
		if err != nil {
			return nil, fmt.Errorf("create redis locker: %w", err)
		}
		a.closers = append(a.closers, rl.Close)
		return rl, nil
	}

	return lock.NewLocalLocker(), nil
}

func setupHTTPServer(
	cfg *config.Config,
	logger *zap.Logger,
	healthChecker *healthprobe.HealthChecker,
	o *orchestrator.Orchestrator,
	hub *websocket.Hub,
) *httpserver.Server {
	var events http.Handler
	if hub != nil {
		events = hub
	}
	return httpserver.New(&httpserver.Config{
		Port:          cfg.HTTPPort,
		Logger:        logger,
		HealthChecker: healthChecker,
		Markets:       o,
		Rounds:        o,
		Events:        events,
	})
}
