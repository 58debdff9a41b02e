package cmd

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/joho/godotenv"
	"github.com/mselser95/phantombet/internal/chain"
	"github.com/mselser95/phantombet/internal/vault"
	"github.com/mselser95/phantombet/pkg/config"
	"go.uber.org/zap"
)

// loadConfig reads .env when present, then the environment.
func loadConfig() (*config.Config, *zap.Logger, error) {
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := config.NewLogger()
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}

	return cfg, logger, nil
}

func requireEVM(cfg *config.Config) error {
	if cfg.LedgerMode != config.LedgerModeEVM {
		return errors.New("this command needs LEDGER_MODE=evm")
	}
	return nil
}

// chainClients bundles an RPC connection with a reader and a transactor
// signing with the key found in keyEnv.
type chainClients struct {
	client     *ethclient.Client
	reader     *chain.Reader
	transactor *chain.Transactor
}

func (c *chainClients) Close() {
	c.client.Close()
}

func dialChain(ctx context.Context, cfg *config.Config, logger *zap.Logger, keyEnv string) (*chainClients, error) {
	err := requireEVM(cfg)
	if err != nil {
		return nil, err
	}

	keyHex := os.Getenv(keyEnv)
	if keyHex == "" {
		return nil, fmt.Errorf("%s not set", keyEnv)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(keyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", keyEnv, err)
	}

	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	ledgerAddr := common.HexToAddress(cfg.PredictionMarketAddress)
	reader, err := chain.NewReader(&chain.ReaderConfig{Backend: client, Ledger: ledgerAddr, Logger: logger})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("create reader: %w", err)
	}

	transactor, err := chain.NewTransactor(&chain.TransactorConfig{
		Backend:    client,
		PrivateKey: key,
		ChainID:    big.NewInt(cfg.ChainID),
		Ledger:     ledgerAddr,
		Gateway:    common.HexToAddress(cfg.OracleGatewayAddress),
		GasLimit:   cfg.GasLimit,
		Logger:     logger,
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("create transactor: %w", err)
	}

	return &chainClients{client: client, reader: reader, transactor: transactor}, nil
}

func openVault(cfg *config.Config) (*vault.FileVault, error) {
	path := cfg.VaultPath
	if path == "" {
		path = vault.DefaultPath()
	}
	return vault.Open(path)
}
