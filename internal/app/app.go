package app

import (
	"context"
	"crypto/ecdsa"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mselser95/phantombet/internal/evidence"
	"github.com/mselser95/phantombet/internal/gateway"
	"github.com/mselser95/phantombet/internal/inference"
	"github.com/mselser95/phantombet/internal/ledger"
	"github.com/mselser95/phantombet/internal/orchestrator"
	"github.com/mselser95/phantombet/internal/settlement"
	"github.com/mselser95/phantombet/internal/storage"
	"github.com/mselser95/phantombet/pkg/config"
	"github.com/mselser95/phantombet/pkg/healthprobe"
	"github.com/mselser95/phantombet/pkg/httpserver"
	"github.com/mselser95/phantombet/pkg/wallet"
	"github.com/mselser95/phantombet/pkg/websocket"
	"go.uber.org/zap"
)

// App wires the oracle service: market discovery, consensus rounds and
// settlement submission against either an in-process or a deployed ledger.
type App struct {
	cfg           *config.Config
	logger        *zap.Logger
	healthChecker *healthprobe.HealthChecker
	httpServer    *httpserver.Server

	nodeAddress common.Address
	ledger      *ledger.Ledger   // simnet only
	gateway     *gateway.Gateway // simnet only
	eventHub    *websocket.Hub   // simnet only

	orchestrator *orchestrator.Orchestrator
	scheduler    *orchestrator.Scheduler
	breaker      *settlement.GasBreaker // nil unless enabled
	tracker      *wallet.Tracker        // nil unless evm with polling
	storage      storage.Storage

	// closers release clients in reverse order on shutdown.
	closers []func() error

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Options overrides parts of the wiring. The zero value builds everything from config.
type Options struct {
	// NodeKey signs attestations and transactions. Defaults to ORACLE_PRIVATE_KEY,
	// or an ephemeral key in simnet mode.
	NodeKey *ecdsa.PrivateKey
	// Sources builds a fresh evidence source set for one node.
	Sources func() []evidence.Source
	// Reasoner builds the reasoning client for one node.
	Reasoner func() (inference.Reasoner, error)
	// Clock drives the simnet ledger and the orchestrator. Defaults to time.Now.
	Clock func() time.Time
}

// NodeAddress is the identity the node submits settlements as.
func (a *App) NodeAddress() common.Address {
	return a.nodeAddress
}

// Ledger returns the in-process ledger, or nil in evm mode.
func (a *App) Ledger() *ledger.Ledger {
	return a.ledger
}

// Gateway returns the in-process gateway, or nil in evm mode.
func (a *App) Gateway() *gateway.Gateway {
	return a.gateway
}

// Orchestrator returns the settlement orchestrator.
func (a *App) Orchestrator() *orchestrator.Orchestrator {
	return a.orchestrator
}
