package gateway

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mselser95/phantombet/pkg/types"
	"go.uber.org/zap"
)

// Operation names used in errors and metric labels.
const (
	OpSetAuthorization  = "setAuthorization"
	OpReceiveSettlement = "receiveSettlement"
)

// AuthorizationTable is the node authorization set. The gateway only reads
// and writes it through this capability, so tests can inject their own.
type AuthorizationTable interface {
	IsAuthorized(node common.Address) bool
	Set(node common.Address, allowed bool)
}

// Settler is the ledger's settlement entry point.
type Settler interface {
	Settle(caller common.Address, marketID uint64, outcomeLabel string, proof []byte) error
}

// MemoryTable is an in-process AuthorizationTable.
type MemoryTable struct {
	mu    sync.RWMutex
	nodes map[common.Address]bool
}

// NewMemoryTable creates an empty table.
func NewMemoryTable() *MemoryTable {
	return &MemoryTable{nodes: make(map[common.Address]bool)}
}

// IsAuthorized implements AuthorizationTable.
func (t *MemoryTable) IsAuthorized(node common.Address) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.nodes[node]
}

// Set implements AuthorizationTable. Revoking removes the entry.
func (t *MemoryTable) Set(node common.Address, allowed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !allowed {
		delete(t.nodes, node)
		return
	}
	t.nodes[node] = true
}

// Nodes returns the currently authorized identities.
func (t *MemoryTable) Nodes() []common.Address {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]common.Address, 0, len(t.nodes))
	for n := range t.nodes {
		out = append(out, n)
	}
	return out
}

// Gateway forwards settlements from authorized oracle nodes to the ledger.
// It never looks inside the proof.
type Gateway struct {
	admin   common.Address
	address common.Address
	table   AuthorizationTable
	ledger  Settler
	logger  *zap.Logger
}

// Config holds gateway configuration.
type Config struct {
	Admin   common.Address // may change the authorization set
	Address common.Address // identity the gateway presents to the ledger
	Table   AuthorizationTable
	Ledger  Settler
	Logger  *zap.Logger
}

// New creates a gateway.
func New(cfg *Config) (*Gateway, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Table == nil {
		return nil, fmt.Errorf("authorization table cannot be nil")
	}
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("ledger cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	return &Gateway{
		admin:   cfg.Admin,
		address: cfg.Address,
		table:   cfg.Table,
		ledger:  cfg.Ledger,
		logger:  cfg.Logger,
	}, nil
}

// Address is the identity the ledger must accept as its oracle.
func (g *Gateway) Address() common.Address {
	return g.address
}

// SetAuthorization grants or revokes a node's right to submit settlements.
func (g *Gateway) SetAuthorization(caller common.Address, node common.Address, allowed bool) (err error) {
	defer func() { observe(OpSetAuthorization, err) }()

	if caller != g.admin {
		return &types.LedgerError{Op: OpSetAuthorization, Err: types.ErrNotAdmin}
	}

	g.table.Set(node, allowed)
	g.logger.Info("node-authorization-changed",
		zap.String("node", node.Hex()),
		zap.Bool("allowed", allowed))
	return nil
}

// IsAuthorized reports whether a node may submit settlements.
func (g *Gateway) IsAuthorized(node common.Address) bool {
	return g.table.IsAuthorized(node)
}

// ReceiveSettlement checks the caller against the authorization set and
// forwards the outcome to the ledger.
func (g *Gateway) ReceiveSettlement(caller common.Address, marketID uint64, outcomeLabel string, proof []byte) (err error) {
	defer func() { observe(OpReceiveSettlement, err) }()

	if !g.table.IsAuthorized(caller) {
		g.logger.Warn("settlement-rejected",
			zap.Uint64("market-id", marketID),
			zap.String("node", caller.Hex()))
		return &types.LedgerError{Op: OpReceiveSettlement, MarketID: marketID, Err: types.ErrUnauthorizedNode}
	}

	err = g.ledger.Settle(g.address, marketID, outcomeLabel, proof)
	if err != nil {
		return err
	}

	g.logger.Info("settlement-received",
		zap.Uint64("market-id", marketID),
		zap.String("node", caller.Hex()),
		zap.String("outcome", outcomeLabel))
	return nil
}

// NodeClient binds a node identity to the gateway and exposes the
// context-aware submission surface the settlement submitter uses.
type NodeClient struct {
	gateway *Gateway
	node    common.Address
}

// NewNodeClient creates a client that submits as node.
func NewNodeClient(g *Gateway, node common.Address) *NodeClient {
	return &NodeClient{gateway: g, node: node}
}

// ReceiveSettlement submits in-process. The returned hash identifies the
// write deterministically since there is no transaction.
func (c *NodeClient) ReceiveSettlement(
	ctx context.Context,
	marketID uint64,
	outcomeLabel string,
	proof []byte,
) (*types.Submission, error) {
	err := ctx.Err()
	if err != nil {
		return nil, err
	}

	err = c.gateway.ReceiveSettlement(c.node, marketID, outcomeLabel, proof)
	if err != nil {
		return nil, err
	}

	var id [8]byte
	binary.BigEndian.PutUint64(id[:], marketID)
	return &types.Submission{
		TxHash: crypto.Keccak256Hash(c.node.Bytes(), id[:], []byte(outcomeLabel), proof),
		Status: "applied",
	}, nil
}
