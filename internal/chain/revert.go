package chain

import (
	"bytes"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/mselser95/phantombet/pkg/types"
)

// dataError is implemented by JSON-RPC errors that carry revert data.
type dataError interface {
	ErrorData() interface{}
}

// mapRevert converts a contract revert into a *types.LedgerError wrapping
// the matching sentinel. Errors that are not recognizable reverts are
// returned unchanged.
func mapRevert(op string, marketID uint64, err error) error {
	if err == nil {
		return nil
	}

	sentinel, ok := revertSentinel(err)
	if !ok {
		return err
	}
	return &types.LedgerError{Op: op, MarketID: marketID, Err: sentinel}
}

func revertSentinel(err error) (error, bool) {
	var de dataError
	if errors.As(err, &de) {
		if data, ok := revertData(de.ErrorData()); ok {
			if s, found := decodeSelector(data); found {
				return s, true
			}
		}
	}

	// Nodes that only return a message: "execution reverted: NotOracle" or
	// "execution reverted: custom error NotOracle()".
	msg := err.Error()
	idx := strings.Index(msg, "execution reverted")
	if idx < 0 {
		return nil, false
	}
	for _, name := range revertNames {
		if strings.Contains(msg[idx:], name) {
			return protocolError(name)
		}
	}
	return nil, false
}

func revertData(v interface{}) ([]byte, bool) {
	switch d := v.(type) {
	case string:
		b, err := hexutil.Decode(d)
		return b, err == nil
	case []byte:
		return d, true
	default:
		return nil, false
	}
}

func decodeSelector(data []byte) (error, bool) {
	if len(data) < 4 {
		return nil, false
	}
	for name, e := range ledgerABI.Errors {
		if bytes.Equal(e.ID[:4], data[:4]) {
			return protocolError(name)
		}
	}
	return nil, false
}
