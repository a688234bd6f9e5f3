package xrpl

import (
	"encoding/json"
	"fmt"
	"time"
)

// TxTypeAMMCreate is the transaction type that opens a new AMM pool.
const TxTypeAMMCreate = "AMMCreate"

// EngineSuccess is the engine result of an applied transaction.
const EngineSuccess = "tesSUCCESS"

// Transaction holds the fields of a transaction the watcher inspects.
// Amount and Amount2 are the two assets deposited by AMMCreate.
type Transaction struct {
	TransactionType string  `json:"TransactionType"`
	Account         string  `json:"Account"`
	Hash            string  `json:"hash,omitempty"`
	Amount          *Amount `json:"Amount,omitempty"`
	Amount2         *Amount `json:"Amount2,omitempty"`
	TradingFee      uint32  `json:"TradingFee,omitempty"`
}

// TransactionEvent is one message of the "transactions" stream.
type TransactionEvent struct {
	Validated    bool
	EngineResult string
	LedgerIndex  uint64
	Hash         string
	Tx           Transaction
	ReceivedAt   time.Time
}

// streamMessage covers both API versions: v1 puts the body under
// "transaction", v2 under "tx_json" with the hash alongside.
type streamMessage struct {
	Type         string          `json:"type"`
	Validated    bool            `json:"validated"`
	EngineResult string          `json:"engine_result"`
	LedgerIndex  uint64          `json:"ledger_index"`
	Hash         string          `json:"hash"`
	Transaction  json.RawMessage `json:"transaction"`
	TxJSON       json.RawMessage `json:"tx_json"`
}

// DecodeTransactionEvent parses a stream message. ok is false for messages
// that are not transactions (subscribe results, ledger closes).
func DecodeTransactionEvent(data []byte) (ev TransactionEvent, ok bool, err error) {
	var msg streamMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return TransactionEvent{}, false, fmt.Errorf("xrpl: decode stream message: %w", err)
	}
	if msg.Type != "transaction" {
		return TransactionEvent{}, false, nil
	}

	body := msg.TxJSON
	if len(body) == 0 {
		body = msg.Transaction
	}
	if len(body) == 0 {
		return TransactionEvent{}, false, fmt.Errorf("xrpl: transaction message without body")
	}

	var tx Transaction
	if err := json.Unmarshal(body, &tx); err != nil {
		return TransactionEvent{}, false, fmt.Errorf("xrpl: decode transaction: %w", err)
	}
	hash := msg.Hash
	if hash == "" {
		hash = tx.Hash
	}

	return TransactionEvent{
		Validated:    msg.Validated,
		EngineResult: msg.EngineResult,
		LedgerIndex:  msg.LedgerIndex,
		Hash:         hash,
		Tx:           tx,
		ReceivedAt:   time.Now(),
	}, true, nil
}

// Succeeded is true when the engine result is tesSUCCESS or absent.
func (e TransactionEvent) Succeeded() bool {
	return e.EngineResult == "" || e.EngineResult == EngineSuccess
}

// PoolAssets returns the native and issued sides of an AMMCreate regardless
// of which field carries which. ok is false unless exactly one side is XRP.
func (t Transaction) PoolAssets() (native, issued Amount, ok bool) {
	if t.Amount == nil || t.Amount2 == nil {
		return Amount{}, Amount{}, false
	}
	return SplitReserves(*t.Amount, *t.Amount2)
}

// SplitReserves orders two pool amounts by shape, not position.
func SplitReserves(a, b Amount) (native, issued Amount, ok bool) {
	switch {
	case a.IsNative() && !b.IsNative():
		return a, b, true
	case b.IsNative() && !a.IsNative():
		return b, a, true
	default:
		return Amount{}, Amount{}, false
	}
}
