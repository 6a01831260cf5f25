package rpc

import (
	"fmt"
	"sync/atomic"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/wire"
)

// SwapFacade is the asynchronous Bitcoin RPC façade required by §4.2 of the
// specification: one outstanding request at a time, each completion
// delivered as a callback that the owner drains on its own goroutine via
// Pump. It is a thin wrapper over btcsuite/btcd/rpcclient's own
// XxxAsync/.Receive() pattern rather than a hand-rolled JSON client — see
// the Go-idiomatic resolution in SPEC_FULL.md §4.2.
type SwapFacade struct {
	client *rpcclient.Client
	busy   atomic.Bool
	done   chan func()
}

// NewSwapFacade wraps an already-connected rpcclient.Client. The swap
// driver does not own the client's lifetime (per §9's "shared ownership"
// design note); callers close it independently.
func NewSwapFacade(client *rpcclient.Client) *SwapFacade {
	return &SwapFacade{
		client: client,
		done:   make(chan func(), 1),
	}
}

// Pump delivers at most one completed RPC's callback, invoked on the
// caller's goroutine. It returns false if no completion was pending. The
// driver's event loop calls this after every advance to re-enter on RPC
// completion; callbacks run here, not on the RPC's own background
// goroutine, so they may safely touch driver/store state.
func (f *SwapFacade) Pump() bool {
	select {
	case cb := <-f.done:
		cb()
		return true
	default:
		return false
	}
}

// Busy reports whether an RPC is currently outstanding.
func (f *SwapFacade) Busy() bool { return f.busy.Load() }

func (f *SwapFacade) dispatch(receive func() (any, error), cb func(any, error)) error {
	if !f.busy.CompareAndSwap(false, true) {
		return fmt.Errorf("rpc: a request is already outstanding on this facade")
	}
	go func() {
		result, err := receive()
		f.done <- func() {
			f.busy.Store(false)
			cb(result, err)
		}
	}()
	return nil
}

// GetRawChangeAddress issues getrawchangeaddress.
func (f *SwapFacade) GetRawChangeAddress(cb func(addr btcutil.Address, err error)) error {
	future := f.client.GetRawChangeAddressAsync("")
	return f.dispatch(
		func() (any, error) { return future.Receive() },
		func(v any, err error) {
			if err != nil {
				cb(nil, err)
				return
			}
			cb(v.(btcutil.Address), nil)
		},
	)
}

// FundRawTransaction issues fundrawtransaction.
func (f *SwapFacade) FundRawTransaction(tx *wire.MsgTx, cb func(res *btcjson.FundRawTransactionResult, err error)) error {
	future := f.client.FundRawTransactionAsync(tx, btcjson.FundRawTransactionOpts{}, nil)
	return f.dispatch(
		func() (any, error) { return future.Receive() },
		func(v any, err error) {
			if err != nil {
				cb(nil, err)
				return
			}
			cb(v.(*btcjson.FundRawTransactionResult), nil)
		},
	)
}

// SignRawTransaction issues signrawtransaction (legacy, pre-PSBT) since the
// contract is P2SH-style legacy per §1's Non-goals.
func (f *SwapFacade) SignRawTransaction(tx *wire.MsgTx, cb func(signed *wire.MsgTx, complete bool, err error)) error {
	future := f.client.SignRawTransactionAsync(tx)
	if err := f.busyGuardStart(); err != nil {
		return err
	}
	go func() {
		signed, complete, err := future.Receive()
		f.done <- func() {
			f.busy.Store(false)
			cb(signed, complete, err)
		}
	}()
	return nil
}

// CreateRawTransaction issues createrawtransaction.
func (f *SwapFacade) CreateRawTransaction(inputs []btcjson.TransactionInput, amounts map[btcutil.Address]btcutil.Amount, lockTime *int64, cb func(tx *wire.MsgTx, err error)) error {
	future := f.client.CreateRawTransactionAsync(inputs, amounts, lockTime)
	return f.dispatch(
		func() (any, error) { return future.Receive() },
		func(v any, err error) {
			if err != nil {
				cb(nil, err)
				return
			}
			cb(v.(*wire.MsgTx), nil)
		},
	)
}

// DumpPrivKey issues dumpprivkey.
func (f *SwapFacade) DumpPrivKey(address btcutil.Address, cb func(wif *btcutil.WIF, err error)) error {
	future := f.client.DumpPrivKeyAsync(address)
	return f.dispatch(
		func() (any, error) { return future.Receive() },
		func(v any, err error) {
			if err != nil {
				cb(nil, err)
				return
			}
			cb(v.(*btcutil.WIF), nil)
		},
	)
}

// SendRawTransaction issues sendrawtransaction with allowHighFees=true, so
// that a program-computed fee is never rejected by the node's high-fee
// heuristic.
func (f *SwapFacade) SendRawTransaction(tx *wire.MsgTx, cb func(txid *chainhash.Hash, err error)) error {
	future := f.client.SendRawTransactionAsync(tx, true)
	return f.dispatch(
		func() (any, error) { return future.Receive() },
		func(v any, err error) {
			if err != nil {
				cb(nil, err)
				return
			}
			cb(v.(*chainhash.Hash), nil)
		},
	)
}

// GetTxOut issues gettxout; result is nil when the output is spent or
// unknown, matching the `result: null` case of §4.2.
func (f *SwapFacade) GetTxOut(txHash *chainhash.Hash, index uint32, cb func(res *btcjson.GetTxOutResult, err error)) error {
	future := f.client.GetTxOutAsync(txHash, index, true)
	return f.dispatch(
		func() (any, error) { return future.Receive() },
		func(v any, err error) {
			if err != nil {
				cb(nil, err)
				return
			}
			cb(v.(*btcjson.GetTxOutResult), nil)
		},
	)
}

// busyGuardStart exists only because SignRawTransactionResult's Receive
// returns three values instead of the (any, error) shape dispatch expects.
func (f *SwapFacade) busyGuardStart() error {
	if !f.busy.CompareAndSwap(false, true) {
		return fmt.Errorf("rpc: a request is already outstanding on this facade")
	}
	return nil
}
