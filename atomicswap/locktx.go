package atomicswap

import (
	"fmt"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/wire"

	"github.com/BeamMW/btc-swap-driver/swapstore"
)

func (d *Driver) loadState(subTxId swapstore.SubTxId) (swapstore.SwapTxState, error) {
	v, ok, err := swapstore.Get[swapstore.StateValue](d.store, d.SwapID, swapstore.State, subTxId)
	if err != nil {
		return 0, err
	}
	if !ok {
		return swapstore.Initial, nil
	}
	return swapstore.SwapTxState(v), nil
}

func (d *Driver) setState(subTxId swapstore.SubTxId, state swapstore.SwapTxState) error {
	return swapstore.Set[swapstore.StateValue](d.store, d.SwapID, swapstore.State, subTxId, swapstore.StateValue(state), true)
}

// buildLockTx drives the LOCK_TX state machine of §4.4's "buildLockTx"
// table. It never blocks: Initial issues one RPC and returns CreatingTx;
// completions arrive via Driver.Pump and advance the persisted state
// themselves.
func (d *Driver) buildLockTx() (swapstore.SwapTxState, error) {
	if d.lastErr != nil {
		return 0, d.lastErr
	}

	state, err := d.loadState(swapstore.LockTx)
	if err != nil {
		return 0, err
	}

	switch state {
	case swapstore.Initial:
		if err := d.startLockTx(); err != nil {
			return 0, err
		}
		return swapstore.CreatingTx, nil

	case swapstore.CreatingTx:
		// An RPC is outstanding, or its completion hasn't been pumped yet.
		return swapstore.CreatingTx, nil

	case swapstore.Constructed:
		if d.lockRawTxHex == "" {
			hex, err := swapstore.GetMandatory[swapstore.StringValue](d.store, d.SwapID, swapstore.AtomicSwapExternalTx, swapstore.LockTx)
			if err != nil {
				return 0, fmt.Errorf("%w: %v", ErrConfiguration, err)
			}
			d.lockRawTxHex = string(hex)
		}
		return swapstore.Constructed, nil
	}

	return state, nil
}

func (d *Driver) startLockTx() error {
	amount, err := swapstore.GetMandatory[swapstore.Int64Value](d.store, d.SwapID, swapstore.AtomicSwapAmount, swapstore.LockTx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	contractScript, err := d.recomputeContractScript()
	if err != nil {
		return err
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxOut(wire.NewTxOut(int64(amount), contractScript))

	if err := d.rpc.FundRawTransaction(tx, d.onFundRawTransaction); err != nil {
		return fmt.Errorf("%w: %v", ErrRpc, err)
	}
	return d.setState(swapstore.LockTx, swapstore.CreatingTx)
}

func (d *Driver) onFundRawTransaction(res *btcjson.FundRawTransactionResult, err error) {
	if err != nil {
		d.fail(fmt.Errorf("%w: fundrawtransaction: %v", ErrRpc, err))
		return
	}

	fundedTx := res.Transaction

	// §9 Open Question: reject funding shapes beyond one HTLC output plus
	// at most one change output.
	if len(fundedTx.TxOut) > 1+maxChangeOutputs {
		d.fail(fmt.Errorf("%w: fundrawtransaction produced %d outputs", ErrUnexpectedFundingShape, len(fundedTx.TxOut)))
		return
	}

	// changepos == 0 means the change output landed at index 0, pushing
	// our HTLC output to index 1; changepos == -1 (no change) or != 0
	// means our output stayed at index 0.
	valuePos := uint32(1)
	if res.ChangePosition != 0 {
		valuePos = 0
	}
	if err := swapstore.Set[swapstore.Uint32Value](d.store, d.SwapID, swapstore.AtomicSwapExternalTxOutputIndex, swapstore.LockTx, swapstore.Uint32Value(valuePos), false); err != nil {
		d.fail(fmt.Errorf("%w: %v", ErrConfiguration, err))
		return
	}

	if err := d.rpc.SignRawTransaction(fundedTx, d.onSignLockTransaction); err != nil {
		d.fail(fmt.Errorf("%w: %v", ErrRpc, err))
	}
}

func (d *Driver) onSignLockTransaction(signed *wire.MsgTx, complete bool, err error) {
	if err != nil {
		d.fail(fmt.Errorf("%w: signrawtransaction: %v", ErrRpc, err))
		return
	}
	if !complete {
		d.fail(fmt.Errorf("%w: signrawtransaction incomplete", ErrSigningFailure))
		return
	}

	hexStr, encErr := serializeTxHex(signed)
	if encErr != nil {
		d.fail(fmt.Errorf("%w: %v", ErrSigningFailure, encErr))
		return
	}

	d.lockRawTxHex = hexStr
	if err := swapstore.Set[swapstore.StringValue](d.store, d.SwapID, swapstore.AtomicSwapExternalTx, swapstore.LockTx, swapstore.StringValue(hexStr), false); err != nil {
		d.fail(fmt.Errorf("%w: %v", ErrConfiguration, err))
		return
	}
	if err := d.setState(swapstore.LockTx, swapstore.Constructed); err != nil {
		d.fail(fmt.Errorf("%w: %v", ErrConfiguration, err))
	}
}
