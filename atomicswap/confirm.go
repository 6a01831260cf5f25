package atomicswap

import (
	"bytes"
	"fmt"
	"math"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/BeamMW/btc-swap-driver/swapstore"
)

// confirmLockTx reports whether the lock output has reached the configured
// confirmation depth, issuing one gettxout poll on every call that finds the
// cached count below the threshold. It does not track whether an earlier
// poll is still outstanding. It never blocks: the caller is expected to call
// this (and Pump) repeatedly until it returns true.
func (d *Driver) confirmLockTx() (bool, error) {
	if d.lastErr != nil {
		return false, d.lastErr
	}
	if d.swapLockTxConfirmations >= d.cfg.MinConfirmations {
		return true, nil
	}
	if err := d.pollSwapLockTxConfirmations(); err != nil {
		return false, err
	}
	return false, nil
}

func (d *Driver) pollSwapLockTxConfirmations() error {
	txID, err := swapstore.GetMandatory[swapstore.StringValue](d.store, d.SwapID, swapstore.AtomicSwapExternalTxID, swapstore.LockTx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	outputIndex, err := swapstore.GetMandatory[swapstore.Uint32Value](d.store, d.SwapID, swapstore.AtomicSwapExternalTxOutputIndex, swapstore.LockTx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	hash, err := chainhash.NewHashFromStr(string(txID))
	if err != nil {
		return fmt.Errorf("%w: parsing lock txid: %v", ErrConfiguration, err)
	}

	if err := d.rpc.GetTxOut(hash, uint32(outputIndex), d.onGetSwapLockTxConfirmations); err != nil {
		return fmt.Errorf("%w: %v", ErrRpc, err)
	}
	return nil
}

func (d *Driver) onGetSwapLockTxConfirmations(res *btcjson.GetTxOutResult, err error) {
	if err != nil {
		d.fail(fmt.Errorf("%w: gettxout: %v", ErrRpc, err))
		return
	}
	if res == nil {
		// Output not found in the UTXO set (spent, or not yet broadcast).
		// Not fatal: try again on the next poll.
		return
	}

	swapAmount, gerr := swapstore.GetMandatory[swapstore.Int64Value](d.store, d.SwapID, swapstore.AtomicSwapAmount, swapstore.LockTx)
	if gerr != nil {
		d.fail(fmt.Errorf("%w: %v", ErrConfiguration, gerr))
		return
	}
	outputAmount := int64(math.Round(res.Value * SatoshiPerBitcoin))
	if int64(swapAmount) > outputAmount {
		d.fail(fmt.Errorf("%w: lock output underfunded: expected %d sat, got %d sat", ErrConsensusMismatch, swapAmount, outputAmount))
		return
	}

	contractScript, cerr := d.recomputeContractScript()
	if cerr != nil {
		d.fail(cerr)
		return
	}
	observed, herr := decodeHexScript(res.ScriptPubKey.Hex)
	if herr != nil {
		d.fail(fmt.Errorf("%w: decoding observed scriptPubKey: %v", ErrConsensusMismatch, herr))
		return
	}
	if !bytes.Equal(observed, contractScript) {
		d.fail(fmt.Errorf("%w: on-chain lock script does not match recomputed contract", ErrConsensusMismatch))
		return
	}

	d.swapLockTxConfirmations = int32(res.Confirmations)
}
