package atomicswap

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/BeamMW/btc-swap-driver/swapstore"
)

// registerTx broadcasts rawTxHex via sendrawtransaction, idempotently: once
// TransactionRegistered is recorded (true or false) for subTxId, it is never
// re-broadcast. §7: an empty txid reply surfaces as ErrFailedToRegister on
// the next call, matching the source's "FailedToRegister" outcome.
func (d *Driver) registerTx(rawTxHex string, subTxId swapstore.SubTxId) (bool, error) {
	if d.lastErr != nil {
		return false, d.lastErr
	}

	registered, ok, err := swapstore.Get[swapstore.BoolValue](d.store, d.SwapID, swapstore.TransactionRegistered, subTxId)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if ok {
		if !bool(registered) {
			return false, fmt.Errorf("%w: subtx %s", ErrFailedToRegister, subTxId)
		}
		return true, nil
	}

	tx, err := deserializeTxHex(rawTxHex)
	if err != nil {
		return false, fmt.Errorf("%w: decoding raw tx: %v", ErrConfiguration, err)
	}

	if err := d.rpc.SendRawTransaction(tx, func(txid *chainhash.Hash, err error) {
		d.onSendRawTransaction(subTxId, txid, err)
	}); err != nil {
		return false, fmt.Errorf("%w: %v", ErrRpc, err)
	}
	return false, nil
}

func (d *Driver) onSendRawTransaction(subTxId swapstore.SubTxId, txid *chainhash.Hash, err error) {
	isRegistered := err == nil && txid != nil

	if serr := swapstore.Set[swapstore.BoolValue](d.store, d.SwapID, swapstore.TransactionRegistered, subTxId, swapstore.BoolValue(isRegistered), false); serr != nil {
		d.fail(fmt.Errorf("%w: %v", ErrConfiguration, serr))
		return
	}

	if !isRegistered {
		// Sticky per subtx but not fatal to the whole driver: the caller
		// observes it via the next registerTx call's error return.
		return
	}

	if serr := swapstore.Set[swapstore.StringValue](d.store, d.SwapID, swapstore.AtomicSwapExternalTxID, subTxId, swapstore.StringValue(txid.String()), false); serr != nil {
		d.fail(fmt.Errorf("%w: %v", ErrConfiguration, serr))
	}
}
