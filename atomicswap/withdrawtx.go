package atomicswap

import (
	"fmt"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/BeamMW/btc-swap-driver/btcman/assembler"
	"github.com/BeamMW/btc-swap-driver/htlc"
	"github.com/BeamMW/btc-swap-driver/swapstore"
)

// buildWithdrawTx drives the REFUND_TX/REDEEM_TX state machine of §4.4's
// "buildWithdrawTx" table. subTxId selects which of the two spending paths
// is being built; everything else is shared.
func (d *Driver) buildWithdrawTx(subTxId swapstore.SubTxId) (swapstore.SwapTxState, error) {
	if d.lastErr != nil {
		return 0, d.lastErr
	}

	state, err := d.loadState(subTxId)
	if err != nil {
		return 0, err
	}

	switch state {
	case swapstore.Initial:
		if err := d.startWithdrawTx(subTxId); err != nil {
			return 0, err
		}
		return swapstore.CreatingTx, nil

	case swapstore.CreatingTx:
		// Either createrawtransaction or dumpprivkey is outstanding; the
		// completion callbacks drive this subtx the rest of the way.
		return swapstore.CreatingTx, nil

	case swapstore.Constructed:
		if d.withdrawRawTxHex == "" {
			hex, err := swapstore.GetMandatory[swapstore.StringValue](d.store, d.SwapID, swapstore.AtomicSwapExternalTx, subTxId)
			if err != nil {
				return 0, fmt.Errorf("%w: %v", ErrConfiguration, err)
			}
			d.withdrawRawTxHex = string(hex)
		}
		return swapstore.Constructed, nil
	}

	return state, nil
}

func (d *Driver) startWithdrawTx(subTxId swapstore.SubTxId) error {
	swapAmount, err := swapstore.GetMandatory[swapstore.Int64Value](d.store, d.SwapID, swapstore.AtomicSwapAmount, swapstore.LockTx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	swapAddrStr, err := swapstore.GetMandatory[swapstore.StringValue](d.store, d.SwapID, swapstore.AtomicSwapAddress, swapstore.LockTx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	outputIndex, err := swapstore.GetMandatory[swapstore.Uint32Value](d.store, d.SwapID, swapstore.AtomicSwapExternalTxOutputIndex, swapstore.LockTx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	lockTxID, err := swapstore.GetMandatory[swapstore.StringValue](d.store, d.SwapID, swapstore.AtomicSwapExternalTxID, swapstore.LockTx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	swapAddr, err := assembler.DecodeAddress(string(swapAddrStr), d.cfg.Network)
	if err != nil {
		return fmt.Errorf("%w: decoding our address: %v", ErrConfiguration, err)
	}

	fee := d.cfg.WithdrawFeeSat
	net := btcutil.Amount(int64(swapAmount) - fee)

	inputs := []btcjson.TransactionInput{{
		Txid: string(lockTxID),
		Vout: uint32(outputIndex),
	}}
	amounts := map[btcutil.Address]btcutil.Amount{swapAddr: net}

	var lockTime *int64
	if subTxId == swapstore.RefundTx {
		lt, err := swapstore.GetMandatory[swapstore.Int64Value](d.store, d.SwapID, swapstore.AtomicSwapExternalLockTime, swapstore.LockTx)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
		v := int64(lt)
		lockTime = &v
	}

	if err := d.rpc.CreateRawTransaction(inputs, amounts, lockTime, func(tx *wire.MsgTx, err error) {
		d.onCreateWithdrawTransaction(subTxId, tx, err)
	}); err != nil {
		return fmt.Errorf("%w: %v", ErrRpc, err)
	}
	return d.setState(subTxId, swapstore.CreatingTx)
}

func (d *Driver) onCreateWithdrawTransaction(subTxId swapstore.SubTxId, tx *wire.MsgTx, err error) {
	if err != nil {
		d.fail(fmt.Errorf("%w: createrawtransaction: %v", ErrRpc, err))
		return
	}

	// BIP65: CLTV requires nSequence != 0xffffffff. The RPC's
	// TransactionInput has no Sequence field, so it is applied here on the
	// transaction createrawtransaction returned.
	for _, in := range tx.TxIn {
		in.Sequence = wire.MaxTxInSequenceNum - 1
	}

	swapAddrStr, gerr := swapstore.GetMandatory[swapstore.StringValue](d.store, d.SwapID, swapstore.AtomicSwapAddress, swapstore.LockTx)
	if gerr != nil {
		d.fail(fmt.Errorf("%w: %v", ErrConfiguration, gerr))
		return
	}
	swapAddr, derr := assembler.DecodeAddress(string(swapAddrStr), d.cfg.Network)
	if derr != nil {
		d.fail(fmt.Errorf("%w: %v", ErrConfiguration, derr))
		return
	}

	rawHex, herr := serializeTxHex(tx)
	if herr != nil {
		d.fail(fmt.Errorf("%w: %v", ErrSigningFailure, herr))
		return
	}
	d.withdrawRawTxHex = rawHex

	if err := d.rpc.DumpPrivKey(swapAddr, func(wif *btcutil.WIF, err error) {
		d.onDumpPrivateKey(subTxId, wif, err)
	}); err != nil {
		d.fail(fmt.Errorf("%w: %v", ErrRpc, err))
	}
}

func (d *Driver) onDumpPrivateKey(subTxId swapstore.SubTxId, wif *btcutil.WIF, err error) {
	if err != nil {
		d.fail(fmt.Errorf("%w: dumpprivkey: %v", ErrRpc, err))
		return
	}

	withdrawTx, derr := deserializeTxHex(d.withdrawRawTxHex)
	if derr != nil {
		d.fail(fmt.Errorf("%w: %v", ErrSigningFailure, derr))
		return
	}

	contractScript, cerr := d.recomputeContractScript()
	if cerr != nil {
		d.fail(cerr)
		return
	}

	const inputIndex = 0
	sig, serr := txscript.RawTxInSignature(withdrawTx, inputIndex, contractScript, txscript.SigHashAll, wif.PrivKey)
	if serr != nil {
		d.fail(fmt.Errorf("%w: creating endorsement: %v", ErrSigningFailure, serr))
		return
	}
	pubKey := wif.PrivKey.PubKey().SerializeCompressed()

	var sigScript []byte
	if subTxId == swapstore.RefundTx {
		sigScript, err = htlc.RefundSigScript(sig, pubKey)
	} else {
		secret, ok, serr2 := swapstore.Get[swapstore.Bytes32Value](d.store, d.SwapID, swapstore.PreImage, swapstore.BeamRedeemTx)
		if serr2 != nil {
			d.fail(fmt.Errorf("%w: %v", ErrConfiguration, serr2))
			return
		}
		if !ok {
			d.fail(fmt.Errorf("%w: PreImage not available for redeem", ErrConfiguration))
			return
		}
		sigScript, err = htlc.RedeemSigScript(sig, pubKey, secret[:])
	}
	if err != nil {
		d.fail(fmt.Errorf("%w: %v", ErrSigningFailure, err))
		return
	}

	withdrawTx.TxIn[inputIndex].SignatureScript = sigScript

	rawHex, herr := serializeTxHex(withdrawTx)
	if herr != nil {
		d.fail(fmt.Errorf("%w: %v", ErrSigningFailure, herr))
		return
	}
	d.withdrawRawTxHex = rawHex

	if err := swapstore.Set[swapstore.StringValue](d.store, d.SwapID, swapstore.AtomicSwapExternalTx, subTxId, swapstore.StringValue(rawHex), false); err != nil {
		d.fail(fmt.Errorf("%w: %v", ErrConfiguration, err))
		return
	}
	if err := d.setState(subTxId, swapstore.Constructed); err != nil {
		d.fail(fmt.Errorf("%w: %v", ErrConfiguration, err))
	}
}
