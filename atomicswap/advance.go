package atomicswap

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"

	"github.com/BeamMW/btc-swap-driver/common"
	"github.com/BeamMW/btc-swap-driver/nativechain"
	"github.com/BeamMW/btc-swap-driver/swapstore"
)

// Initial implements §4.4's "initial()": ensures AtomicSwapAddress exists,
// generating the initiator's preimage along the way, and reports whether
// the swap is ready to proceed. Per spec.md/SPEC_FULL.md §4.4 and the
// source's LoadSwapAddress, the address is always sourced from the node via
// getrawchangeaddress — the node must own the address for a later
// dumpprivkey to succeed, so there is no local-signer shortcut here.
func (d *Driver) Initial() (bool, error) {
	if d.lastErr != nil {
		return false, d.lastErr
	}

	_, ok, err := swapstore.Get[swapstore.StringValue](d.store, d.SwapID, swapstore.AtomicSwapAddress, swapstore.LockTx)
	if err != nil {
		return false, fmt.Errorf("%w: reading AtomicSwapAddress: %v", ErrConfiguration, err)
	}
	if ok {
		return true, nil
	}

	if d.addressRequested {
		return false, nil
	}
	if err := d.rpc.GetRawChangeAddress(d.onGetRawChangeAddress); err != nil {
		return false, fmt.Errorf("%w: %v", ErrRpc, err)
	}
	d.addressRequested = true
	return false, nil
}

func (d *Driver) onGetRawChangeAddress(addr btcutil.Address, err error) {
	d.addressRequested = false
	if err != nil {
		d.fail(fmt.Errorf("%w: getrawchangeaddress: %v", ErrRpc, err))
		return
	}
	if perr := d.persistSwapAddress(addr.EncodeAddress()); perr != nil {
		d.fail(perr)
	}
}

// persistSwapAddress records AtomicSwapAddress (set exactly once, §3's
// invariant) and, if we are the swap's initiator and the one collateralizing
// the Bitcoin side, generates and stores the redeem preimage.
func (d *Driver) persistSwapAddress(address string) error {
	if err := swapstore.Set[swapstore.StringValue](d.store, d.SwapID, swapstore.AtomicSwapAddress, swapstore.LockTx, swapstore.StringValue(address), true); err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	if !d.role.IsBtcOwner || !d.role.IsInitiator {
		return nil
	}
	preimage := swapstore.Bytes32Value(common.RandBytes32())
	if err := swapstore.Set[swapstore.Bytes32Value](d.store, d.SwapID, swapstore.PreImage, swapstore.BeamRedeemTx, preimage, true); err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return nil
}

// InitLockTime implements §4.4's "initLockTime()": sets the absolute CLTV
// locktime once, relative to the swap's creation time.
func (d *Driver) InitLockTime() error {
	if d.lastErr != nil {
		return d.lastErr
	}

	_, ok, err := swapstore.Get[swapstore.Int64Value](d.store, d.SwapID, swapstore.AtomicSwapExternalLockTime, swapstore.LockTx)
	if err != nil {
		return fmt.Errorf("%w: reading AtomicSwapExternalLockTime: %v", ErrConfiguration, err)
	}
	if ok {
		return nil
	}

	createTime, err := swapstore.GetMandatory[swapstore.Int64Value](d.store, d.SwapID, swapstore.CreateTime, swapstore.LockTx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	locktime := int64(createTime) + d.cfg.LockTimeSec
	if err := swapstore.Set[swapstore.Int64Value](d.store, d.SwapID, swapstore.AtomicSwapExternalLockTime, swapstore.LockTx, swapstore.Int64Value(locktime), true); err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return nil
}

// AddTxDetails implements §4.4's "addTxDetails(out)": publishes our lock
// transaction's identifying details to the native-chain counterpart, once
// the lock transaction has been broadcast. A nil peer is valid (tests, or a
// caller that ferries these details across the chain boundary itself) and
// is a no-op.
func (d *Driver) AddTxDetails() error {
	if d.lastErr != nil {
		return d.lastErr
	}

	ourAddr, err := swapstore.GetMandatory[swapstore.StringValue](d.store, d.SwapID, swapstore.AtomicSwapAddress, swapstore.LockTx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	txid, err := swapstore.GetMandatory[swapstore.StringValue](d.store, d.SwapID, swapstore.AtomicSwapExternalTxID, swapstore.LockTx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	outputIndex, err := swapstore.GetMandatory[swapstore.Uint32Value](d.store, d.SwapID, swapstore.AtomicSwapExternalTxOutputIndex, swapstore.LockTx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	if err := swapstore.Set[swapstore.SubTxIdValue](d.store, d.SwapID, swapstore.SubTxIndex, swapstore.LockTx, swapstore.SubTxIdValue(swapstore.LockTx), false); err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	if d.peer == nil {
		return nil
	}
	details := nativechain.LockTxDetails{
		PeerAddress: string(ourAddr),
		TxID:        string(txid),
		OutputIndex: uint32(outputIndex),
	}
	if err := d.peer.PublishLockTxDetails(d.SwapID, details); err != nil {
		return fmt.Errorf("%w: publishing lock tx details: %v", ErrRpc, err)
	}
	return nil
}

// SendLockTx implements §4.4's "sendLockTx()": drives LOCK_TX to
// Constructed and broadcasts it. Returns true only once broadcast is
// confirmed accepted.
func (d *Driver) SendLockTx() (bool, error) {
	if d.lastErr != nil {
		return false, d.lastErr
	}
	state, err := d.buildLockTx()
	if err != nil {
		return false, err
	}
	if state != swapstore.Constructed {
		return false, nil
	}
	return d.registerTx(d.lockRawTxHex, swapstore.LockTx)
}

// ConfirmLockTx implements §4.4's "confirmLockTx()": waits until the lock
// txid is present under AtomicSwapExternalTxID (LOCK_TX scope; registerTx
// writes it once our broadcast is accepted, AddTxDetails only reads it),
// then polls for confirmations.
func (d *Driver) ConfirmLockTx() (bool, error) {
	if d.lastErr != nil {
		return false, d.lastErr
	}
	_, ok, err := swapstore.Get[swapstore.StringValue](d.store, d.SwapID, swapstore.AtomicSwapExternalTxID, swapstore.LockTx)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if !ok {
		return false, nil
	}
	return d.confirmLockTx()
}

// SendRedeem implements §4.4's "sendRedeem()".
func (d *Driver) SendRedeem() (bool, error) {
	return d.sendWithdrawTx(swapstore.RedeemTx)
}

// SendRefund implements §4.4's "sendRefund()".
func (d *Driver) SendRefund() (bool, error) {
	return d.sendWithdrawTx(swapstore.RefundTx)
}

func (d *Driver) sendWithdrawTx(subTxId swapstore.SubTxId) (bool, error) {
	if d.lastErr != nil {
		return false, d.lastErr
	}
	state, err := d.buildWithdrawTx(subTxId)
	if err != nil {
		return false, err
	}
	if state != swapstore.Constructed {
		return false, nil
	}
	return d.registerTx(d.withdrawRawTxHex, subTxId)
}
