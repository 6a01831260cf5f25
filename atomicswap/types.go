// Package atomicswap implements the Bitcoin-side atomic-swap driver: the
// HTLC lock/redeem/refund state machine of §4.4 of the specification. It
// is the ~70% "core" component; htlc, swapstore and btcman/rpc are its
// three collaborators.
package atomicswap

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	logger "github.com/sirupsen/logrus"

	"github.com/BeamMW/btc-swap-driver/nativechain"
	"github.com/BeamMW/btc-swap-driver/swapstore"
)

// Constants of §6.
const (
	DefaultLockTimeSec         = 172_800 // 48h
	DefaultMinTxConfirmations  = 6
	DefaultWithdrawFeeSat      = 1_000
	SatoshiPerBitcoin          = 100_000_000
	maxChangeOutputs           = 1 // at most one change output beyond the HTLC output
)

// Config carries the parameters the teacher leaves as compile-time
// constants; here they are configurable fields (§9's resolved open
// question on the withdraw fee), defaulting to the spec's constants.
type Config struct {
	Network           *chaincfg.Params
	LockTimeSec       int64
	MinConfirmations  int32
	WithdrawFeeSat    int64
}

// DefaultConfig returns the Config matching §6's constants exactly.
func DefaultConfig(network *chaincfg.Params) Config {
	return Config{
		Network:          network,
		LockTimeSec:      DefaultLockTimeSec,
		MinConfirmations: DefaultMinTxConfirmations,
		WithdrawFeeSat:   DefaultWithdrawFeeSat,
	}
}

// Driver is the per-swap state machine of §4.4. It is cheap to construct
// and is meant to be rebuilt from persisted state on every restart (§3
// Lifecycle) — the only state it is not safe to lose is the small
// in-memory cache of partially built transactions (lockRawTx,
// withdrawRawTx), which is why every advance operation re-derives what it
// can from the store before falling back to an RPC round trip (§9's
// three-tier load design note).
type Driver struct {
	SwapID string

	store swapstore.Store
	rpc   RpcFacade
	cfg   Config
	role  swapstore.SwapRole

	// peer is the seam to the native-chain side (§6); may be nil in tests
	// that only exercise the Bitcoin-side mechanics.
	peer nativechain.Counterpart

	log *logger.Entry

	lockRawTxHex     string // in-memory cache, §4.4 buildLockTx CreatingTx->Constructed
	withdrawRawTxHex string // in-memory cache, §4.4 buildWithdrawTx Initial->CreatingTx

	// addressRequested guards against re-issuing getrawchangeaddress while
	// a prior request is still outstanding; Initial has no persisted state
	// machine of its own (AtomicSwapAddress is a plain optional), so this
	// is the in-memory cache §9 calls for.
	addressRequested bool

	swapLockTxConfirmations int32

	// lastErr is sticky: once an RPC completion callback hits a fatal
	// §7 error, every subsequent advance call returns it immediately
	// instead of re-issuing RPCs against a swap that can no longer
	// proceed.
	lastErr error
}

// Err returns the sticky fatal error recorded by a completed RPC, if any.
func (d *Driver) Err() error {
	return d.lastErr
}

func (d *Driver) fail(err error) {
	if d.lastErr == nil {
		d.lastErr = err
	}
	d.log.WithError(err).Error("atomic swap advance failed")
}

// New constructs a Driver. swapID namespaces this swap's rows in store;
// role is fixed for the lifetime of the swap. peer may be nil, in which
// case AddTxDetails publishes nothing; the peer's commitments are read from
// store either way.
func New(swapID string, store swapstore.Store, rpc RpcFacade, cfg Config, role swapstore.SwapRole, peer nativechain.Counterpart) *Driver {
	return &Driver{
		SwapID: swapID,
		store:  store,
		rpc:    rpc,
		cfg:    cfg,
		role:   role,
		peer:   peer,
		log:    logger.WithField("swap_id", swapID),
	}
}

// Pump drains at most one completed RPC, re-entering whatever callback was
// registered for it. The outer transaction calls this (or relies on an
// advance operation to call it internally) between advance calls.
func (d *Driver) Pump() bool {
	return d.rpc.Pump()
}

// SubTxState reports the persisted lifecycle marker for one of the swap's
// sub-transactions, read-only. Exposed for status reporting (statusapi);
// the driver itself never needs a cross-subtx view of state.
func (d *Driver) SubTxState(subTxId swapstore.SubTxId) (swapstore.SwapTxState, error) {
	return d.loadState(subTxId)
}

// Amount reports the configured Bitcoin-side amount in satoshis. Exposed
// for status reporting; ErrConfiguration if AtomicSwapAmount has not been
// stored yet.
func (d *Driver) Amount() (int64, error) {
	amount, err := swapstore.GetMandatory[swapstore.Int64Value](d.store, d.SwapID, swapstore.AtomicSwapAmount, swapstore.LockTx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return int64(amount), nil
}

// TxID reports the broadcast txid for a sub-transaction, if known.
func (d *Driver) TxID(subTxId swapstore.SubTxId) (string, bool, error) {
	txid, ok, err := swapstore.Get[swapstore.StringValue](d.store, d.SwapID, swapstore.AtomicSwapExternalTxID, subTxId)
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return string(txid), ok, nil
}
