// Package nativechain declares the interface to the native-chain ("BEAM")
// counterpart of an atomic swap. The native-chain side itself is out of
// scope (§1) — this is only the seam the Bitcoin-side driver publishes
// across. The reverse direction (the peer's secret-hash commitment, and the
// initiator's revealed preimage) is not read back through this interface:
// both arrive as ordinary entries in the shared parameter store under
// BEAM_REDEEM_TX scope, written by whatever bridges the native-chain side
// out of process, and are read directly from there (atomicswap/contract.go).
package nativechain

// LockTxDetails is the bundle addTxDetails (§4.4) publishes to the
// native-chain side once our lock transaction is broadcast.
type LockTxDetails struct {
	PeerAddress string // our BTC address, as seen by the counterparty
	TxID        string
	OutputIndex uint32
}

// Counterpart is implemented by whatever drives the native-chain side of a
// swap. It carries only the one parameter that crosses the chain boundary
// in this direction per §6: the lock tx details we publish.
type Counterpart interface {
	// PublishLockTxDetails hands our LOCK_TX details to the counterparty.
	PublishLockTxDetails(swapID string, details LockTxDetails) error
}
