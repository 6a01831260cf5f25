package atomicswap

import "errors"

// Error taxonomy of §7 of the specification. Every fatal path returns one
// of these wrapped with fmt.Errorf("...: %w", ...) so callers can check
// with errors.Is.
var (
	// ErrConfiguration is returned when a mandatory parameter is missing
	// at advance time.
	ErrConfiguration = errors.New("atomicswap: configuration error")

	// ErrRpc wraps a node-reported error or transport failure. Recoverable
	// by retrying the advance at the outer level.
	ErrRpc = errors.New("atomicswap: rpc error")

	// ErrFailedToRegister is returned when sendrawtransaction accepted the
	// call but returned an empty txid (broadcast rejected).
	ErrFailedToRegister = errors.New("atomicswap: broadcast rejected")

	// ErrConsensusMismatch is returned when the on-chain lock output does
	// not match the locally recomputed contract, or is under-funded.
	ErrConsensusMismatch = errors.New("atomicswap: consensus mismatch")

	// ErrSigningFailure is returned when the node reports an incomplete
	// signature, or local endorsement construction fails.
	ErrSigningFailure = errors.New("atomicswap: signing failure")

	// ErrUnexpectedFundingShape is returned when fundrawtransaction
	// produced more outputs than the single HTLC output + optional single
	// change output this driver understands (§9 Open Questions).
	ErrUnexpectedFundingShape = errors.New("atomicswap: unexpected funding shape")
)
