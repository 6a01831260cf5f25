// Package htlc builds the P2SH-style hash-time-locked contract script shared
// by both parties of a BTC<->BEAM atomic swap.
package htlc

import (
	"fmt"

	"github.com/btcsuite/btcd/txscript"
)

// MaxSecretSize bounds the pushed secret length so the OP_SIZE operand stays
// a sane script number; btcd's ScriptBuilder already rejects pushes that
// don't fit a script, this just catches an obviously wrong caller.
const MaxSecretSize = 75

// Build constructs the canonical two-branch HTLC redeem script:
//
//	OP_IF
//	  OP_SIZE <secretSize> OP_EQUALVERIFY
//	  OP_SHA256 <secretHash> OP_EQUALVERIFY
//	  OP_DUP OP_HASH160 <hashRedeemer>
//	OP_ELSE
//	  <locktime> OP_CHECKLOCKTIMEVERIFY OP_DROP
//	  OP_DUP OP_HASH160 <hashRefunder>
//	OP_ENDIF
//	OP_EQUALVERIFY
//	OP_CHECKSIG
//
// hashRefunder is the funder's pubkey hash (taken on the refund/timeout
// branch), hashRedeemer is the receiver's (taken on the preimage branch).
// The trailing OP_EQUALVERIFY/OP_CHECKSIG is shared between both branches;
// callers must not duplicate it.
func Build(hashRefunder, hashRedeemer [20]byte, locktime int64, secretHash []byte) ([]byte, error) {
	if len(secretHash) == 0 || len(secretHash) > MaxSecretSize {
		return nil, fmt.Errorf("htlc: secret hash length %d out of range", len(secretHash))
	}
	if locktime < 0 {
		return nil, fmt.Errorf("htlc: negative locktime %d", locktime)
	}

	b := txscript.NewScriptBuilder()
	b.AddOp(txscript.OP_IF)
	{
		b.AddOp(txscript.OP_SIZE)
		b.AddInt64(int64(len(secretHash)))
		b.AddOp(txscript.OP_EQUALVERIFY)
		b.AddOp(txscript.OP_SHA256)
		b.AddData(secretHash)
		b.AddOp(txscript.OP_EQUALVERIFY)
		b.AddOp(txscript.OP_DUP)
		b.AddOp(txscript.OP_HASH160)
		b.AddData(hashRedeemer[:])
	}
	b.AddOp(txscript.OP_ELSE)
	{
		b.AddInt64(locktime)
		b.AddOp(txscript.OP_CHECKLOCKTIMEVERIFY)
		b.AddOp(txscript.OP_DROP)
		b.AddOp(txscript.OP_DUP)
		b.AddOp(txscript.OP_HASH160)
		b.AddData(hashRefunder[:])
	}
	b.AddOp(txscript.OP_ENDIF)
	b.AddOp(txscript.OP_EQUALVERIFY)
	b.AddOp(txscript.OP_CHECKSIG)

	return b.Script()
}

// RedeemSigScript builds the input script that spends the contract via the
// OP_IF (preimage) branch: <sig> <pubkey> <secret> OP_1.
func RedeemSigScript(sig, pubkey, secret []byte) ([]byte, error) {
	b := txscript.NewScriptBuilder()
	b.AddData(sig)
	b.AddData(pubkey)
	b.AddData(secret)
	b.AddOp(txscript.OP_1)
	return b.Script()
}

// RefundSigScript builds the input script that spends the contract via the
// OP_ELSE (timeout) branch: <sig> <pubkey> OP_0.
func RefundSigScript(sig, pubkey []byte) ([]byte, error) {
	b := txscript.NewScriptBuilder()
	b.AddData(sig)
	b.AddData(pubkey)
	b.AddOp(txscript.OP_0)
	return b.Script()
}
