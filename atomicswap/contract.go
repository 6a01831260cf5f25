package atomicswap

import (
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"

	"github.com/BeamMW/btc-swap-driver/btcman/assembler"
	"github.com/BeamMW/btc-swap-driver/htlc"
	"github.com/BeamMW/btc-swap-driver/swapstore"
)

// secretHash resolves the HTLC's secret commitment (§3 invariant: PreImage
// present iff isBtcOwner && isInitiator; otherwise PeerLockImage must be
// available). When we hold the preimage, the commitment is sha256(preimage);
// otherwise it is read directly as the peer's published commitment.
func (d *Driver) secretHash() ([]byte, error) {
	preimage, ok, err := swapstore.Get[swapstore.Bytes32Value](d.store, d.SwapID, swapstore.PreImage, swapstore.BeamRedeemTx)
	if err != nil {
		return nil, fmt.Errorf("%w: reading PreImage: %v", ErrConfiguration, err)
	}
	if ok {
		h := sha256.Sum256(preimage[:])
		return h[:], nil
	}

	peerImage, ok, err := swapstore.Get[swapstore.Bytes32Value](d.store, d.SwapID, swapstore.PeerLockImage, swapstore.BeamRedeemTx)
	if err != nil {
		return nil, fmt.Errorf("%w: reading PeerLockImage: %v", ErrConfiguration, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: neither PreImage nor PeerLockImage available", ErrConfiguration)
	}
	return peerImage[:], nil
}

// addressHashes resolves the pubkey hashes of the two addresses the
// contract script is built from. hashA is the funder's hash (refund
// branch); hashB is the redeemer's (preimage branch). Per the source's
// CreateAtomicSwapContract: the BTC owner is always the funder.
func (d *Driver) addressHashes() (hashA, hashB [20]byte, err error) {
	ourAddrStr, err := swapstore.GetMandatory[swapstore.StringValue](d.store, d.SwapID, swapstore.AtomicSwapAddress, swapstore.LockTx)
	if err != nil {
		return hashA, hashB, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	peerAddrStr, err := swapstore.GetMandatory[swapstore.StringValue](d.store, d.SwapID, swapstore.AtomicSwapPeerAddress, swapstore.LockTx)
	if err != nil {
		return hashA, hashB, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	ourAddr, err := assembler.DecodeAddress(string(ourAddrStr), d.cfg.Network)
	if err != nil {
		return hashA, hashB, fmt.Errorf("%w: decoding our address: %v", ErrConfiguration, err)
	}
	peerAddr, err := assembler.DecodeAddress(string(peerAddrStr), d.cfg.Network)
	if err != nil {
		return hashA, hashB, fmt.Errorf("%w: decoding peer address: %v", ErrConfiguration, err)
	}

	ourHash, err := pubKeyHashOf(ourAddr)
	if err != nil {
		return hashA, hashB, err
	}
	peerHash, err := pubKeyHashOf(peerAddr)
	if err != nil {
		return hashA, hashB, err
	}

	if d.role.IsBtcOwner {
		return ourHash, peerHash, nil
	}
	return peerHash, ourHash, nil
}

func pubKeyHashOf(addr btcutil.Address) ([20]byte, error) {
	var out [20]byte
	pkh, ok := addr.(*btcutil.AddressPubKeyHash)
	if !ok {
		return out, fmt.Errorf("%w: address %s is not a legacy P2PKH address", ErrConfiguration, addr.EncodeAddress())
	}
	copy(out[:], pkh.Hash160()[:])
	return out, nil
}

// recomputeContractScript rebuilds the exact HTLC script the lock output
// must contain (§4.1). It must be called fresh every time it is needed,
// never cached, so that a store mutation (e.g. a newly learned
// PeerLockImage) is always reflected.
func (d *Driver) recomputeContractScript() ([]byte, error) {
	locktime, err := swapstore.GetMandatory[swapstore.Int64Value](d.store, d.SwapID, swapstore.AtomicSwapExternalLockTime, swapstore.LockTx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	hashA, hashB, err := d.addressHashes()
	if err != nil {
		return nil, err
	}
	secretHash, err := d.secretHash()
	if err != nil {
		return nil, err
	}
	return htlc.Build(hashA, hashB, int64(locktime), secretHash)
}
