// Implements a single private-key signing identity.
// 1) Uses a local private key as backbone.
// 2) Provides public key, signature material and the legacy P2PKH address derived from it.

package assembler

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

// Basic single private key signer
type NativeSigner struct {
	ChainConfig *chaincfg.Params  // which BTC chain it is on. (mainnet, testnet, regtest)
	PrivKey     *btcec.PrivateKey // private key
	PubKey      *btcec.PublicKey  // public key accordingly
}

// Recover a basic signer from
// private key string (aka wallet-import-format, WIF)
// This is the standard private key string that bitcoin-core software exports.
func NewNativeSigner(priv_key_wif_str string, chain_config *chaincfg.Params) (*NativeSigner, error) {
	priv_key_wif, err := DecodeWIF(priv_key_wif_str)
	if err != nil {
		return nil, err
	}
	return &NativeSigner{chain_config, priv_key_wif.PrivKey, priv_key_wif.PrivKey.PubKey()}, nil
}

// NativeOperator additionally exposes the legacy P2PKH address derived from
// the signer's public key.
type NativeOperator struct {
	NativeSigner
	P2PKH *btcutil.AddressPubKeyHash // legacy address, call .EncodeAddress() to get the human readable address
}

func NewNativeOperator(bw NativeSigner) (*NativeOperator, error) {
	// Convert Public Key to a P2PKH address
	p2pkhAddr, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(bw.PubKey.SerializeCompressed()), bw.ChainConfig)
	if err != nil {
		return nil, err
	}
	return &NativeOperator{bw, p2pkhAddr}, nil
}
