package atomicswap

import (
	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// RpcFacade is the asynchronous Bitcoin RPC surface the driver depends on
// (§4.2). btcman/rpc.SwapFacade implements this interface against a live
// node; tests inject a fake to drive the state machine without a regtest
// node, matching how the teacher's own packages depend on interfaces for
// anything that crosses a process boundary.
type RpcFacade interface {
	GetRawChangeAddress(cb func(addr btcutil.Address, err error)) error
	FundRawTransaction(tx *wire.MsgTx, cb func(res *btcjson.FundRawTransactionResult, err error)) error
	SignRawTransaction(tx *wire.MsgTx, cb func(signed *wire.MsgTx, complete bool, err error)) error
	CreateRawTransaction(inputs []btcjson.TransactionInput, amounts map[btcutil.Address]btcutil.Amount, lockTime *int64, cb func(tx *wire.MsgTx, err error)) error
	DumpPrivKey(address btcutil.Address, cb func(wif *btcutil.WIF, err error)) error
	SendRawTransaction(tx *wire.MsgTx, cb func(txid *chainhash.Hash, err error)) error
	GetTxOut(txHash *chainhash.Hash, index uint32, cb func(res *btcjson.GetTxOutResult, err error)) error
	Pump() bool
}
