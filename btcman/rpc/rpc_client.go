package rpc

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
)

const (
	CONFIRM_SAFE = 6 // minimum confirm threshold to consider Tx is finalized.
	MAX_CONFIRM  = 9999999
)

type RpcClientConfig struct {
	ServerAddr string // ip address of server
	Port       string // port of server
	Username   string
	Pwd        string
}

// Wrapper of btc rpc client.
type RpcClient struct {
	ServerAddr string // ip address of server
	Port       string // port of server
	Username   string
	Pwd        string
	client     *rpcclient.Client
}

// Create a new RPC client which
// contains several useful functions
// to interact with bitcoin node.
func NewRpcClient(rcc *RpcClientConfig) (*RpcClient, error) {
	// Connect to local Bitcoin mining node using HTTP
	client, err := rpcclient.New(&rpcclient.ConnConfig{
		Host:         rcc.ServerAddr + ":" + rcc.Port,
		User:         rcc.Username,
		Pass:         rcc.Pwd,
		HTTPPostMode: true, // original bitcoin only supports HTTP POST mode
		DisableTLS:   true, // original bitcoin does not support TLS
	}, nil)

	if err != nil {
		return nil, err
	}

	return &RpcClient{rcc.ServerAddr, rcc.Port, rcc.Username, rcc.Pwd, client}, nil
}

// Underlying btcd rpcclient, exposed so the async swap facade (swap_rpc.go)
// can issue its own Xxx Async()/Receive() calls against the same connection.
func (r *RpcClient) Raw() *rpcclient.Client {
	return r.client
}

// Close the rpc client
func (r *RpcClient) Close() {
	r.client.Shutdown()
}

// Get the latest block height.
func (r *RpcClient) GetLatestBlockHeight() (int64, error) {
	latestHeight, err := r.client.GetBlockCount()
	if err != nil {
		return 0, err
	}
	return latestHeight, nil
}

// Import a private key to the Bitcoin node's wallet.
// Note: Only imported private keys are monitored by bitcoin core!
// Note: If the priv key exists, it won't raise exception.
func (r *RpcClient) ImportPrivateKey(wif *btcutil.WIF, label string) error {
	err := r.client.ImportPrivKeyRescan(wif, label, true)
	if err != nil {
		return err
	}
	return nil
}

// Generate a given number of blocks.
// This function is useful for testing purposes.
// Unfortunately, the original r.client.Generate() is deprecated in the library.
func (r *RpcClient) GenerateBlocks(numBlocks int64, coinbase btcutil.Address) ([]*chainhash.Hash, error) {
	blockHashes, err := r.client.GenerateToAddress(numBlocks, coinbase, nil)
	if err != nil {
		return nil, err
	}
	return blockHashes, nil
}
