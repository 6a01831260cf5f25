// Server = a single swap's driver + its persistence + its status http reporter.
// All components are configured via environment variables / a config file (strings!).

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	logger "github.com/sirupsen/logrus"

	"github.com/BeamMW/btc-swap-driver/atomicswap"
	btcrpc "github.com/BeamMW/btc-swap-driver/btcman/rpc"
	"github.com/BeamMW/btc-swap-driver/common"
	"github.com/BeamMW/btc-swap-driver/statusapi"
	"github.com/BeamMW/btc-swap-driver/swapstore"
)

// Default params for the swap server. More often we don't recommend users
// to tweak those, so we list them here.
const (
	defaultPollInterval = 5 * time.Second
)

// Keep the configuration's fields as "text" as possible. Its easier to load
// it from env vars or a config file.
type SwapServerConfig struct {
	// btc side
	BtcRpcServer   string           // btc rpc server info
	BtcRpcPort     string           // btc rpc server info
	BtcRpcUsername string           // btc rpc server info
	BtcRpcPwd      string           // btc rpc server info
	BtcChainConfig *chaincfg.Params // regtest, testnet, mainnet? see btcman/assembler/common.go

	// state side
	DbFilePath string // sqlite db file path, swapstore + status registry

	// the single swap this process drives (out-of-process enrollment is
	// out of scope, see SPEC_FULL.md §1's Out-of-scope list)
	SwapID          string
	SwapAmountSat   int64
	SwapPeerAddress string
	SwapIsInitiator bool
	SwapIsBtcOwner  bool

	// tuning
	PollInterval   time.Duration
	WithdrawFeeSat int64

	// Http side
	HttpIp   string // eg. 0.0.0.0
	HttpPort string // eg. 8080
}

// SwapServer holds the objects that make up a running swap driver process.
type SwapServer struct {
	BtcRpcClient *btcrpc.RpcClient
	RpcFacade    *btcrpc.SwapFacade
	Store        *swapstore.SQLiteStore
	Driver       *atomicswap.Driver
	registry     *swapRegistry
}

// Swaps implements statusapi.Registry.
func (s *SwapServer) Swaps() map[string]*atomicswap.Driver {
	return s.registry.Swaps()
}

// NewSwapServer creates a new swap server: connects to the bitcoin node,
// opens the parameter store, constructs the driver for the configured swap
// and starts the status http reporter. The signing identity for the swap
// is never held by this process: AtomicSwapAddress always comes from the
// connected node's own getrawchangeaddress, so the node alone can answer
// the later dumpprivkey that signs redeem/refund (atomicswap.Initial).
func NewSwapServer(ssc *SwapServerConfig) (*SwapServer, error) {
	if !common.IsValidBtcAddress(ssc.SwapPeerAddress, ssc.BtcChainConfig) {
		return nil, fmt.Errorf("configured swap peer address %q is not valid on the configured chain", ssc.SwapPeerAddress)
	}

	rpcClient, err := SetupBtcRpc(ssc.BtcRpcServer, ssc.BtcRpcPort, ssc.BtcRpcUsername, ssc.BtcRpcPwd)
	if err != nil {
		logger.Fatalf("cannot connect to btc rpc server with %s:%s, %s:%s %v", ssc.BtcRpcServer, ssc.BtcRpcPort, ssc.BtcRpcUsername, ssc.BtcRpcPwd, err)
		return nil, err
	}

	store, err := swapstore.NewSQLiteStore(ssc.DbFilePath)
	if err != nil {
		logger.Fatalf("cannot create parameter store %v", err)
		return nil, err
	}

	facade := btcrpc.NewSwapFacade(rpcClient.Raw())

	cfg := atomicswap.DefaultConfig(ssc.BtcChainConfig)
	cfg.WithdrawFeeSat = ssc.WithdrawFeeSat

	role := swapstore.SwapRole{IsInitiator: ssc.SwapIsInitiator, IsBtcOwner: ssc.SwapIsBtcOwner}

	if err := bootstrapSwap(store, ssc); err != nil {
		logger.Fatalf("cannot bootstrap configured swap %s: %v", ssc.SwapID, err)
		return nil, err
	}

	driver := atomicswap.New(ssc.SwapID, store, facade, cfg, role, nil)

	registry := newSwapRegistry()
	registry.register(driver)

	// *** Setup a http server to report status ***
	httpServer := statusapi.NewServer(ssc.HttpIp, ssc.HttpPort, registry)
	go httpServer.Run()

	// Give it some time to start the http server
	time.Sleep(1 * time.Second)
	// *** End the setup of http server ***

	return &SwapServer{
		BtcRpcClient: rpcClient,
		RpcFacade:    facade,
		Store:        store,
		Driver:       driver,
		registry:     registry,
	}, nil
}

// bootstrapSwap persists the global parameters §3 requires to exist before
// Initial can run, for the single swap this process is configured to drive.
func bootstrapSwap(store swapstore.Store, ssc *SwapServerConfig) error {
	now := time.Now().Unix()
	if _, ok, err := swapstore.Get[swapstore.Int64Value](store, ssc.SwapID, swapstore.CreateTime, swapstore.LockTx); err != nil {
		return err
	} else if !ok {
		if err := swapstore.Set[swapstore.Int64Value](store, ssc.SwapID, swapstore.CreateTime, swapstore.LockTx, swapstore.Int64Value(now), true); err != nil {
			return err
		}
	}
	if err := swapstore.Set[swapstore.Int64Value](store, ssc.SwapID, swapstore.AtomicSwapAmount, swapstore.LockTx, swapstore.Int64Value(ssc.SwapAmountSat), true); err != nil {
		return err
	}
	if err := swapstore.Set[swapstore.StringValue](store, ssc.SwapID, swapstore.AtomicSwapPeerAddress, swapstore.LockTx, swapstore.StringValue(ssc.SwapPeerAddress), true); err != nil {
		return err
	}
	return nil
}

// swapRegistry is the live set of swaps this process is driving, guarded by
// a mutex since the status API reads it from its own goroutine concurrently
// with the poll loop advancing it.
type swapRegistry struct {
	mu    sync.RWMutex
	swaps map[string]*atomicswap.Driver
}

func newSwapRegistry() *swapRegistry {
	return &swapRegistry{swaps: make(map[string]*atomicswap.Driver)}
}

func (r *swapRegistry) Swaps() map[string]*atomicswap.Driver {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snapshot := make(map[string]*atomicswap.Driver, len(r.swaps))
	for id, d := range r.swaps {
		snapshot[id] = d
	}
	return snapshot
}

func (r *swapRegistry) register(d *atomicswap.Driver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.swaps[d.SwapID] = d
}

// Create, then start the swap server and wait. Press Ctrl-C to kill it.
func StartSwapServerAndWait(ssc *SwapServerConfig) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel() // defense programing

	// Set up a signal channel to listen for Ctrl-C (SIGINT) or SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		fmt.Printf("Received signal: %v, cancelling context...\n", sig)
		cancel()
	}()

	server, err := NewSwapServer(ssc)
	if err != nil {
		logger.Fatalf("failed to create swap server: %v", err)
		return
	}
	defer server.BtcRpcClient.Close()
	defer server.Store.Close()

	interval := ssc.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	runSwapLoop(ctx, server, interval)
}

// runSwapLoop drives every registered swap's advance sequence on a fixed
// tick until ctx is cancelled.
func runSwapLoop(ctx context.Context, server *SwapServer, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			server.RpcFacade.Pump()
			for _, d := range server.registry.Swaps() {
				advanceSwap(d)
			}
		}
	}
}

// advanceSwap runs one round of every advance operation in §4.4's ordering.
// An error returned by a step before SendRedeem is logged and ends the
// round at that step; errors from SendRedeem and SendRefund are logged.
func advanceSwap(d *atomicswap.Driver) {
	if _, err := d.Initial(); err != nil {
		logger.WithField("swap_id", d.SwapID).WithError(err).Warn("initial failed")
		return
	}
	if err := d.InitLockTime(); err != nil {
		logger.WithField("swap_id", d.SwapID).WithError(err).Warn("initLockTime failed")
		return
	}
	if _, err := d.SendLockTx(); err != nil {
		logger.WithField("swap_id", d.SwapID).WithError(err).Warn("sendLockTx failed")
		return
	}
	if err := d.AddTxDetails(); err != nil {
		logger.WithField("swap_id", d.SwapID).WithError(err).Warn("addTxDetails failed")
		return
	}
	if _, err := d.ConfirmLockTx(); err != nil {
		logger.WithField("swap_id", d.SwapID).WithError(err).Warn("confirmLockTx failed")
		return
	}
	if _, err := d.SendRedeem(); err != nil {
		logger.WithField("swap_id", d.SwapID).WithError(err).Warn("sendRedeem failed")
	}
	if _, err := d.SendRefund(); err != nil {
		logger.WithField("swap_id", d.SwapID).WithError(err).Warn("sendRefund failed")
	}
}
