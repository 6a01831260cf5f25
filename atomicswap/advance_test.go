package atomicswap

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/BeamMW/btc-swap-driver/btcman/assembler"
	"github.com/BeamMW/btc-swap-driver/htlc"
	"github.com/BeamMW/btc-swap-driver/nativechain"
	"github.com/BeamMW/btc-swap-driver/swapstore"
)

// memStore is a minimal in-memory swapstore.Store for driver tests. The
// sqlite-backed store is exercised directly in swapstore's own test file;
// these tests care about the driver's state machine, not persistence.
type memStore struct {
	data map[string][]byte
}

func newMemStore() *memStore { return &memStore{data: map[string][]byte{}} }

func memKey(swapID string, key swapstore.TxParameterID, subTxId swapstore.SubTxId) string {
	return fmt.Sprintf("%s/%d/%d", swapID, key, subTxId)
}

func (m *memStore) Get(swapID string, key swapstore.TxParameterID, subTxId swapstore.SubTxId) ([]byte, error) {
	v, ok := m.data[memKey(swapID, key, subTxId)]
	if !ok {
		return nil, swapstore.ErrNotFound
	}
	return v, nil
}

func (m *memStore) Set(swapID string, key swapstore.TxParameterID, subTxId swapstore.SubTxId, value []byte, _ bool) error {
	m.data[memKey(swapID, key, subTxId)] = append([]byte(nil), value...)
	return nil
}

// fakeRPC implements RpcFacade by queuing one closure per issued call;
// Pump drains exactly one, matching the "at most one outstanding RPC"
// contract of §4.2/§5 and letting tests drive suspension points explicitly.
type fakeRPC struct {
	queue []func()

	changeAddr btcutil.Address
	changeErr  error

	fundRes *btcjson.FundRawTransactionResult
	fundErr error

	signedTx     *wire.MsgTx
	signComplete bool
	signErr      error

	createFn func(inputs []btcjson.TransactionInput, amounts map[btcutil.Address]btcutil.Amount, lockTime *int64) (*wire.MsgTx, error)

	wif             *btcutil.WIF
	wifErr          error
	dumpPrivKeyAddr btcutil.Address

	txid    *chainhash.Hash
	sendErr error

	txOutFn func() (*btcjson.GetTxOutResult, error)
}

func (f *fakeRPC) GetRawChangeAddress(cb func(btcutil.Address, error)) error {
	f.queue = append(f.queue, func() { cb(f.changeAddr, f.changeErr) })
	return nil
}

func (f *fakeRPC) FundRawTransaction(_ *wire.MsgTx, cb func(*btcjson.FundRawTransactionResult, error)) error {
	f.queue = append(f.queue, func() { cb(f.fundRes, f.fundErr) })
	return nil
}

func (f *fakeRPC) SignRawTransaction(_ *wire.MsgTx, cb func(*wire.MsgTx, bool, error)) error {
	f.queue = append(f.queue, func() { cb(f.signedTx, f.signComplete, f.signErr) })
	return nil
}

func (f *fakeRPC) CreateRawTransaction(inputs []btcjson.TransactionInput, amounts map[btcutil.Address]btcutil.Amount, lockTime *int64, cb func(*wire.MsgTx, error)) error {
	f.queue = append(f.queue, func() {
		tx, err := f.createFn(inputs, amounts, lockTime)
		cb(tx, err)
	})
	return nil
}

func (f *fakeRPC) DumpPrivKey(addr btcutil.Address, cb func(*btcutil.WIF, error)) error {
	f.dumpPrivKeyAddr = addr
	f.queue = append(f.queue, func() { cb(f.wif, f.wifErr) })
	return nil
}

func (f *fakeRPC) SendRawTransaction(_ *wire.MsgTx, cb func(*chainhash.Hash, error)) error {
	f.queue = append(f.queue, func() { cb(f.txid, f.sendErr) })
	return nil
}

func (f *fakeRPC) GetTxOut(_ *chainhash.Hash, _ uint32, cb func(*btcjson.GetTxOutResult, error)) error {
	f.queue = append(f.queue, func() {
		res, err := f.txOutFn()
		cb(res, err)
	})
	return nil
}

func (f *fakeRPC) Pump() bool {
	if len(f.queue) == 0 {
		return false
	}
	next := f.queue[0]
	f.queue = f.queue[1:]
	next()
	return true
}

type fakeCounterpart struct {
	publishedSwapID string
	published       nativechain.LockTxDetails
}

func (f *fakeCounterpart) PublishLockTxDetails(swapID string, details nativechain.LockTxDetails) error {
	f.publishedSwapID = swapID
	f.published = details
	return nil
}

const (
	p1WIF  = "cNSHjGk52rQ6iya8jdNT9VJ8dvvQ8kPAq5pcFHsYBYdDqahWuneH"
	p1Addr = "mkVXZnqaaKt4puQNr4ovPHYg48mjguFCnT"
	p2WIF  = "cQthTMaKUU9f6br1hMXdGFXHwGaAfFFerNkn632BpGE6KXhTMmGY"
	p2Addr = "moHYHpgk4YgTCeLBmDE2teQ3qVLUtM95Fn"
)

// swapFixture wires up a store pre-seeded with the parameters a lock
// transaction's contract script is computed from: we are the BTC owner and
// initiator (P1), the peer (P2) is the redeemer.
type swapFixture struct {
	swapID     string
	store      *memStore
	cfg        Config
	role       swapstore.SwapRole
	preimage   [32]byte
	secretHash []byte
	hashA      [20]byte // P1 (funder/refunder)
	hashB      [20]byte // P2 (redeemer)
	amount     int64
	locktime   int64
}

func newSwapFixture(t *testing.T) *swapFixture {
	t.Helper()
	store := newMemStore()
	cfg := DefaultConfig(&chaincfg.RegressionNetParams)

	fx := &swapFixture{
		swapID:   "swap-1",
		store:    store,
		cfg:      cfg,
		role:     swapstore.SwapRole{IsInitiator: true, IsBtcOwner: true},
		amount:   1_000_000,
		locktime: 1_700_000_000,
	}
	fx.preimage = [32]byte{0xaa}
	h := sha256.Sum256(fx.preimage[:])
	fx.secretHash = h[:]

	p1Operator := mustOperator(t, p1WIF)
	p2Operator := mustOperator(t, p2WIF)
	copy(fx.hashA[:], p1Operator.P2PKH.Hash160()[:])
	copy(fx.hashB[:], p2Operator.P2PKH.Hash160()[:])

	require.NoError(t, store.Set(fx.swapID, swapstore.AtomicSwapAddress, swapstore.LockTx, swapstore.StringValue(p1Addr).Encode(), true))
	require.NoError(t, store.Set(fx.swapID, swapstore.AtomicSwapPeerAddress, swapstore.LockTx, swapstore.StringValue(p2Addr).Encode(), true))
	require.NoError(t, store.Set(fx.swapID, swapstore.AtomicSwapAmount, swapstore.LockTx, swapstore.Int64Value(fx.amount).Encode(), true))
	require.NoError(t, store.Set(fx.swapID, swapstore.AtomicSwapExternalLockTime, swapstore.LockTx, swapstore.Int64Value(fx.locktime).Encode(), true))
	require.NoError(t, store.Set(fx.swapID, swapstore.PreImage, swapstore.BeamRedeemTx, swapstore.Bytes32Value(fx.preimage).Encode(), true))

	return fx
}

func mustOperator(t *testing.T, wif string) *assembler.NativeOperator {
	t.Helper()
	signer, err := assembler.NewNativeSigner(wif, &chaincfg.RegressionNetParams)
	require.NoError(t, err)
	op, err := assembler.NewNativeOperator(*signer)
	require.NoError(t, err)
	return op
}

func (fx *swapFixture) contractScript(t *testing.T) []byte {
	t.Helper()
	script, err := htlc.Build(fx.hashA, fx.hashB, fx.locktime, fx.secretHash)
	require.NoError(t, err)
	return script
}

func (fx *swapFixture) newDriver(rpc RpcFacade) *Driver {
	return New(fx.swapID, fx.store, rpc, fx.cfg, fx.role, nil)
}

// TestInitial_AlwaysSourcesAddressFromRPC pins the fix for the gap where
// Initial used to short-circuit to a locally-derived address instead of the
// node's own getrawchangeaddress: the node must be the one that generates
// AtomicSwapAddress, since only it can later answer dumpprivkey for it.
func TestInitial_AlwaysSourcesAddressFromRPC(t *testing.T) {
	store := newMemStore()
	cfg := DefaultConfig(&chaincfg.RegressionNetParams)
	role := swapstore.SwapRole{IsInitiator: true, IsBtcOwner: true}
	addr, err := btcutil.DecodeAddress(p1Addr, &chaincfg.RegressionNetParams)
	require.NoError(t, err)

	rpc := &fakeRPC{changeAddr: addr}
	d := New("swap-x", store, rpc, cfg, role, nil)

	ready, err := d.Initial()
	require.NoError(t, err)
	require.False(t, ready, "address not known yet, RPC outstanding")

	ready, err = d.Initial()
	require.NoError(t, err)
	require.False(t, ready, "must not issue a second getrawchangeaddress while one is outstanding")
	require.Len(t, rpc.queue, 1)

	require.True(t, d.Pump())

	ready, err = d.Initial()
	require.NoError(t, err)
	require.True(t, ready)

	storedAddr, ok, err := swapstore.Get[swapstore.StringValue](store, "swap-x", swapstore.AtomicSwapAddress, swapstore.LockTx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, p1Addr, string(storedAddr))

	_, ok, err = swapstore.Get[swapstore.Bytes32Value](store, "swap-x", swapstore.PreImage, swapstore.BeamRedeemTx)
	require.NoError(t, err)
	require.True(t, ok, "preimage should be generated: we are both btc owner and initiator")
}

func TestInitial_NonInitiatorOwnerDoesNotGeneratePreimage(t *testing.T) {
	store := newMemStore()
	cfg := DefaultConfig(&chaincfg.RegressionNetParams)
	role := swapstore.SwapRole{IsInitiator: false, IsBtcOwner: true}
	addr, err := btcutil.DecodeAddress(p1Addr, &chaincfg.RegressionNetParams)
	require.NoError(t, err)

	rpc := &fakeRPC{changeAddr: addr}
	d := New("swap-x", store, rpc, cfg, role, nil)

	_, err = d.Initial()
	require.NoError(t, err)
	require.True(t, d.Pump())
	ready, err := d.Initial()
	require.NoError(t, err)
	require.True(t, ready)

	_, ok, err := swapstore.Get[swapstore.Bytes32Value](store, "swap-x", swapstore.PreImage, swapstore.BeamRedeemTx)
	require.NoError(t, err)
	require.False(t, ok)
}

// TestSendRefund_AddressUsedForDumpPrivKeyIsTheRPCIssuedOne guards the
// production gap itself: the address onDumpPrivateKey asks the node to
// reveal the key for is exactly the address Initial obtained from the
// node's own getrawchangeaddress, never a locally-derived one the node was
// never told about.
func TestSendRefund_AddressUsedForDumpPrivKeyIsTheRPCIssuedOne(t *testing.T) {
	store := newMemStore()
	cfg := DefaultConfig(&chaincfg.RegressionNetParams)
	role := swapstore.SwapRole{IsInitiator: true, IsBtcOwner: true}
	changeAddr, err := btcutil.DecodeAddress(p1Addr, &chaincfg.RegressionNetParams)
	require.NoError(t, err)
	wif, err := assembler.DecodeWIF(p1WIF)
	require.NoError(t, err)

	rpc := &fakeRPC{changeAddr: changeAddr, wif: wif}
	d := New("swap-x", store, rpc, cfg, role, nil)

	_, err = d.Initial()
	require.NoError(t, err)
	require.True(t, d.Pump())
	ready, err := d.Initial()
	require.NoError(t, err)
	require.True(t, ready, "getrawchangeaddress must have resolved AtomicSwapAddress")

	rpc.createFn = func(inputs []btcjson.TransactionInput, amounts map[btcutil.Address]btcutil.Amount, lockTime *int64) (*wire.MsgTx, error) {
		hash, herr := chainhash.NewHashFromStr(inputs[0].Txid)
		require.NoError(t, herr)
		tx := wire.NewMsgTx(wire.TxVersion)
		tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(hash, inputs[0].Vout), nil, nil))
		for a, amt := range amounts {
			script, serr := txscript.PayToAddrScript(a)
			require.NoError(t, serr)
			tx.AddTxOut(wire.NewTxOut(int64(amt), script))
		}
		return tx, nil
	}

	require.NoError(t, store.Set("swap-x", swapstore.AtomicSwapPeerAddress, swapstore.LockTx, swapstore.StringValue(p2Addr).Encode(), true))
	require.NoError(t, store.Set("swap-x", swapstore.AtomicSwapAmount, swapstore.LockTx, swapstore.Int64Value(1_000_000).Encode(), true))
	require.NoError(t, store.Set("swap-x", swapstore.AtomicSwapExternalLockTime, swapstore.LockTx, swapstore.Int64Value(1_700_000_000).Encode(), true))
	require.NoError(t, store.Set("swap-x", swapstore.AtomicSwapExternalTxID, swapstore.LockTx, swapstore.StringValue(strings.Repeat("ab", 32)).Encode(), true))
	require.NoError(t, store.Set("swap-x", swapstore.AtomicSwapExternalTxOutputIndex, swapstore.LockTx, swapstore.Uint32Value(0).Encode(), true))

	_, err = d.SendRefund()
	require.NoError(t, err)
	require.True(t, d.Pump()) // createrawtransaction completes, issues dumpprivkey

	// The address dumpprivkey was asked for must be the one getrawchangeaddress
	// handed back in Initial, i.e. an address the node's own wallet generated
	// and therefore can answer dumpprivkey for — never some other address the
	// node was never told about.
	require.NotNil(t, rpc.dumpPrivKeyAddr)
	require.Equal(t, changeAddr.EncodeAddress(), rpc.dumpPrivKeyAddr.EncodeAddress())

	require.True(t, d.Pump()) // dumpprivkey completes, signs locally, state -> Constructed

	signedHex, ok, err := swapstore.Get[swapstore.StringValue](store, "swap-x", swapstore.AtomicSwapExternalTx, swapstore.RefundTx)
	require.NoError(t, err)
	require.True(t, ok)
	_, err = deserializeTxHex(string(signedHex))
	require.NoError(t, err)
}

func TestInitLockTime_SetsAbsoluteLocktimeOnce(t *testing.T) {
	fx := newSwapFixture(t)
	store := newMemStore()
	cfg := DefaultConfig(&chaincfg.RegressionNetParams)
	require.NoError(t, store.Set(fx.swapID, swapstore.CreateTime, swapstore.LockTx, swapstore.Int64Value(1_000).Encode(), true))

	d := New(fx.swapID, store, &fakeRPC{}, cfg, fx.role, nil)
	require.NoError(t, d.InitLockTime())

	lt, ok, err := swapstore.Get[swapstore.Int64Value](store, fx.swapID, swapstore.AtomicSwapExternalLockTime, swapstore.LockTx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, swapstore.Int64Value(1_000+DefaultLockTimeSec), lt)

	// Calling again must not move the locktime, even if CreateTime changes.
	require.NoError(t, store.Set(fx.swapID, swapstore.CreateTime, swapstore.LockTx, swapstore.Int64Value(9_999).Encode(), true))
	require.NoError(t, d.InitLockTime())
	lt2, _, err := swapstore.Get[swapstore.Int64Value](store, fx.swapID, swapstore.AtomicSwapExternalLockTime, swapstore.LockTx)
	require.NoError(t, err)
	require.Equal(t, lt, lt2)
}

func TestSendLockTx_DrivesToConstructedAndBroadcasts(t *testing.T) {
	fx := newSwapFixture(t)
	rpc := &fakeRPC{}
	d := fx.newDriver(rpc)

	contractScript := fx.contractScript(t)
	fundedTx := wire.NewMsgTx(wire.TxVersion)
	// A funded transaction always spends at least one wallet input.
	fundedTx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(mustHash(t, strings.Repeat("11", 32)), 0), nil, nil))
	fundedTx.AddTxOut(wire.NewTxOut(fx.amount, contractScript))
	rpc.fundRes = &btcjson.FundRawTransactionResult{
		Transaction:    fundedTx,
		ChangePosition: -1, // no change output: our HTLC output stays at index 0
	}
	rpc.signedTx = fundedTx
	rpc.signComplete = true
	txHash := mustHash(t, strings.Repeat("ab", 32))
	rpc.txid = txHash

	ready, err := d.SendLockTx()
	require.NoError(t, err)
	require.False(t, ready)

	require.True(t, d.Pump()) // fundrawtransaction completes, issues signrawtransaction
	require.True(t, d.Pump()) // signrawtransaction completes, state -> Constructed

	outIdx, ok, err := swapstore.Get[swapstore.Uint32Value](fx.store, fx.swapID, swapstore.AtomicSwapExternalTxOutputIndex, swapstore.LockTx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, swapstore.Uint32Value(0), outIdx)

	ready, err = d.SendLockTx()
	require.NoError(t, err)
	require.False(t, ready, "broadcast just issued, not confirmed yet")

	require.True(t, d.Pump()) // sendrawtransaction completes

	ready, err = d.SendLockTx()
	require.NoError(t, err)
	require.True(t, ready)

	registered, ok, err := swapstore.Get[swapstore.BoolValue](fx.store, fx.swapID, swapstore.TransactionRegistered, swapstore.LockTx)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, bool(registered))
}

func TestSendLockTx_RejectsUnexpectedFundingShape(t *testing.T) {
	fx := newSwapFixture(t)
	rpc := &fakeRPC{}
	d := fx.newDriver(rpc)

	contractScript := fx.contractScript(t)
	fundedTx := wire.NewMsgTx(wire.TxVersion)
	fundedTx.AddTxOut(wire.NewTxOut(fx.amount, contractScript))
	fundedTx.AddTxOut(wire.NewTxOut(1000, contractScript))
	fundedTx.AddTxOut(wire.NewTxOut(2000, contractScript)) // 3 outputs: HTLC + 2 "change"
	rpc.fundRes = &btcjson.FundRawTransactionResult{Transaction: fundedTx, ChangePosition: 1}

	_, err := d.SendLockTx()
	require.NoError(t, err)
	require.True(t, d.Pump())

	require.ErrorIs(t, d.Err(), ErrUnexpectedFundingShape)
}

func TestAddTxDetails_PublishesToPeer(t *testing.T) {
	fx := newSwapFixture(t)
	require.NoError(t, fx.store.Set(fx.swapID, swapstore.AtomicSwapExternalTxID, swapstore.LockTx, swapstore.StringValue(strings.Repeat("cd", 32)).Encode(), true))
	require.NoError(t, fx.store.Set(fx.swapID, swapstore.AtomicSwapExternalTxOutputIndex, swapstore.LockTx, swapstore.Uint32Value(1).Encode(), true))

	peer := &fakeCounterpart{}
	d := New(fx.swapID, fx.store, &fakeRPC{}, fx.cfg, fx.role, peer)

	require.NoError(t, d.AddTxDetails())
	require.Equal(t, fx.swapID, peer.publishedSwapID)
	require.Equal(t, p1Addr, peer.published.PeerAddress)
	require.Equal(t, strings.Repeat("cd", 32), peer.published.TxID)
	require.Equal(t, uint32(1), peer.published.OutputIndex)
}

func TestConfirmLockTx_GatesOnConfirmationThreshold(t *testing.T) {
	fx := newSwapFixture(t)
	txid := strings.Repeat("ab", 32)
	require.NoError(t, fx.store.Set(fx.swapID, swapstore.AtomicSwapExternalTxID, swapstore.LockTx, swapstore.StringValue(txid).Encode(), true))
	require.NoError(t, fx.store.Set(fx.swapID, swapstore.AtomicSwapExternalTxOutputIndex, swapstore.LockTx, swapstore.Uint32Value(0).Encode(), true))

	contractScript := fx.contractScript(t)
	scriptHex := hex.EncodeToString(contractScript)

	confirmations := int64(0)
	rpc := &fakeRPC{
		txOutFn: func() (*btcjson.GetTxOutResult, error) {
			return &btcjson.GetTxOutResult{
				Value:         float64(fx.amount) / SatoshiPerBitcoin,
				Confirmations: confirmations,
				ScriptPubKey:  btcjson.ScriptPubKeyResult{Hex: scriptHex},
			}, nil
		},
	}
	d := fx.newDriver(rpc)

	for c := int64(0); c < DefaultMinTxConfirmations; c++ {
		confirmations = c
		ready, err := d.ConfirmLockTx()
		require.NoError(t, err)
		require.False(t, ready)
		require.True(t, d.Pump())
	}

	// The last poll above observed DefaultMinTxConfirmations-1 confirmations.
	// One more poll cycle is needed to observe the threshold itself.
	confirmations = DefaultMinTxConfirmations
	ready, err := d.ConfirmLockTx()
	require.NoError(t, err)
	require.False(t, ready, "poll just issued, reply not yet pumped")
	require.True(t, d.Pump())

	ready, err = d.ConfirmLockTx()
	require.NoError(t, err)
	require.True(t, ready)
}

func TestConfirmLockTx_AbortsOnScriptMismatch(t *testing.T) {
	fx := newSwapFixture(t)
	txid := strings.Repeat("ab", 32)
	require.NoError(t, fx.store.Set(fx.swapID, swapstore.AtomicSwapExternalTxID, swapstore.LockTx, swapstore.StringValue(txid).Encode(), true))
	require.NoError(t, fx.store.Set(fx.swapID, swapstore.AtomicSwapExternalTxOutputIndex, swapstore.LockTx, swapstore.Uint32Value(0).Encode(), true))

	wrongScript := append([]byte(nil), fx.contractScript(t)...)
	wrongScript[0] ^= 0xff // flip a single byte

	rpc := &fakeRPC{
		txOutFn: func() (*btcjson.GetTxOutResult, error) {
			return &btcjson.GetTxOutResult{
				Value:         float64(fx.amount) / SatoshiPerBitcoin,
				Confirmations: 1,
				ScriptPubKey:  btcjson.ScriptPubKeyResult{Hex: hex.EncodeToString(wrongScript)},
			}, nil
		},
	}
	d := fx.newDriver(rpc)

	_, err := d.ConfirmLockTx()
	require.NoError(t, err)
	require.True(t, d.Pump())

	require.ErrorIs(t, d.Err(), ErrConsensusMismatch)

	_, err = d.ConfirmLockTx()
	require.ErrorIs(t, err, ErrConsensusMismatch)
}

func TestSendRefund_BuildsExpectedInputScript(t *testing.T) {
	fx := newSwapFixture(t)
	lockTxid := strings.Repeat("ab", 32)
	require.NoError(t, fx.store.Set(fx.swapID, swapstore.AtomicSwapExternalTxID, swapstore.LockTx, swapstore.StringValue(lockTxid).Encode(), true))
	require.NoError(t, fx.store.Set(fx.swapID, swapstore.AtomicSwapExternalTxOutputIndex, swapstore.LockTx, swapstore.Uint32Value(0).Encode(), true))

	wif, err := assembler.DecodeWIF(p1WIF)
	require.NoError(t, err)

	rpc := &fakeRPC{
		createFn: func(inputs []btcjson.TransactionInput, amounts map[btcutil.Address]btcutil.Amount, lockTime *int64) (*wire.MsgTx, error) {
			require.NotNil(t, lockTime)
			require.Equal(t, fx.locktime, *lockTime)
			hash, herr := chainhash.NewHashFromStr(inputs[0].Txid)
			require.NoError(t, herr)
			tx := wire.NewMsgTx(wire.TxVersion)
			tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(hash, inputs[0].Vout), nil, nil))
			for a, amt := range amounts {
				script, serr := txscript.PayToAddrScript(a)
				require.NoError(t, serr)
				tx.AddTxOut(wire.NewTxOut(int64(amt), script))
			}
			return tx, nil
		},
		wif: wif,
	}
	d := fx.newDriver(rpc)

	_, err = d.SendRefund()
	require.NoError(t, err)
	require.True(t, d.Pump()) // createrawtransaction completes, issues dumpprivkey
	require.True(t, d.Pump()) // dumpprivkey completes, signs locally, state -> Constructed

	signedHex, ok, err := swapstore.Get[swapstore.StringValue](fx.store, fx.swapID, swapstore.AtomicSwapExternalTx, swapstore.RefundTx)
	require.NoError(t, err)
	require.True(t, ok)

	signed, err := deserializeTxHex(string(signedHex))
	require.NoError(t, err)
	sigScript := signed.TxIn[0].SignatureScript
	require.Equal(t, byte(txscript.OP_0), sigScript[len(sigScript)-1])
}

func TestSendRedeem_BuildsExpectedInputScript(t *testing.T) {
	fx := newSwapFixture(t)
	lockTxid := strings.Repeat("ab", 32)
	require.NoError(t, fx.store.Set(fx.swapID, swapstore.AtomicSwapExternalTxID, swapstore.LockTx, swapstore.StringValue(lockTxid).Encode(), true))
	require.NoError(t, fx.store.Set(fx.swapID, swapstore.AtomicSwapExternalTxOutputIndex, swapstore.LockTx, swapstore.Uint32Value(0).Encode(), true))

	wif, err := assembler.DecodeWIF(p1WIF)
	require.NoError(t, err)

	rpc := &fakeRPC{
		createFn: func(inputs []btcjson.TransactionInput, amounts map[btcutil.Address]btcutil.Amount, lockTime *int64) (*wire.MsgTx, error) {
			require.Nil(t, lockTime, "redeem does not set a locktime")
			hash, herr := chainhash.NewHashFromStr(inputs[0].Txid)
			require.NoError(t, herr)
			tx := wire.NewMsgTx(wire.TxVersion)
			tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(hash, inputs[0].Vout), nil, nil))
			for a, amt := range amounts {
				script, serr := txscript.PayToAddrScript(a)
				require.NoError(t, serr)
				tx.AddTxOut(wire.NewTxOut(int64(amt), script))
			}
			return tx, nil
		},
		wif: wif,
	}
	d := fx.newDriver(rpc)

	_, err = d.SendRedeem()
	require.NoError(t, err)
	require.True(t, d.Pump())
	require.True(t, d.Pump())

	signedHex, ok, err := swapstore.Get[swapstore.StringValue](fx.store, fx.swapID, swapstore.AtomicSwapExternalTx, swapstore.RedeemTx)
	require.NoError(t, err)
	require.True(t, ok)

	signed, err := deserializeTxHex(string(signedHex))
	require.NoError(t, err)
	sigScript := signed.TxIn[0].SignatureScript
	require.Equal(t, byte(txscript.OP_1), sigScript[len(sigScript)-1])

	pushes, err := txscript.PushedData(sigScript[:len(sigScript)-1])
	require.NoError(t, err)
	require.Len(t, pushes, 3, "<sig> <pubkey> <secret>")
	require.Equal(t, fx.preimage[:], pushes[2])
}

func mustHash(t *testing.T, s string) *chainhash.Hash {
	t.Helper()
	h, err := chainhash.NewHashFromStr(s)
	require.NoError(t, err)
	return h
}
