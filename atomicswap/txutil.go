package atomicswap

import (
	"bytes"
	"encoding/hex"

	"github.com/btcsuite/btcd/wire"
)

// serializeTxHex is the Go-idiomatic counterpart of the source's
// EncodeToHexString: every raw transaction this driver persists or hands
// to sendrawtransaction is cached as a hex string, matching how the
// spec's parameter store and §6 RPC surface both deal in hex.
func serializeTxHex(tx *wire.MsgTx) (string, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf.Bytes()), nil
}

func decodeHexScript(rawHex string) ([]byte, error) {
	return hex.DecodeString(rawHex)
}

func deserializeTxHex(rawHex string) (*wire.MsgTx, error) {
	raw, err := hex.DecodeString(rawHex)
	if err != nil {
		return nil, err
	}
	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return tx, nil
}
