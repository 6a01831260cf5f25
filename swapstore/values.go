package swapstore

import (
	"encoding/binary"
	"fmt"
)

// StringValue stores a UTF-8 string (addresses, txids, raw tx hex).
type StringValue string

func (v StringValue) Encode() []byte { return []byte(v) }
func (StringValue) Decode(b []byte) (any, error) {
	return StringValue(b), nil
}

// Int64Value stores a signed 64-bit integer (amounts, timestamps).
type Int64Value int64

func (v Int64Value) Encode() []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	return b[:]
}
func (Int64Value) Decode(b []byte) (any, error) {
	if len(b) != 8 {
		return nil, fmt.Errorf("swapstore: Int64Value expects 8 bytes, got %d", len(b))
	}
	return Int64Value(int64(binary.BigEndian.Uint64(b))), nil
}

// Uint32Value stores an unsigned 32-bit integer (the lock output vout).
type Uint32Value uint32

func (v Uint32Value) Encode() []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	return b[:]
}
func (Uint32Value) Decode(b []byte) (any, error) {
	if len(b) != 4 {
		return nil, fmt.Errorf("swapstore: Uint32Value expects 4 bytes, got %d", len(b))
	}
	return Uint32Value(binary.BigEndian.Uint32(b)), nil
}

// BoolValue stores a boolean (TransactionRegistered).
type BoolValue bool

func (v BoolValue) Encode() []byte {
	if v {
		return []byte{1}
	}
	return []byte{0}
}
func (BoolValue) Decode(b []byte) (any, error) {
	if len(b) != 1 {
		return nil, fmt.Errorf("swapstore: BoolValue expects 1 byte, got %d", len(b))
	}
	return BoolValue(b[0] != 0), nil
}

// Bytes32Value stores a 32-byte opaque value (PreImage, PeerLockImage).
type Bytes32Value [32]byte

func (v Bytes32Value) Encode() []byte { return v[:] }
func (Bytes32Value) Decode(b []byte) (any, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("swapstore: Bytes32Value expects 32 bytes, got %d", len(b))
	}
	var v Bytes32Value
	copy(v[:], b)
	return v, nil
}

// StateValue stores a SwapTxState marker.
type StateValue SwapTxState

func (v StateValue) Encode() []byte { return []byte{byte(v)} }
func (StateValue) Decode(b []byte) (any, error) {
	if len(b) != 1 {
		return nil, fmt.Errorf("swapstore: StateValue expects 1 byte, got %d", len(b))
	}
	return StateValue(b[0]), nil
}

// SubTxIdValue stores a SubTxId marker (used for the transient SubTxIndex key).
type SubTxIdValue SubTxId

func (v SubTxIdValue) Encode() []byte { return []byte{byte(v)} }
func (SubTxIdValue) Decode(b []byte) (any, error) {
	if len(b) != 1 {
		return nil, fmt.Errorf("swapstore: SubTxIdValue expects 1 byte, got %d", len(b))
	}
	return SubTxIdValue(b[0]), nil
}
