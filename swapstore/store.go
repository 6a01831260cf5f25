package swapstore

import "fmt"

// ErrNotFound is returned by Store.Get when no value is persisted for the
// given (swapID, key, subTxId) triple.
var ErrNotFound = fmt.Errorf("swapstore: parameter not found")

// Store is the typed get/set facade described in §4.3 of the specification.
// Values are opaque byte strings; typed accessors below encode/decode them.
// The store is single-writer per swap but may back multiple concurrent
// swaps, so every operation is scoped by swapID.
type Store interface {
	// Get returns the raw bytes for (swapID, key, subTxId), or ErrNotFound.
	Get(swapID string, key TxParameterID, subTxId SubTxId) ([]byte, error)

	// Set persists raw bytes for (swapID, key, subTxId). When
	// persistImmediately is false the implementation MAY buffer the write;
	// the sqlite-backed implementation ignores the flag and always writes
	// through, since sqlite commits are already cheap relative to a
	// Bitcoin RPC round trip.
	Set(swapID string, key TxParameterID, subTxId SubTxId, value []byte, persistImmediately bool) error
}

// Get returns the typed value for key, and false if absent.
func Get[T Codec](s Store, swapID string, key TxParameterID, subTxId SubTxId) (T, bool, error) {
	var zero T
	raw, err := s.Get(swapID, key, subTxId)
	if err == ErrNotFound {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, err
	}
	v, decErr := zero.Decode(raw)
	if decErr != nil {
		return zero, false, decErr
	}
	return v.(T), true, nil
}

// GetMandatory returns the typed value for key, failing the caller's swap
// (via the returned error) if the parameter is absent.
func GetMandatory[T Codec](s Store, swapID string, key TxParameterID, subTxId SubTxId) (T, error) {
	v, ok, err := Get[T](s, swapID, key, subTxId)
	if err != nil {
		var zero T
		return zero, err
	}
	if !ok {
		var zero T
		return zero, fmt.Errorf("swapstore: mandatory parameter %d/%s missing for swap %s", key, subTxId, swapID)
	}
	return v, nil
}

// Set encodes and persists a typed value.
func Set[T Codec](s Store, swapID string, key TxParameterID, subTxId SubTxId, value T, persistImmediately bool) error {
	return s.Set(swapID, key, subTxId, value.Encode(), persistImmediately)
}

// Codec is implemented by every value type storable in the parameter store.
// Decode is called on the zero value of T and returns an `any` holding a T,
// since Go methods cannot be generic over their own receiver's type
// parameter.
type Codec interface {
	Encode() []byte
	Decode([]byte) (any, error)
}
