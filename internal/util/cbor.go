package util

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// canonicalEnc sorts map keys length-first (RFC 7049 canonical) and emits
// the shortest integer forms, so equal values always encode to equal bytes.
var canonicalEnc = mustEncMode(cbor.EncOptions{
	Sort:        cbor.SortCanonical,
	IndefLength: cbor.IndefLengthForbidden,
})

func mustEncMode(opts cbor.EncOptions) cbor.EncMode {
	em, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("cbor: invalid encoding options: %v", err))
	}
	return em
}

// MarshalCBOR encodes v in canonical form.
func MarshalCBOR(v any) ([]byte, error) {
	return canonicalEnc.Marshal(v)
}

// UnmarshalCBOR decodes data into v, rejecting trailing bytes.
func UnmarshalCBOR(data []byte, v any) error {
	rest, err := cbor.UnmarshalFirst(data, v)
	if err != nil {
		return err
	}
	if len(rest) > 0 {
		return fmt.Errorf("cbor: %d trailing bytes", len(rest))
	}
	return nil
}
