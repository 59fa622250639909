// Package codec defines the CBOR wire encoding for proofs and tree
// state. Encoding is core deterministic so that equal values always
// produce identical bytes; decoding is strict and rejects duplicate map
// keys and indefinite length items.
package codec

import (
	"errors"

	"github.com/fxamacker/cbor/v2"
)

var ErrInvalidRecord = errors.New("codec: invalid record")

// NewDeterministicEncOpts returns the encode options used for all wire
// records.
func NewDeterministicEncOpts() cbor.EncOptions {
	return cbor.CoreDetEncOptions()
}

// NewDeterministicDecOpts returns the decode options used for all wire
// records.
func NewDeterministicDecOpts() cbor.DecOptions {
	return cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
	}
}

// CBORCodec pairs an encode mode with a decode mode. The zero value is
// unusable; construct with NewCBORCodec.
type CBORCodec struct {
	encMode cbor.EncMode
	decMode cbor.DecMode
}

// NewCBORCodec builds a codec from the given options.
func NewCBORCodec(encOpts cbor.EncOptions, decOpts cbor.DecOptions) (CBORCodec, error) {
	encMode, err := encOpts.EncMode()
	if err != nil {
		return CBORCodec{}, err
	}
	decMode, err := decOpts.DecMode()
	if err != nil {
		return CBORCodec{}, err
	}
	return CBORCodec{encMode: encMode, decMode: decMode}, nil
}

// NewProofCodec returns the canonical codec for proof and state records.
func NewProofCodec() (CBORCodec, error) {
	return NewCBORCodec(NewDeterministicEncOpts(), NewDeterministicDecOpts())
}

// MarshalCBOR encodes v deterministically.
func (c CBORCodec) MarshalCBOR(v any) ([]byte, error) {
	return c.encMode.Marshal(v)
}

// UnmarshalCBOR decodes data into v.
func (c CBORCodec) UnmarshalCBOR(data []byte, v any) error {
	return c.decMode.Unmarshal(data, v)
}
