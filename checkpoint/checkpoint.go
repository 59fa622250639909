// Package checkpoint produces and verifies signed commitments to a tree
// root. A checkpoint is a COSE Sign1 message whose payload is the CBOR
// encoded tree state, so a holder of the signer's public key can anchor
// inclusion and sum proofs without trusting the store.
package checkpoint

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/veraison/go-cose"

	"github.com/forestrie/go-mssmt/codec"
)

// HeaderLabelCWTClaims is the protected header label carrying the CWT
// claims map (RFC 8392); claim key 1 is the issuer.
const HeaderLabelCWTClaims int64 = 15

const cwtClaimIssuer int64 = 1

var (
	ErrMalformedCheckpoint = errors.New("checkpoint: malformed checkpoint")
	ErrNoIssuer            = errors.New("checkpoint: no issuer claim")
)

// Checkpoint is a decoded, not necessarily verified, signed tree state.
// Call Verify before trusting State.
type Checkpoint struct {
	Sign1 *cose.Sign1Message
	State codec.TreeState
}

// Issuer returns the issuer claim from the protected headers.
func (c *Checkpoint) Issuer() (string, error) {
	claims, ok := c.Sign1.Headers.Protected[HeaderLabelCWTClaims]
	if !ok {
		return "", ErrNoIssuer
	}

	// Decoded messages carry the claims as map[any]any; locally built
	// ones as the map[int64]any they were constructed with.
	var claim any
	switch m := claims.(type) {
	case map[any]any:
		claim = m[cwtClaimIssuer]
	case map[int64]any:
		claim = m[cwtClaimIssuer]
	default:
		return "", ErrNoIssuer
	}

	issuer, ok := claim.(string)
	if !ok {
		return "", ErrNoIssuer
	}
	return issuer, nil
}

// Verify checks the signature over the embedded state. The external data
// must match what was supplied to Sign1.
func (c *Checkpoint) Verify(verifier cose.Verifier, external []byte) error {
	return c.Sign1.Verify(external, verifier)
}

// RootSigner produces signed checkpoints for tree states. The caller is
// responsible for only signing states whose sums it has checked against
// the previously signed state.
type RootSigner struct {
	issuer    string
	cborCodec codec.CBORCodec
}

// NewRootSigner returns a signer attributing checkpoints to issuer.
func NewRootSigner(issuer string, cborCodec codec.CBORCodec) RootSigner {
	return RootSigner{
		issuer:    issuer,
		cborCodec: cborCodec,
	}
}

// Sign1 signs the state and returns the encoded COSE Sign1 message. The
// key identifier is carried in the protected headers so a verifier can
// select the right public key; external, if present, is bound into the
// signature but not carried in the message.
func (rs RootSigner) Sign1(
	coseSigner cose.Signer, keyIdentifier []byte, state codec.TreeState,
	external []byte,
) ([]byte, error) {

	payload, err := rs.cborCodec.MarshalCBOR(state)
	if err != nil {
		return nil, err
	}

	msg := cose.Sign1Message{
		Headers: cose.Headers{
			Protected: cose.ProtectedHeader{
				cose.HeaderLabelAlgorithm: coseSigner.Algorithm(),
				cose.HeaderLabelKeyID:     keyIdentifier,
				HeaderLabelCWTClaims: map[int64]any{
					cwtClaimIssuer: rs.issuer,
				},
			},
		},
		Payload: payload,
	}
	if err := msg.Sign(rand.Reader, external, coseSigner); err != nil {
		return nil, err
	}
	return msg.MarshalCBOR()
}

// DecodeCheckpoint parses an encoded checkpoint and its embedded state
// without verifying the signature.
func DecodeCheckpoint(cborCodec codec.CBORCodec, message []byte) (*Checkpoint, error) {
	var msg cose.Sign1Message
	if err := msg.UnmarshalCBOR(message); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCheckpoint, err)
	}

	var state codec.TreeState
	if err := cborCodec.UnmarshalCBOR(msg.Payload, &state); err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrMalformedCheckpoint, err)
	}

	return &Checkpoint{Sign1: &msg, State: state}, nil
}

// VerifyCheckpoint decodes and verifies in one step, returning the
// checkpoint only when the signature holds.
func VerifyCheckpoint(
	cborCodec codec.CBORCodec, verifier cose.Verifier, message []byte,
	external []byte,
) (*Checkpoint, error) {

	ckpt, err := DecodeCheckpoint(cborCodec, message)
	if err != nil {
		return nil, err
	}
	if err := ckpt.Verify(verifier, external); err != nil {
		return nil, err
	}
	return ckpt, nil
}
