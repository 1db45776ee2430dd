package dpos

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
)

const (
	AddressLength = 20
	HashLen       = 32

	// PubLen is the length of an uncompressed secp256k1 public key
	PubLen = 65
)

var (
	errPubLen       = fmt.Errorf("raw pubkey must be %d bytes long", PubLen)
	errPubNotOnCurv = errors.New("invalid secp256k1 curve point")
)

// Hash is a hash. We always work with Keccak256 (draft sha3)
type Hash [32]byte

// Address is the ethereum style right most 20 bytes of Keccak256 (pub.X || pub.Y )
type Address [20]byte

// CipherSuite abstracts the cryptographic primitives the consensus needs.
// Implementations are assumed to be EC secp256k1 + draft sha3 (see the
// secp256k1suite package)
type CipherSuite interface {
	Curve() elliptic.Curve

	// Keccak256 returns a digest suitable for Sign. (draft sha3 before the padding was added)
	Keccak256(b ...[]byte) []byte

	// Sign is given a digest to sign.
	Sign(digest []byte, key *ecdsa.PrivateKey) ([]byte, error)

	// VerifySignature verifies a 64 byte [R || S] signature
	VerifySignature(pub, digest, sig []byte) bool

	// Ecrecover a public key from a recoverable signature.
	Ecrecover(digest, sig []byte) ([]byte, error)
}

// PubMarshal converts public ecdsa key into the uncompressed form specified in section 4.3.6 of ANSI X9.62
func PubMarshal(c CipherSuite, pub *ecdsa.PublicKey) []byte {
	if pub == nil || pub.X == nil || pub.Y == nil {
		return nil
	}
	return elliptic.Marshal(c.Curve(), pub.X, pub.Y)
}

// Keccak256Hash hashes a variable number of byte slices and returns a Hash
func Keccak256Hash(c CipherSuite, b ...[]byte) Hash {
	h := Hash{}
	copy(h[:], c.Keccak256(b...))
	return h
}

// NodeIDFromPubBytes gets a node id from the bytes of an ecdsa public key.
// The NodeID is Keccak256 (Pub.X || Pub.Y )
func NodeIDFromPubBytes(c CipherSuite, pub []byte) (Hash, error) {
	if len(pub) != PubLen {
		return Hash{}, errPubLen
	}
	h := Hash{}
	copy(h[:], c.Keccak256(pub[1:]))
	return h, nil
}

// NodeIDFromPub gets a node id from an ecdsa pub key
func NodeIDFromPub(c CipherSuite, pub *ecdsa.PublicKey) Hash {
	id, _ := NodeIDFromPubBytes(c, PubMarshal(c, pub))
	return id
}

// BytesToPublic re-builds the public key from its uncompressed encoding.
// Per 2.3.4 sec1-v2 for uncompresed representation "otherwise the leftmost
// octet of the octetstring is removed"
func BytesToPublic(c CipherSuite, b []byte) (*ecdsa.PublicKey, error) {

	if len(b) != PubLen {
		return nil, errPubLen
	}

	pub := &ecdsa.PublicKey{Curve: c.Curve(), X: new(big.Int), Y: new(big.Int)}
	pub.X.SetBytes(b[1 : 1+32])
	pub.Y.SetBytes(b[1+32 : 1+64])
	if !pub.Curve.IsOnCurve(pub.X, pub.Y) {
		return nil, errPubNotOnCurv
	}
	return pub, nil
}

// VerifyNodeSig verifies if sig over digest was produced using the
// private key corresponding to nodeID. We EC recover the public key from the
// digest and the signature and then compare the hash of the recovered public
// key with the node ID.
func VerifyNodeSig(c CipherSuite, nodeID Hash, digest, sig []byte) bool {

	recoveredPub, err := c.Ecrecover(digest, sig)
	if err != nil || len(recoveredPub) != PubLen {
		return false
	}
	return bytes.Equal(nodeID[:], c.Keccak256(recoveredPub[1:PubLen]))
}

// Address gets an address from a hash
func (h Hash) Address() Address {
	a := Address{}
	copy(a[:], h[12:])
	return a
}

// IsZero is true for the unset hash
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// Hex gets the hex string of the Hash
func (h Hash) Hex() string {
	return hex.EncodeToString(h[:])
}

// Hex gets the hex string for the Address
func (a Address) Hex() string {
	return hex.EncodeToString(a[:])
}

// Hex2Hash decodes a hex string, with or without 0x, into a Hash. Over long
// inputs keep the right most bytes.
func Hex2Hash(s string) (Hash, error) {
	h := Hash{}
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, err
	}
	if len(b) > len(h) {
		b = b[len(b)-HashLen:]
	}
	copy(h[HashLen-len(b):], b)
	return h, nil
}

// abreviated addresses, so we can more densly report node identities in logs

// HexShort returns an abbreviated hex address
func (a Address) HexShort() string {
	return fmtAddrex(a, 3, 2)
}

// HexShort returns the abbreviated address form of a node id
func (h Hash) HexShort() string {
	return fmtAddrex(h.Address(), 3, 2)
}

// return the hex string formed from the first head 'h' bytes, and last tail 't' bytes as hex,
// formatted with a single '.'.
func fmtAddrex(addr Address, h, t int) string {

	x := addr.Hex()

	if h < 1 && t < 1 {
		return ""
	}
	if h < 0 {
		h = 0
	}
	if h > len(x) {
		h = len(x)
	}
	if t < 0 {
		t = 0
	}

	// give precedence to the head length
	if len(x)-h < t {
		t = len(x) - h
	}

	return fmt.Sprintf("%s.%s", x[:h], x[len(x)-t:])
}
