package secp256k1suite

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"math/big"
)

// Two implementations are provided:
// * github.com/btcsuite/btcd/btcec (pure go, the default)
// * github.com/ethereum/go-ethereum/crypto/secp256k1 (libsecp256k1 via cgo, build with -tags csecp)

// CipherSuite mirrors dpos.CipherSuite so this package does not depend on
// the consensus package.
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

const (
	// number of bits in a big.Word
	wordBits = 32 << (uint64(^big.Word(0)) >> 63)
	// number of bytes in a big.Word
	wordBytes = wordBits / 8
)

// readBits encodes the absolute value of bigint as big-endian bytes, filling
// buf from the right
func readBits(bigint *big.Int, buf []byte) {
	i := len(buf)
	for _, d := range bigint.Bits() {
		for j := 0; j < wordBytes && i > 0; j++ {
			i--
			buf[i] = byte(d)
			d >>= 8
		}
	}
}
