// Package rlpcodec provides the go-ethereum RLP encoding for consensus data.
package rlpcodec

import (
	"github.com/RobustRoundRobin/go-dpos/consensus/dpos"
	"github.com/RobustRoundRobin/go-dpos/secp256k1suite"
	"github.com/ethereum/go-ethereum/rlp"
)

// BytesCodec implements dpos.BytesCodec with rlp
type BytesCodec struct{}

func (bc *BytesCodec) EncodeToBytes(val interface{}) ([]byte, error) {
	return rlp.EncodeToBytes(val)
}

func (bc *BytesCodec) DecodeBytes(b []byte, val interface{}) error {
	return rlp.DecodeBytes(b, val)
}

// NewCodec returns a CipherCodec for the default secp256k1 suite with rlp
// encoding
func NewCodec() *dpos.CipherCodec {
	return dpos.NewCodec(secp256k1suite.NewCipherSuite(), &BytesCodec{})
}
