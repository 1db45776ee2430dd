// +build !csecp

package secp256k1suite

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSmallS(t *testing.T) {
	half := new(big.Int).Rsh(new(big.Int).SetBytes(N()), 1)
	assert.True(t, SmallS(half))
	assert.False(t, SmallS(new(big.Int).Add(half, big.NewInt(2))))
}

func TestBTECSigRoundTrip(t *testing.T) {
	rsv := make([]byte, 65)
	for i := range rsv {
		rsv[i] = byte(i)
	}
	rsv[64] = 1
	vrs := ToBTECSig(rsv)
	assert.Equal(t, byte(28), vrs[0])
	FromBTECSig(vrs)
	assert.Equal(t, rsv, vrs)
}
