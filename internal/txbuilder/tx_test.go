package txbuilder

import (
	"math/big"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/dyluth/thinktank/internal/capability"
)

func TestSigningHash_MatchesEIP155Signer(t *testing.T) {
	u := &UnsignedTx{
		To:       common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Nonce:    0,
		GasLimit: 1_000_000,
		GasPrice: big.NewInt(1_000_000),
		Value:    new(big.Int),
		Data:     []byte{0xde, 0xad, 0xbe, 0xef},
		ChainID:  big.NewInt(84532),
	}

	got, err := u.SigningHash()
	require.NoError(t, err)

	tx := types.NewTransaction(u.Nonce, u.To, u.Value, u.GasLimit, u.GasPrice, u.Data)
	want := types.NewEIP155Signer(u.ChainID).Hash(tx)
	assert.Equal(t, want, got)
}

func TestSigningHash_RequiresChainID(t *testing.T) {
	_, err := (&UnsignedTx{}).SigningHash()
	assert.Error(t, err)
}

func TestEIP155V_BaseSepoliaScenario(t *testing.T) {
	chainID := big.NewInt(84532)

	v, err := EIP155V(1, chainID)
	require.NoError(t, err)
	assert.Equal(t, int64(28+84532*2+8), v.Int64())

	legacy, err := EIP155V(28, chainID)
	require.NoError(t, err)
	assert.Equal(t, v, legacy)

	zero, err := EIP155V(0, chainID)
	require.NoError(t, err)
	assert.Equal(t, int64(84532*2+35), zero.Int64())
}

func TestEIP155V_InvalidRecovery(t *testing.T) {
	for _, v0 := range []byte{2, 26, 29, 255} {
		_, err := EIP155V(v0, big.NewInt(1))
		assert.Error(t, err, "v0=%d", v0)
	}
}

func TestEIP155V_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		chainID := new(big.Int).SetUint64(rapid.Uint64Range(1, 1<<40).Draw(t, "chainID"))
		v0 := rapid.SampledFrom([]byte{0, 1, 27, 28}).Draw(t, "v0")

		v, err := EIP155V(v0, chainID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		offset := new(big.Int).Sub(v, new(big.Int).Mul(chainID, big.NewInt(2)))
		if offset.Int64() != 35 && offset.Int64() != 36 {
			t.Fatalf("v - 2*chainID = %s, want 35 or 36", offset)
		}
	})
}

func TestCanonicalize_PadsShortComponents(t *testing.T) {
	canon, err := canonicalize(capability.Signature{R: []byte{0x01, 0x02}, S: []byte{0x03}, V: 27})
	require.NoError(t, err)

	assert.Equal(t, byte(0x01), canon.R[30])
	assert.Equal(t, byte(0x02), canon.R[31])
	assert.Equal(t, make([]byte, 30), canon.R[:30])
	assert.Equal(t, byte(0x03), canon.S[31])
	assert.Equal(t, byte(0), canon.RecID)
}

func TestCanonicalize_FlipsHighS(t *testing.T) {
	n := btcec.S256().Params().N
	highS := new(big.Int).Sub(n, big.NewInt(5))

	canon, err := canonicalize(capability.Signature{R: []byte{0x01}, S: highS.Bytes(), V: 0})
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(5), new(big.Int).SetBytes(canon.S[:]))
	assert.Equal(t, byte(1), canon.RecID)
}

func TestCanonicalize_Rejects(t *testing.T) {
	n := btcec.S256().Params().N

	tests := []struct {
		name string
		sig  capability.Signature
	}{
		{"empty r", capability.Signature{S: []byte{1}}},
		{"long s", capability.Signature{R: []byte{1}, S: make([]byte, 33)}},
		{"zero s", capability.Signature{R: []byte{1}, S: []byte{0}}},
		{"r equals n", capability.Signature{R: n.Bytes(), S: []byte{1}}},
		{"bad v", capability.Signature{R: []byte{1}, S: []byte{1}, V: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := canonicalize(tt.sig)
			assert.Error(t, err)
		})
	}
}

func TestCanonicalize_AlwaysThirtyTwoBytes(t *testing.T) {
	n := btcec.S256().Params().N
	rapid.Check(t, func(t *rapid.T) {
		rLen := rapid.IntRange(1, 32).Draw(t, "rLen")
		sLen := rapid.IntRange(1, 32).Draw(t, "sLen")
		r := rapid.SliceOfN(rapid.Byte(), rLen, rLen).Draw(t, "r")
		s := rapid.SliceOfN(rapid.Byte(), sLen, sLen).Draw(t, "s")
		r[0] |= 0x01
		s[0] |= 0x01

		rb, sb := new(big.Int).SetBytes(r), new(big.Int).SetBytes(s)
		if rb.Cmp(n) >= 0 || sb.Cmp(n) >= 0 {
			t.Skip("component above curve order")
		}

		canon, err := canonicalize(capability.Signature{R: r, S: s, V: 0})
		if err != nil {
			t.Fatalf("canonicalize: %v", err)
		}
		if new(big.Int).SetBytes(canon.R[:]).Cmp(rb) != 0 {
			t.Fatalf("r changed value")
		}
		if new(big.Int).SetBytes(canon.S[:]).Cmp(new(big.Int).Rsh(n, 1)) > 0 {
			t.Fatalf("s not in lower half")
		}
	})
}
