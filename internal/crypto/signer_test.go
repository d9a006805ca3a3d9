package crypto

import (
	"encoding/hex"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Throwaway key, publicly known (hardhat account #0).
const (
	testKey     = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

func testSigner(t *testing.T) *Signer {
	t.Helper()
	s, err := NewSigner(testKey, 137)
	require.NoError(t, err)
	return s
}

func TestNewSigner_DerivesAddress(t *testing.T) {
	s := testSigner(t)
	assert.Equal(t, common.HexToAddress(testAddress), s.Address())
}

func TestNewSigner_AcceptsHexPrefix(t *testing.T) {
	s, err := NewSigner("0x"+testKey, 137)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(testAddress), s.Address())
}

func TestNewSigner_RejectsGarbage(t *testing.T) {
	_, err := NewSigner("not-a-key", 137)
	require.Error(t, err)
}

// recoverSigner decodes a 65-byte hex signature and recovers the address
// that signed the given digest.
func recoverSigner(t *testing.T, digest []byte, sigHex string) common.Address {
	t.Helper()
	require.True(t, strings.HasPrefix(sigHex, "0x"))
	sig, err := hex.DecodeString(sigHex[2:])
	require.NoError(t, err)
	require.Len(t, sig, 65)
	require.Contains(t, []byte{27, 28}, sig[64], "v must be normalized to 27/28")

	sig[64] -= 27
	pub, err := ethcrypto.SigToPub(digest, sig)
	require.NoError(t, err)
	return ethcrypto.PubkeyToAddress(*pub)
}

func TestSignAuthMessage_RecoversToSigner(t *testing.T) {
	s := testSigner(t)

	sig, err := s.SignAuthMessage(testAddress, 1700000000, 0)
	require.NoError(t, err)

	structHash := ethcrypto.Keccak256(concatBytes(
		clobAuthTypeHash,
		common.LeftPadBytes(common.HexToAddress(testAddress).Bytes(), 32),
		bigIntTo32Bytes(big.NewInt(1700000000)),
		bigIntTo32Bytes(big.NewInt(0)),
	))
	digest := eip712Hash(s.authDomain, structHash)

	assert.Equal(t, s.Address(), recoverSigner(t, digest, sig))
}

func TestSignAuthMessage_Deterministic(t *testing.T) {
	s := testSigner(t)

	a, err := s.SignAuthMessage(testAddress, 1700000000, 0)
	require.NoError(t, err)
	b, err := s.SignAuthMessage(testAddress, 1700000000, 0)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := s.SignAuthMessage(testAddress, 1700000001, 0)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func testOrder() OrderPayload {
	return OrderPayload{
		Salt:          "12345",
		Maker:         testAddress,
		Signer:        testAddress,
		Taker:         "0x0000000000000000000000000000000000000000",
		TokenID:       "71321045679252212594626385532706912750332728571942532289631379312455583992563",
		MakerAmount:   "5000000",
		TakerAmount:   "10000000",
		Expiration:    "0",
		Nonce:         "0",
		FeeRateBps:    "0",
		Side:          0,
		SignatureType: 2,
	}
}

func TestSignOrder_RecoversToSigner(t *testing.T) {
	s := testSigner(t)

	sig, err := s.SignOrder(testOrder())
	require.NoError(t, err)

	structHash, err := orderStructHash(testOrder())
	require.NoError(t, err)
	digest := eip712Hash(s.orderDomain, structHash)

	assert.Equal(t, s.Address(), recoverSigner(t, digest, sig))
}

func TestSignOrder_OrderDomainDiffersFromAuthDomain(t *testing.T) {
	s := testSigner(t)
	assert.NotEqual(t, s.authDomain, s.orderDomain)
}

func TestSignOrder_RejectsNonNumericField(t *testing.T) {
	order := testOrder()
	order.MakerAmount = "5.5"
	_, err := testSigner(t).SignOrder(order)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "makerAmount")
}

func TestOrderStructHash_SensitiveToSide(t *testing.T) {
	buy := testOrder()
	sell := testOrder()
	sell.Side = 1

	hb, err := orderStructHash(buy)
	require.NoError(t, err)
	hs, err := orderStructHash(sell)
	require.NoError(t, err)
	assert.NotEqual(t, hb, hs)
}
