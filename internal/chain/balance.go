// Package chain reads on-chain state needed by the pipeline. Today that is
// one thing: the operator's USDC balance on Polygon.
package chain

import (
	"context"
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/alanyoungcy/polycopy/internal/domain"
)

// usdcDecimals is fixed at 6 for both USDC and USDC.e on Polygon.
const usdcDecimals = 6

// BalanceReader implements domain.BalanceSource by calling balanceOf on the
// USDC contract over JSON-RPC.
type BalanceReader struct {
	client   *ethclient.Client
	contract common.Address
	selector []byte // first 4 bytes of keccak256("balanceOf(address)")
}

// NewBalanceReader dials the RPC endpoint and returns a reader bound to the
// given USDC contract address.
func NewBalanceReader(ctx context.Context, rpcURL, usdcContract string) (*BalanceReader, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", rpcURL, err)
	}

	return &BalanceReader{
		client:   client,
		contract: common.HexToAddress(usdcContract),
		selector: crypto.Keccak256([]byte("balanceOf(address)"))[:4],
	}, nil
}

// QuoteBalance returns the wallet's USDC balance in whole dollars.
func (r *BalanceReader) QuoteBalance(ctx context.Context, address string) (float64, error) {
	data := make([]byte, 0, 36)
	data = append(data, r.selector...)
	data = append(data, common.LeftPadBytes(common.HexToAddress(address).Bytes(), 32)...)

	msg := ethereum.CallMsg{
		To:   &r.contract,
		Data: data,
	}
	out, err := r.client.CallContract(ctx, msg, nil)
	if err != nil {
		return 0, fmt.Errorf("chain: balanceOf %s: %w", address, err)
	}
	if len(out) < 32 {
		return 0, fmt.Errorf("chain: balanceOf %s: short return data (%d bytes)", address, len(out))
	}

	raw := new(big.Int).SetBytes(out[:32])
	units := new(big.Float).SetInt(raw)
	scale := new(big.Float).SetFloat64(math.Pow10(usdcDecimals))

	balance, _ := new(big.Float).Quo(units, scale).Float64()
	return balance, nil
}

// Close releases the underlying RPC connection.
func (r *BalanceReader) Close() {
	r.client.Close()
}

// Compile-time interface check.
var _ domain.BalanceSource = (*BalanceReader)(nil)
