// Package chain submits storage deposits to the settlement ledger and reads
// the gateway's account state. One Client holds one signing identity; all
// deposit transactions from the gateway are signed by it.
package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/aloksahay/fairbnb-sub000/config"
	"github.com/aloksahay/fairbnb-sub000/merkle"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// flowABI is the fragment of the flow contract the gateway calls. submit
// commits a Merkle root and payload length and carries the storage endowment
// as the transaction value.
const flowABI = `[{"inputs":[{"internalType":"bytes32","name":"root","type":"bytes32"},{"internalType":"uint64","name":"length","type":"uint64"}],"name":"submit","outputs":[],"stateMutability":"payable","type":"function"}]`

// submitGasLimit is the gas limit for a deposit transaction.
const submitGasLimit = 500000

// A Client signs and submits deposit transactions on the settlement ledger.
type Client struct {
	ec  *ethclient.Client
	log *zap.Logger

	priv    *ecdsa.PrivateKey
	address common.Address
	flow    common.Address
	chainID *big.Int
	price   *big.Int
	abi     abi.ABI

	// mu serializes nonce acquisition, signing and broadcast. Everything
	// else on the client is safe for concurrent use.
	mu sync.Mutex
}

// ParseKey parses a hex-encoded secp256k1 private key and returns it with
// its derived ledger address. The 0x prefix is optional.
func ParseKey(s string) (*ecdsa.PrivateKey, common.Address, error) {
	priv, err := crypto.HexToECDSA(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("failed to parse private key: %w", err)
	}
	return priv, crypto.PubkeyToAddress(priv.PublicKey), nil
}

// Dial connects to the settlement ledger, derives the signing identity, and
// fetches the chain ID used for transaction signing.
func Dial(ctx context.Context, cfg config.Chain, log *zap.Logger) (*Client, error) {
	priv, address, err := ParseKey(cfg.PrivateKey)
	if err != nil {
		return nil, err
	} else if !common.IsHexAddress(cfg.FlowContract) {
		return nil, fmt.Errorf("invalid flow contract address %q", cfg.FlowContract)
	}

	parsed, err := abi.JSON(strings.NewReader(flowABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse flow abi: %w", err)
	}

	ec, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial ledger: %w", err)
	}
	chainID, err := ec.ChainID(ctx)
	if err != nil {
		ec.Close()
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}

	return &Client{
		ec:  ec,
		log: log,

		priv:    priv,
		address: address,
		flow:    common.HexToAddress(cfg.FlowContract),
		chainID: chainID,
		price:   new(big.Int).SetUint64(cfg.PricePerByte),
		abi:     parsed,
	}, nil
}

// Address returns the ledger address of the signing identity.
func (c *Client) Address() common.Address {
	return c.address
}

// Close closes the ledger connection.
func (c *Client) Close() error {
	c.ec.Close()
	return nil
}

// SubmitDeposit submits a storage deposit for the payload addressed by root
// and returns the transaction hash. The nonce is acquired, the transaction
// signed, and the broadcast made under the client mutex so concurrent
// deposits from the same identity cannot reuse a nonce.
func (c *Client) SubmitDeposit(ctx context.Context, root merkle.Root, length uint64) (string, error) {
	calldata, err := c.abi.Pack("submit", [32]byte(root), length)
	if err != nil {
		return "", fmt.Errorf("failed to pack calldata: %w", err)
	}
	value := new(big.Int).Mul(c.price, new(big.Int).SetUint64(length))

	c.mu.Lock()
	defer c.mu.Unlock()

	nonce, err := c.ec.PendingNonceAt(ctx, c.address)
	if err != nil {
		return "", fmt.Errorf("failed to get nonce: %w", err)
	}
	gasPrice, err := c.ec.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get gas price: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &c.flow,
		Value:    value,
		Gas:      submitGasLimit,
		GasPrice: gasPrice,
		Data:     calldata,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.priv)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}
	if err := c.ec.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("failed to send transaction: %w", err)
	}

	c.log.Debug("submitted deposit",
		zap.Stringer("root", root),
		zap.Uint64("length", length),
		zap.String("value", value.String()),
		zap.String("tx", signed.Hash().Hex()))
	return signed.Hash().Hex(), nil
}

// Balance returns the signing identity's ledger balance in wei.
func (c *Client) Balance(ctx context.Context) (*big.Int, error) {
	balance, err := c.ec.BalanceAt(ctx, c.address, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

// Height returns the current ledger height.
func (c *Client) Height(ctx context.Context) (uint64, error) {
	height, err := c.ec.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get height: %w", err)
	}
	return height, nil
}
