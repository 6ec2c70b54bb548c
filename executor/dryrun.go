// Package executor
package executor

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/guildkit/treasury-backend/wallet"
)

// DryRunClient implements ChainClient without touching a chain. Every call
// succeeds and returns a fabricated transaction hash. Useful for demos and
// for exercising the coordination flow before the signing toolkit is wired.
type DryRunClient struct {
	logger *zap.Logger
}

func NewDryRunClient(logger *zap.Logger) *DryRunClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DryRunClient{logger: logger}
}

func (c *DryRunClient) result(action string, fields ...zap.Field) *TxResult {
	hash := make([]byte, 32)
	_, _ = rand.Read(hash)
	addr := make([]byte, 20)
	_, _ = rand.Read(addr)
	c.logger.Info("dry-run "+action, fields...)
	return &TxResult{
		TxHash:          "0x" + hex.EncodeToString(hash),
		ContractAddress: "0x" + hex.EncodeToString(addr),
	}
}

func (c *DryRunClient) DeployERC20(ctx context.Context, signer *wallet.Signer, name, symbol string, initialSupply decimal.Decimal, decimals int) (*TxResult, error) {
	return c.result("deployERC20",
		zap.String("name", name),
		zap.String("symbol", symbol),
		zap.String("supply", initialSupply.String())), nil
}

func (c *DryRunClient) PublishMoveToken(ctx context.Context, signer *wallet.Signer, name, symbol string, decimals int, monitorSupply bool) (*TxResult, error) {
	return c.result("publishMoveToken",
		zap.String("name", name),
		zap.String("symbol", symbol)), nil
}

func (c *DryRunClient) DeployNFTCollection(ctx context.Context, signer *wallet.Signer, name, symbol string, maxSupply uint64, baseURI, mintPrice string) (*TxResult, error) {
	return c.result("deployNFTCollection",
		zap.String("name", name),
		zap.Uint64("maxSupply", maxSupply)), nil
}

func (c *DryRunClient) MintNFT(ctx context.Context, signer *wallet.Signer, contractAddress, to string, tokenID uint64, metadataURI string) (*TxResult, error) {
	return c.result("mintNFT",
		zap.String("contract", contractAddress),
		zap.String("to", to),
		zap.Uint64("tokenId", tokenID)), nil
}

func (c *DryRunClient) Transfer(ctx context.Context, signer *wallet.Signer, to string, amount decimal.Decimal) (*TxResult, error) {
	return c.result("transfer",
		zap.String("to", to),
		zap.String("amount", amount.String())), nil
}
