// Package executor
package executor

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/guildkit/treasury-backend/wallet"
)

// TxResult is what a submitted transaction comes back with.
type TxResult struct {
	TxHash          string
	ContractAddress string
}

// ChainClient is the narrow surface the adapters need from the
// blockchain-side toolkit. The toolkit's own signing machinery stays behind
// this boundary; adapters only pass signer handles through.
type ChainClient interface {
	DeployERC20(ctx context.Context, signer *wallet.Signer, name, symbol string, initialSupply decimal.Decimal, decimals int) (*TxResult, error)
	PublishMoveToken(ctx context.Context, signer *wallet.Signer, name, symbol string, decimals int, monitorSupply bool) (*TxResult, error)
	DeployNFTCollection(ctx context.Context, signer *wallet.Signer, name, symbol string, maxSupply uint64, baseURI, mintPrice string) (*TxResult, error)
	MintNFT(ctx context.Context, signer *wallet.Signer, contractAddress, to string, tokenID uint64, metadataURI string) (*TxResult, error)
	Transfer(ctx context.Context, signer *wallet.Signer, to string, amount decimal.Decimal) (*TxResult, error)
}
