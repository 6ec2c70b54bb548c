// Package executor
package executor

import (
	"context"
	"fmt"

	"github.com/guildkit/treasury-backend/types"
	"github.com/guildkit/treasury-backend/utils"
	"github.com/guildkit/treasury-backend/wallet"
)

type createERC20Token struct {
	chain ChainClient
}

func (a *createERC20Token) Tag() string {
	return types.OpCreateERC20Token
}

func (a *createERC20Token) Run(ctx context.Context, p *types.Proposal, registry wallet.Registry) (types.Receipt, error) {
	name, err := stringParam(p.Params, "name")
	if err != nil {
		return nil, err
	}
	symbol, err := stringParam(p.Params, "symbol")
	if err != nil {
		return nil, err
	}
	supplyStr, err := stringParam(p.Params, "initialSupply")
	if err != nil {
		return nil, err
	}
	supply, err := utils.ParseAmount(supplyStr)
	if err != nil {
		return nil, err
	}
	decimals, err := intParam(p.Params, "decimals", 18)
	if err != nil {
		return nil, err
	}

	signer, err := registry.Resolve(p.Proposer)
	if err != nil {
		return nil, err
	}
	res, err := a.chain.DeployERC20(ctx, signer, name, symbol, supply, decimals)
	if err != nil {
		return nil, err
	}
	return types.Receipt{
		"type":            "erc20Token",
		"name":            name,
		"symbol":          symbol,
		"initialSupply":   supplyStr,
		"decimals":        decimals,
		"transactionHash": res.TxHash,
		"contractAddress": res.ContractAddress,
	}, nil
}

type createMoveToken struct {
	chain ChainClient
}

func (a *createMoveToken) Tag() string {
	return types.OpCreateMoveToken
}

func (a *createMoveToken) Run(ctx context.Context, p *types.Proposal, registry wallet.Registry) (types.Receipt, error) {
	name, err := stringParam(p.Params, "name")
	if err != nil {
		return nil, err
	}
	symbol, err := stringParam(p.Params, "symbol")
	if err != nil {
		return nil, err
	}
	decimals, err := intParam(p.Params, "decimals", 8)
	if err != nil {
		return nil, err
	}
	monitorSupply := boolParam(p.Params, "monitorSupply", true)

	signer, err := registry.Resolve(p.Proposer)
	if err != nil {
		return nil, err
	}
	res, err := a.chain.PublishMoveToken(ctx, signer, name, symbol, decimals, monitorSupply)
	if err != nil {
		return nil, err
	}
	return types.Receipt{
		"type":            "moveToken",
		"name":            name,
		"symbol":          symbol,
		"decimals":        decimals,
		"monitorSupply":   monitorSupply,
		"transactionHash": res.TxHash,
		"contractAddress": res.ContractAddress,
	}, nil
}

type createNFTCollection struct {
	chain ChainClient
}

func (a *createNFTCollection) Tag() string {
	return types.OpCreateNFTCollection
}

func (a *createNFTCollection) Run(ctx context.Context, p *types.Proposal, registry wallet.Registry) (types.Receipt, error) {
	name, err := stringParam(p.Params, "name")
	if err != nil {
		return nil, err
	}
	symbol, err := stringParam(p.Params, "symbol")
	if err != nil {
		return nil, err
	}
	maxSupply, err := uintParam(p.Params, "maxSupply")
	if err != nil {
		return nil, err
	}
	baseURI := optionalStringParam(p.Params, "baseURI", "")
	mintPrice := optionalStringParam(p.Params, "mintPrice", "0")

	signer, err := registry.Resolve(p.Proposer)
	if err != nil {
		return nil, err
	}
	res, err := a.chain.DeployNFTCollection(ctx, signer, name, symbol, maxSupply, baseURI, mintPrice)
	if err != nil {
		return nil, err
	}
	return types.Receipt{
		"type":            "nftCollection",
		"name":            name,
		"symbol":          symbol,
		"maxSupply":       maxSupply,
		"baseURI":         baseURI,
		"mintPrice":       mintPrice,
		"transactionHash": res.TxHash,
		"contractAddress": res.ContractAddress,
	}, nil
}

type mintNFT struct {
	chain ChainClient
}

func (a *mintNFT) Tag() string {
	return types.OpMintNFT
}

func (a *mintNFT) Run(ctx context.Context, p *types.Proposal, registry wallet.Registry) (types.Receipt, error) {
	contractAddress, err := stringParam(p.Params, "contractAddress")
	if err != nil {
		return nil, err
	}
	to, err := stringParam(p.Params, "to")
	if err != nil {
		return nil, err
	}
	tokenID, err := uintParam(p.Params, "tokenId")
	if err != nil {
		return nil, err
	}
	metadataURI := optionalStringParam(p.Params, "metadataURI", "")

	signer, err := registry.Resolve(p.Proposer)
	if err != nil {
		return nil, err
	}
	res, err := a.chain.MintNFT(ctx, signer, contractAddress, to, tokenID, metadataURI)
	if err != nil {
		return nil, err
	}
	return types.Receipt{
		"type":            "nftMint",
		"contractAddress": contractAddress,
		"to":              to,
		"tokenId":         tokenID,
		"metadataURI":     metadataURI,
		"transactionHash": res.TxHash,
	}, nil
}

type transferETH struct {
	chain ChainClient
}

func (a *transferETH) Tag() string {
	return types.OpTransferETH
}

func (a *transferETH) Run(ctx context.Context, p *types.Proposal, registry wallet.Registry) (types.Receipt, error) {
	to, err := stringParam(p.Params, "to")
	if err != nil {
		return nil, err
	}
	amountStr, err := stringParam(p.Params, "amount")
	if err != nil {
		return nil, err
	}
	amount, err := utils.ParseAmount(amountStr)
	if err != nil {
		return nil, err
	}

	signer, err := registry.Resolve(p.Proposer)
	if err != nil {
		return nil, err
	}
	res, err := a.chain.Transfer(ctx, signer, to, amount)
	if err != nil {
		return nil, err
	}
	return types.Receipt{
		"type":            "transfer",
		"to":              to,
		"amount":          amountStr,
		"transactionHash": res.TxHash,
	}, nil
}

type batchPlayerRewards struct {
	chain ChainClient
}

func (a *batchPlayerRewards) Tag() string {
	return types.OpBatchPlayerRewards
}

// Run executes rewards one by one; a single bad item never aborts the rest.
// The call only fails when every item does.
func (a *batchPlayerRewards) Run(ctx context.Context, p *types.Proposal, registry wallet.Registry) (types.Receipt, error) {
	raw, ok := p.Params["rewards"]
	if !ok {
		return nil, fmt.Errorf("missing param %q", "rewards")
	}
	items, ok := raw.([]interface{})
	if !ok || len(items) == 0 {
		return nil, fmt.Errorf("param %q must be a non-empty list", "rewards")
	}

	signer, err := registry.Resolve(p.Proposer)
	if err != nil {
		return nil, err
	}

	var (
		results    []map[string]interface{}
		successful int
		failed     int
	)
	for i, rawItem := range items {
		item, ok := rawItem.(map[string]interface{})
		if !ok {
			failed++
			results = append(results, map[string]interface{}{
				"index": i, "status": "failed", "error": "malformed reward item",
			})
			continue
		}
		result := a.runItem(ctx, signer, item)
		result["index"] = i
		if result["status"] == "ok" {
			successful++
		} else {
			failed++
		}
		results = append(results, result)
	}

	receipt := types.Receipt{
		"type":           "batchRewards",
		"totalRequested": len(items),
		"successful":     successful,
		"failed":         failed,
		"items":          results,
	}
	if failed == len(items) {
		return nil, fmt.Errorf("all %d reward items failed", len(items))
	}
	return receipt, nil
}

func (a *batchPlayerRewards) runItem(ctx context.Context, signer *wallet.Signer, item map[string]interface{}) map[string]interface{} {
	recipient, err := stringParam(item, "recipient")
	if err != nil {
		return map[string]interface{}{"status": "failed", "error": err.Error()}
	}
	kind := optionalStringParam(item, "type", "token")
	switch kind {
	case "token":
		amountStr, err := stringParam(item, "amount")
		if err != nil {
			return map[string]interface{}{"recipient": recipient, "status": "failed", "error": err.Error()}
		}
		amount, err := utils.ParseAmount(amountStr)
		if err != nil {
			return map[string]interface{}{"recipient": recipient, "status": "failed", "error": err.Error()}
		}
		res, err := a.chain.Transfer(ctx, signer, recipient, amount)
		if err != nil {
			return map[string]interface{}{"recipient": recipient, "status": "failed", "error": err.Error()}
		}
		return map[string]interface{}{
			"recipient": recipient, "type": kind, "status": "ok", "transactionHash": res.TxHash,
		}
	case "nft":
		contractAddress, err := stringParam(item, "contractAddress")
		if err != nil {
			return map[string]interface{}{"recipient": recipient, "status": "failed", "error": err.Error()}
		}
		tokenID, err := uintParam(item, "tokenId")
		if err != nil {
			return map[string]interface{}{"recipient": recipient, "status": "failed", "error": err.Error()}
		}
		res, err := a.chain.MintNFT(ctx, signer, contractAddress, recipient, tokenID, optionalStringParam(item, "metadataURI", ""))
		if err != nil {
			return map[string]interface{}{"recipient": recipient, "status": "failed", "error": err.Error()}
		}
		return map[string]interface{}{
			"recipient": recipient, "type": kind, "status": "ok", "transactionHash": res.TxHash,
		}
	default:
		return map[string]interface{}{"recipient": recipient, "status": "failed", "error": fmt.Sprintf("unknown reward type %q", kind)}
	}
}

// emergencyStop carries no chain call; the coordinator suspends the group
// once the proposal executes.
type emergencyStop struct{}

func (a *emergencyStop) Tag() string {
	return types.OpEmergencyStop
}

func (a *emergencyStop) Run(ctx context.Context, p *types.Proposal, registry wallet.Registry) (types.Receipt, error) {
	return types.Receipt{
		"type":    "emergencyStop",
		"groupId": p.GroupID,
	}, nil
}
