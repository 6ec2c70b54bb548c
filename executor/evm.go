// Package executor
package executor

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/kardiachain/go-kardia/lib/common"
	"github.com/kardiachain/go-kardia/rpc"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/guildkit/treasury-backend/utils"
	"github.com/guildkit/treasury-backend/wallet"
)

// CallMsg is the unsigned shape handed to the toolkit's signer. A nil To
// deploys a contract.
type CallMsg struct {
	To    *common.Address
	Value *big.Int
	Data  []byte
	Nonce uint64
}

// SignedTx is what the toolkit signer hands back. The key never crosses
// this boundary.
type SignedTx struct {
	Raw  string
	Hash string
}

// TxSigner signs on behalf of a member wallet. Implementations live in the
// wallet toolkit, next to the keys.
type TxSigner interface {
	SignTx(ctx context.Context, signer *wallet.Signer, call CallMsg) (*SignedTx, error)
}

type EVMConfig struct {
	URLs []string

	// Deploy bytecode per contract family, supplied by the contract
	// toolkit at bootstrap.
	ERC20Bytecode []byte
	NFTBytecode   []byte

	Signer TxSigner
	Logger *zap.Logger

	// ReceiptPoll controls how long Deploy* waits for a contract address.
	ReceiptPollInterval time.Duration
	ReceiptPollAttempts int
}

// EVMClient implements ChainClient against an EVM-compatible endpoint.
type EVMClient struct {
	clients []*rpc.Client
	cfg     EVMConfig
	logger  *zap.Logger
}

func NewEVMClient(cfg EVMConfig) (*EVMClient, error) {
	if len(cfg.URLs) == 0 {
		return nil, errors.New("no RPC URLs configured")
	}
	if cfg.Signer == nil {
		return nil, errors.New("no tx signer configured")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.ReceiptPollInterval <= 0 {
		cfg.ReceiptPollInterval = time.Second
	}
	if cfg.ReceiptPollAttempts <= 0 {
		cfg.ReceiptPollAttempts = 30
	}
	c := &EVMClient{cfg: cfg, logger: cfg.Logger}
	for _, url := range cfg.URLs {
		client, err := rpc.Dial(url)
		if err != nil {
			return nil, fmt.Errorf("cannot dial %s: %v", url, err)
		}
		c.clients = append(c.clients, client)
	}
	return c, nil
}

func (c *EVMClient) chooseClient() *rpc.Client {
	return c.clients[0]
}

// NonceAt returns the account nonce of the given account.
func (c *EVMClient) NonceAt(ctx context.Context, account string) (uint64, error) {
	var result uint64
	err := c.chooseClient().CallContext(ctx, &result, "account_nonce", common.HexToAddress(account))
	return result, err
}

func (c *EVMClient) sendRawTransaction(ctx context.Context, tx string) error {
	return c.chooseClient().CallContext(ctx, nil, "tx_sendRawTransaction", tx)
}

type txReceipt struct {
	ContractAddress string `json:"contractAddress"`
	Status          uint64 `json:"status"`
}

func (c *EVMClient) transactionReceipt(ctx context.Context, txHash string) (*txReceipt, error) {
	var r *txReceipt
	err := c.chooseClient().CallContext(ctx, &r, "tx_getTransactionReceipt", common.HexToHash(txHash))
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (c *EVMClient) submit(ctx context.Context, signer *wallet.Signer, call CallMsg) (*SignedTx, error) {
	nonce, err := c.NonceAt(ctx, signer.Address)
	if err != nil {
		return nil, err
	}
	call.Nonce = nonce
	signed, err := c.cfg.Signer.SignTx(ctx, signer, call)
	if err != nil {
		return nil, err
	}
	if err := c.sendRawTransaction(ctx, signed.Raw); err != nil {
		return nil, err
	}
	return signed, nil
}

// waitContractAddress polls the receipt until the deployed address shows up.
func (c *EVMClient) waitContractAddress(ctx context.Context, txHash string) (string, error) {
	for i := 0; i < c.cfg.ReceiptPollAttempts; i++ {
		r, err := c.transactionReceipt(ctx, txHash)
		if err == nil && r != nil && r.ContractAddress != "" {
			return r.ContractAddress, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.cfg.ReceiptPollInterval):
		}
	}
	return "", fmt.Errorf("no receipt for %s", txHash)
}

func (c *EVMClient) deploy(ctx context.Context, signer *wallet.Signer, bytecode []byte) (*TxResult, error) {
	if len(bytecode) == 0 {
		return nil, errors.New("no deploy bytecode configured")
	}
	signed, err := c.submit(ctx, signer, CallMsg{Data: bytecode, Value: big.NewInt(0)})
	if err != nil {
		return nil, err
	}
	addr, err := c.waitContractAddress(ctx, signed.Hash)
	if err != nil {
		return nil, err
	}
	return &TxResult{TxHash: signed.Hash, ContractAddress: addr}, nil
}

func (c *EVMClient) DeployERC20(ctx context.Context, signer *wallet.Signer, name, symbol string, initialSupply decimal.Decimal, decimals int) (*TxResult, error) {
	return c.deploy(ctx, signer, c.cfg.ERC20Bytecode)
}

// PublishMoveToken is not supported against an EVM endpoint; hosts that
// target a Move VM supply their own ChainClient.
func (c *EVMClient) PublishMoveToken(ctx context.Context, signer *wallet.Signer, name, symbol string, decimals int, monitorSupply bool) (*TxResult, error) {
	return nil, errors.New("move VM operations are not supported by an EVM endpoint")
}

func (c *EVMClient) DeployNFTCollection(ctx context.Context, signer *wallet.Signer, name, symbol string, maxSupply uint64, baseURI, mintPrice string) (*TxResult, error) {
	return c.deploy(ctx, signer, c.cfg.NFTBytecode)
}

func (c *EVMClient) MintNFT(ctx context.Context, signer *wallet.Signer, contractAddress, to string, tokenID uint64, metadataURI string) (*TxResult, error) {
	if !utils.IsValidAddress(contractAddress) {
		return nil, fmt.Errorf("invalid contract address %q", contractAddress)
	}
	if !utils.IsValidAddress(to) {
		return nil, fmt.Errorf("invalid recipient address %q", to)
	}
	contract := common.HexToAddress(contractAddress)
	// mint(address,uint256) packed by the contract toolkit would go in
	// Data; the selector is stable so it is assembled here.
	data := packMintCall(common.HexToAddress(to), tokenID)
	signed, err := c.submit(ctx, signer, CallMsg{To: &contract, Value: big.NewInt(0), Data: data})
	if err != nil {
		return nil, err
	}
	return &TxResult{TxHash: signed.Hash}, nil
}

// weiPerEther converts native-asset decimal strings to minor units.
var weiPerEther = decimal.New(1, 18)

func (c *EVMClient) Transfer(ctx context.Context, signer *wallet.Signer, to string, amount decimal.Decimal) (*TxResult, error) {
	if !utils.IsValidAddress(to) {
		return nil, fmt.Errorf("invalid recipient address %q", to)
	}
	dest := common.HexToAddress(to)
	value := amount.Mul(weiPerEther).BigInt()
	signed, err := c.submit(ctx, signer, CallMsg{To: &dest, Value: value})
	if err != nil {
		return nil, err
	}
	return &TxResult{TxHash: signed.Hash}, nil
}

// packMintCall assembles calldata for mint(address,uint256).
func packMintCall(to common.Address, tokenID uint64) []byte {
	// selector for mint(address,uint256)
	data := []byte{0x40, 0xc1, 0x0f, 0x19}
	var addrWord [32]byte
	copy(addrWord[12:], to.Bytes())
	data = append(data, addrWord[:]...)
	var idWord [32]byte
	new(big.Int).SetUint64(tokenID).FillBytes(idWord[:])
	data = append(data, idWord[:]...)
	return data
}
