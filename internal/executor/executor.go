package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog/log"

	"github.com/devlongs/flash-arb/pkg/types"
)

// ErrConfirmation is returned when a submitted transaction could not be
// confirmed in time. Its final state is unknown.
var ErrConfirmation = errors.New("transaction confirmation")

// Contract sends transactions to the arbitrage contract
type Contract interface {
	Transact(opts *bind.TransactOpts, method string, params ...interface{}) (*ethtypes.Transaction, error)
}

// Chain is the node surface needed to confirm and diagnose transactions
type Chain interface {
	bind.DeployBackend
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Params describes the deployed contract and the pair it trades
type Params struct {
	Address        common.Address
	BaseToken      common.Address
	QuoteToken     common.Address
	RouterA        common.Address
	RouterB        common.Address
	GasLimit       uint64
	ConfirmTimeout time.Duration
	ExplorerURL    string
}

// Executor submits flash-loan arbitrage transactions and waits for them
type Executor struct {
	contract Contract
	chain    Chain
	opts     *bind.TransactOpts
	params   Params
}

// New creates an executor. opts is used as a template and never mutated.
func New(contract Contract, chain Chain, opts *bind.TransactOpts, params Params) *Executor {
	return &Executor{
		contract: contract,
		chain:    chain,
		opts:     opts,
		params:   params,
	}
}

// NewBinding binds the arbitrage contract at address to a node backend
func NewBinding(address common.Address, backend bind.ContractBackend) *bind.BoundContract {
	return bind.NewBoundContract(address, arbitrageABI, backend, backend, backend)
}

// NewTransactor builds signing options from a hex private key
func NewTransactor(privateKeyHex string, chainID *big.Int) (*bind.TransactOpts, error) {
	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	opts, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	return opts, nil
}

// Routers returns the buy and sell routers for a direction
func (e *Executor) Routers(dir types.Direction) (buy, sell common.Address) {
	if dir == types.DirectionBToA {
		return e.params.RouterB, e.params.RouterA
	}
	return e.params.RouterA, e.params.RouterB
}

// Execute borrows amountIn of the base token and runs the round trip in
// direction dir. It blocks until the transaction is mined or the
// confirmation timeout expires. Nothing is retried.
func (e *Executor) Execute(ctx context.Context, dir types.Direction, amountIn *uint256.Int) (types.TradeOutcome, error) {
	buy, sell := e.Routers(dir)

	log.Info().
		Str("direction", dir.String()).
		Str("amountIn", amountIn.Dec()).
		Str("buyRouter", buy.Hex()).
		Str("sellRouter", sell.Hex()).
		Msg("Executing arbitrage")

	return e.send(ctx, methodExecute, e.params.BaseToken, amountIn.ToBig(), buy, sell, e.params.QuoteToken)
}

// Withdraw sweeps the contract's balance of token to the owner
func (e *Executor) Withdraw(ctx context.Context, token common.Address) (types.TradeOutcome, error) {
	log.Info().Str("token", token.Hex()).Msg("Withdrawing from contract")
	return e.send(ctx, methodWithdraw, token)
}

func (e *Executor) send(ctx context.Context, method string, params ...interface{}) (types.TradeOutcome, error) {
	var outcome types.TradeOutcome

	opts := *e.opts
	opts.Context = ctx
	opts.GasLimit = e.params.GasLimit

	tx, err := e.contract.Transact(&opts, method, params...)
	if err != nil {
		outcome.FailureReason = err.Error()
		return outcome, fmt.Errorf("%w: %s: %w", types.ErrSubmission, method, err)
	}
	outcome.Submitted = true
	outcome.TxHash = tx.Hash()

	event := log.Info().Str("txHash", tx.Hash().Hex()).Uint64("nonce", tx.Nonce())
	if e.params.ExplorerURL != "" {
		event = event.Str("explorer", e.params.ExplorerURL+"/tx/"+tx.Hash().Hex())
	}
	event.Msg("Transaction sent")

	waitCtx := ctx
	if e.params.ConfirmTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, e.params.ConfirmTimeout)
		defer cancel()
	}

	receipt, err := bind.WaitMined(waitCtx, e.chain, tx)
	if err != nil {
		outcome.FailureReason = err.Error()
		return outcome, fmt.Errorf("%w: tx %s: %w", ErrConfirmation, tx.Hash().Hex(), err)
	}
	outcome.GasUsed = receipt.GasUsed
	if receipt.BlockNumber != nil {
		outcome.ConfirmedBlock = receipt.BlockNumber.Uint64()
	}

	if receipt.Status == ethtypes.ReceiptStatusSuccessful {
		return outcome, nil
	}

	reason, revertErr := e.revertReason(ctx, &opts, tx, receipt)
	outcome.FailureReason = reason
	return outcome, fmt.Errorf("%w: tx %s", revertErr, tx.Hash().Hex())
}

// revertReason replays a failed transaction as a call at its block to
// recover the revert data the receipt does not carry.
func (e *Executor) revertReason(ctx context.Context, opts *bind.TransactOpts, tx *ethtypes.Transaction, receipt *ethtypes.Receipt) (string, error) {
	msg := ethereum.CallMsg{
		From:  opts.From,
		To:    tx.To(),
		Gas:   tx.Gas(),
		Value: tx.Value(),
		Data:  tx.Data(),
	}

	_, err := e.chain.CallContract(ctx, msg, receipt.BlockNumber)
	if err == nil {
		// State moved on since inclusion
		return "execution reverted", types.ErrOnChainRevert
	}

	return DecodeRevert(err)
}

// DecodeRevert classifies a call error carrying revert data. The returned
// error is one of types.ErrInsufficientProfit or types.ErrOnChainRevert.
func DecodeRevert(err error) (string, error) {
	data := revertData(err)

	if len(data) >= 4 {
		if bytes.Equal(data[:4], insufficientProfitID[:4]) {
			return errorNoProfit, fmt.Errorf("%w: %w", types.ErrOnChainRevert, types.ErrInsufficientProfit)
		}
		if reason, unpackErr := abi.UnpackRevert(data); unpackErr == nil {
			return "execution reverted: " + reason, types.ErrOnChainRevert
		}
	}

	if err != nil {
		return err.Error(), types.ErrOnChainRevert
	}
	return "execution reverted", types.ErrOnChainRevert
}

func revertData(err error) []byte {
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return nil
	}

	switch v := dataErr.ErrorData().(type) {
	case string:
		data, decodeErr := hexutil.Decode(v)
		if decodeErr != nil {
			return nil
		}
		return data
	case []byte:
		return v
	default:
		return nil
	}
}
