package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/stableswap-ng/pool-deployer/chain/evm"
)

// defaultReceiptTick matches the polling interval of bind.WaitMined.
const defaultReceiptTick = time.Second

type receiptReader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// newConfirmFunc returns a confirm function that polls client for the receipt every tick and
// gives up after timeout. from is used to replay a reverted transaction for its reason.
func newConfirmFunc(client evm.OnchainClient, from common.Address, tick, timeout time.Duration) evm.ConfirmFunc {
	return func(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
		if tx == nil {
			return nil, errors.New("no transaction to confirm")
		}

		waitCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		receipt, err := pollReceipt(waitCtx, tick, client, tx.Hash())
		if err != nil {
			return nil, fmt.Errorf("tx %s was not mined: %w", tx.Hash().Hex(), err)
		}

		return checkReceipt(waitCtx, client, from, tx, receipt)
	}
}

// pollReceipt asks for the receipt of hash until it is available or ctx is done. Lookup errors
// other than a cancelled context are treated as "not mined yet".
func pollReceipt(ctx context.Context, tick time.Duration, client receiptReader, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		if receipt, err := client.TransactionReceipt(ctx, hash); err == nil {
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// checkReceipt passes successful receipts through. For a reverted one the transaction is
// replayed at its block to recover the reason.
func checkReceipt(
	ctx context.Context, caller ContractCaller, from common.Address, tx *types.Transaction, receipt *types.Receipt,
) (*types.Receipt, error) {
	if receipt == nil {
		return nil, fmt.Errorf("no receipt for tx %s", tx.Hash().Hex())
	}
	if receipt.Status == types.ReceiptStatusSuccessful {
		return receipt, nil
	}

	call := ethereum.CallMsg{
		From:     from,
		To:       tx.To(),
		Data:     tx.Data(),
		Value:    tx.Value(),
		Gas:      tx.Gas(),
		GasPrice: tx.GasPrice(),
	}
	reason, err := replayForReason(ctx, caller, call, receipt.BlockNumber)
	if err != nil {
		return receipt, fmt.Errorf("tx %s reverted in block %s, reason unavailable: %w", tx.Hash().Hex(), receipt.BlockNumber, err)
	}

	return receipt, fmt.Errorf("tx %s reverted in block %s: %s", tx.Hash().Hex(), receipt.BlockNumber, reason)
}
