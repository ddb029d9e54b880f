package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"math/rand/v2"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/go-resty/resty/v2"

	"github.com/stableswap-ng/pool-deployer/chain/evm"
	"github.com/stableswap-ng/pool-deployer/pkg/logger"
)

// forkFunding is the balance an impersonated sender is topped up to before each transaction.
var forkFunding = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// anvilClient operates the methods exposed by the Anvil node related to forking.
// For more information, see https://book.getfoundry.sh/reference/anvil/#custom-methods.
type anvilClient struct {
	url    string
	client *resty.Client
}

// newAnvilForkClient creates a new client that can utilize Anvil's forking capabilities.
func newAnvilForkClient(url string, timeout time.Duration, debug bool) *anvilClient {
	return &anvilClient{
		url: url,
		client: resty.New().
			SetDebug(debug).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
	}
}

// SendTransaction sends a transaction from an impersonated account, ensuring it is funded, and
// returns its hash. The node must run with --auto-impersonate so no signature is needed.
func (c *anvilClient) SendTransaction(ctx context.Context, from, to common.Address, data []byte) (common.Hash, error) {
	if err := c.setBalance(ctx, from, forkFunding); err != nil {
		return common.Hash{}, fmt.Errorf("failed to update balance of %s to 1 ETH: %w", from.Hex(), err)
	}

	var hash common.Hash
	err := c.post(ctx, &hash, "eth_sendTransaction", map[string]string{
		"to":   to.Hex(),
		"from": from.Hex(),
		"data": hexutil.Encode(data),
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to send transaction: %w", err)
	}

	// Mine the transaction to properly update state when automine is off.
	if err := c.mine(ctx, 1); err != nil {
		return common.Hash{}, fmt.Errorf("failed to mine transaction: %w", err)
	}

	return hash, nil
}

// impersonate lets the node accept unsigned transactions from account. Nodes started with
// --auto-impersonate accept them already, attached nodes may not.
func (c *anvilClient) impersonate(ctx context.Context, account common.Address) error {
	if err := c.post(ctx, nil, "anvil_impersonateAccount", account.Hex()); err != nil {
		return fmt.Errorf("failed to impersonate %s: %w", account.Hex(), err)
	}

	return nil
}

// stopImpersonating undoes impersonate.
func (c *anvilClient) stopImpersonating(ctx context.Context, account common.Address) error {
	if err := c.post(ctx, nil, "anvil_stopImpersonatingAccount", account.Hex()); err != nil {
		return fmt.Errorf("failed to stop impersonating %s: %w", account.Hex(), err)
	}

	return nil
}

// setBalance updates the balance of an account.
func (c *anvilClient) setBalance(ctx context.Context, account common.Address, balance *big.Int) error {
	return c.post(ctx, nil, "anvil_setBalance", account.Hex(), hexutil.EncodeBig(balance))
}

// mine mines a series of blocks.
func (c *anvilClient) mine(ctx context.Context, numBlocks uint64) error {
	return c.post(ctx, nil, "anvil_mine", hexutil.EncodeUint64(numBlocks))
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int    `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// post submits a JSON-RPC call to the anvil node and decodes its result into out when out is
// not nil.
func (c *anvilClient) post(ctx context.Context, out any, method string, params ...any) error {
	payload := rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      rand.Int(), //nolint:gosec // G404: request ids only correlate responses
	}

	var res rpcResponse
	resp, err := c.client.R().SetContext(ctx).SetBody(payload).SetResult(&res).Post(c.url)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", method, err)
	}
	if resp.IsError() {
		return fmt.Errorf("failed to call %s: http status %d", method, resp.StatusCode())
	}
	if res.Error != nil {
		return fmt.Errorf("failed to call %s: %s (code %d)", method, res.Error.Message, res.Error.Code)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(res.Result, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}

	return nil
}

var _ evm.Executor = (*forkExecutor)(nil)

// forkExecutor executes against an anvil fork. Transactions are sent unsigned from the
// impersonated sender, so no private key is ever loaded.
type forkExecutor struct {
	chainID        uint64
	sender         common.Address
	client         evm.OnchainClient
	fork           *anvilClient
	lggr           logger.Logger
	tickInterval   time.Duration
	confirmTimeout time.Duration
	closeFn        func(context.Context) error
}

func (e *forkExecutor) Mode() evm.Mode { return evm.ModeFork }
func (e *forkExecutor) ChainID() uint64 { return e.chainID }
func (e *forkExecutor) Sender() common.Address { return e.sender }
func (e *forkExecutor) Client() evm.OnchainClient { return e.client }

func (e *forkExecutor) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return e.client.CallContract(ctx, ethereum.CallMsg{From: e.sender, To: &to, Data: data}, nil)
}

func (e *forkExecutor) Send(ctx context.Context, to common.Address, data []byte) (*types.Receipt, error) {
	hash, err := e.fork.SendTransaction(ctx, e.sender, to, data)
	if err != nil {
		return nil, err
	}
	e.lggr.Infow("Transaction submitted to fork", "tx", hash.Hex(), "to", to.Hex(), "from", e.sender.Hex())

	waitCtx, cancel := context.WithTimeout(ctx, e.confirmTimeout)
	defer cancel()

	receipt, err := pollReceipt(waitCtx, e.tickInterval, e.client, hash)
	if err != nil {
		return nil, fmt.Errorf("tx %s failed to confirm on fork: %w", hash.Hex(), err)
	}
	if receipt.Status == types.ReceiptStatusSuccessful {
		return receipt, nil
	}

	call := ethereum.CallMsg{From: e.sender, To: &to, Data: data}
	reason, rerr := replayForReason(waitCtx, e.client, call, receipt.BlockNumber)
	if rerr != nil {
		return nil, fmt.Errorf("tx %s reverted, could not decode error reason: %w", hash.Hex(), rerr)
	}

	return nil, fmt.Errorf("tx %s reverted: %s", hash.Hex(), reason)
}

func (e *forkExecutor) Close(ctx context.Context) error {
	if e.closeFn == nil {
		return nil
	}

	return e.closeFn(ctx)
}
