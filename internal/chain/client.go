package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/certchain-io/certchain-api/internal/models"
)

// Backend is the subset of the Ethereum RPC client the chain client relies
// on. *ethclient.Client satisfies it; tests substitute a stub.
type Backend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Config carries the signing identity and registry endpoint settings.
type Config struct {
	PrivateKey          string
	ContractAddress     string
	ChainID             int64
	GasLimit            uint64
	ConfirmTimeout      time.Duration
	ConfirmPollInterval time.Duration
}

// Client owns the signing key and the registry contract binding. A process
// runs exactly one Client per signing identity; batchMu is the
// single-active-submission lock that keeps concurrent batch runs (or a
// single issuance racing a batch) from interleaving nonces.
type Client struct {
	backend     Backend
	key         *ecdsa.PrivateKey
	address     common.Address
	contract    common.Address
	registryABI abi.ABI
	signer      types.Signer
	gasLimit    uint64
	confirmTimeout time.Duration
	pollInterval   time.Duration
	logger      *zap.Logger

	batchMu sync.Mutex
}

// NewClient constructs a chain client from the configured signing key.
func NewClient(backend Backend, cfg Config, logger *zap.Logger) (*Client, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse signing key: %w", err)
	}
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("invalid contract address %q", cfg.ContractAddress)
	}
	registryABI, err := parseRegistryABI()
	if err != nil {
		return nil, err
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 2 * time.Minute
	}
	if cfg.ConfirmPollInterval <= 0 {
		cfg.ConfirmPollInterval = 2 * time.Second
	}
	return &Client{
		backend:        backend,
		key:            key,
		address:        crypto.PubkeyToAddress(key.PublicKey),
		contract:       common.HexToAddress(cfg.ContractAddress),
		registryABI:    registryABI,
		signer:         types.LatestSignerForChainID(big.NewInt(cfg.ChainID)),
		gasLimit:       cfg.GasLimit,
		confirmTimeout: cfg.ConfirmTimeout,
		pollInterval:   cfg.ConfirmPollInterval,
		logger:         logger,
	}, nil
}

// Address returns the signing identity address.
func (c *Client) Address() common.Address {
	return c.address
}

// BatchSession is the nonce cursor for one batch submission run. It holds the
// client's submission lock from BeginBatch until Close; the cursor only moves
// forward, advanced solely by the sequential consumption in Submit.
type BatchSession struct {
	client   *Client
	nonce    uint64
	consumed int
	syncedAt time.Time
	closed   bool
}

// BeginBatch acquires the submission lock and seeds the cursor from the
// network's pending-nonce view exactly once.
func (c *Client) BeginBatch(ctx context.Context) (*BatchSession, error) {
	c.batchMu.Lock()
	nonce, err := c.backend.PendingNonceAt(ctx, c.address)
	if err != nil {
		c.batchMu.Unlock()
		return nil, fmt.Errorf("fetch pending nonce: %w", err)
	}
	c.logger.Debug("batch session opened", zap.Uint64("nonce", nonce), zap.String("address", c.address.Hex()))
	return &BatchSession{client: c, nonce: nonce, syncedAt: time.Now().UTC()}, nil
}

// Close releases the submission lock. Safe to call more than once.
func (s *BatchSession) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.client.batchMu.Unlock()
}

// Nonce exposes the cursor's next value.
func (s *BatchSession) Nonce() uint64 {
	return s.nonce
}

// Consumed reports how many nonces the network has accepted this session.
func (s *BatchSession) Consumed() int {
	return s.consumed
}

// Submit signs and broadcasts one issuance call with the cursor's explicit
// nonce. The nonce is consumed only once the node accepts the transaction;
// any failure before acceptance re-synchronizes the cursor from the network
// (the nonce was never used) and the record is reported failed without
// stopping the batch.
func (s *BatchSession) Submit(ctx context.Context, call IssuanceCall) (common.Hash, error) {
	if s.closed {
		return common.Hash{}, fmt.Errorf("batch session closed")
	}
	tx, err := s.client.buildSigned(ctx, call, s.nonce)
	if err != nil {
		s.resync(ctx)
		return common.Hash{}, err
	}
	if err := s.client.backend.SendTransaction(ctx, tx); err != nil {
		s.resync(ctx)
		return common.Hash{}, fmt.Errorf("send transaction: %w", err)
	}
	s.nonce++
	s.consumed++
	return tx.Hash(), nil
}

// resync refreshes the cursor after a pre-acceptance failure. When the
// refresh itself fails the cursor is left unchanged; a later collision
// surfaces as that record's failure.
func (s *BatchSession) resync(ctx context.Context) {
	next, err := s.client.backend.PendingNonceAt(ctx, s.client.address)
	if err != nil {
		s.client.logger.Warn("nonce resync failed, keeping local cursor",
			zap.Uint64("nonce", s.nonce), zap.Error(err))
		return
	}
	s.client.logger.Debug("nonce cursor resynced", zap.Uint64("from", s.nonce), zap.Uint64("to", next))
	s.nonce = next
	s.syncedAt = time.Now().UTC()
}

// Issue submits a single issuance outside batch mode. The nonce is resolved
// per call; there is no rapid-sequence hazard, but the submission lock is
// still taken so a lone issuance cannot interleave with a running batch.
func (c *Client) Issue(ctx context.Context, call IssuanceCall) (common.Hash, error) {
	c.batchMu.Lock()
	defer c.batchMu.Unlock()

	nonce, err := c.backend.PendingNonceAt(ctx, c.address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("fetch pending nonce: %w", err)
	}
	tx, err := c.buildSigned(ctx, call, nonce)
	if err != nil {
		return common.Hash{}, err
	}
	if err := c.backend.SendTransaction(ctx, tx); err != nil {
		return common.Hash{}, fmt.Errorf("send transaction: %w", err)
	}
	return tx.Hash(), nil
}

// Confirm awaits on-chain inclusion of an accepted transaction. Failures
// here are post-acceptance: the nonce stays consumed regardless of outcome.
func (c *Client) Confirm(ctx context.Context, txHash common.Hash) (models.TransactionOutcome, error) {
	ctx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			outcome := models.TransactionOutcome{
				TxHash:      txHash.Hex(),
				BlockNumber: receipt.BlockNumber.Uint64(),
				GasUsed:     receipt.GasUsed,
			}
			if receipt.Status == types.ReceiptStatusSuccessful {
				outcome.Success = true
				return outcome, nil
			}
			outcome.Error = "transaction reverted"
			return outcome, fmt.Errorf("transaction %s reverted in block %d", txHash.Hex(), outcome.BlockNumber)
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			c.logger.Warn("receipt lookup failed", zap.String("tx", txHash.Hex()), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			outcome := models.TransactionOutcome{TxHash: txHash.Hex(), Error: "confirmation timeout"}
			return outcome, fmt.Errorf("await inclusion of %s: %w", txHash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// TotalIssued reads the registry's certificate count.
func (c *Client) TotalIssued(ctx context.Context) (uint64, error) {
	data, err := c.registryABI.Pack("totalCertificates")
	if err != nil {
		return 0, fmt.Errorf("pack totalCertificates: %w", err)
	}
	res, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &c.contract, Data: data}, nil)
	if err != nil {
		return 0, fmt.Errorf("call totalCertificates: %w", err)
	}
	out, err := c.registryABI.Unpack("totalCertificates", res)
	if err != nil || len(out) == 0 {
		return 0, fmt.Errorf("unpack totalCertificates: %w", err)
	}
	total, ok := out[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("unexpected totalCertificates result type %T", out[0])
	}
	return total.Uint64(), nil
}

// GetCertificate reads one certificate from the registry.
func (c *Client) GetCertificate(ctx context.Context, certificateID string) (*models.ChainCertificate, error) {
	data, err := c.registryABI.Pack("getCertificate", certificateID)
	if err != nil {
		return nil, fmt.Errorf("pack getCertificate: %w", err)
	}
	res, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &c.contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call getCertificate: %w", err)
	}
	out, err := c.registryABI.Unpack("getCertificate", res)
	if err != nil {
		return nil, fmt.Errorf("unpack getCertificate: %w", err)
	}
	if len(out) != 7 {
		return nil, fmt.Errorf("unexpected getCertificate arity %d", len(out))
	}
	issueDate, _ := out[4].(*big.Int)
	if issueDate == nil {
		issueDate = big.NewInt(0)
	}
	cert := &models.ChainCertificate{
		CertificateID: certificateID,
		StudentName:   out[0].(string),
		StudentID:     out[1].(string),
		Degree:        out[2].(string),
		Institution:   out[3].(string),
		IssueDate:     issueDate.Int64(),
		ContentID:     out[5].(string),
		Exists:        out[6].(bool),
	}
	return cert, nil
}

func (c *Client) buildSigned(ctx context.Context, call IssuanceCall, nonce uint64) (*types.Transaction, error) {
	data, err := c.packIssuance(call)
	if err != nil {
		return nil, err
	}
	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas price: %w", err)
	}
	gas := c.gasLimit
	if gas == 0 {
		gas, err = c.backend.EstimateGas(ctx, ethereum.CallMsg{From: c.address, To: &c.contract, Data: data})
		if err != nil {
			return nil, fmt.Errorf("estimate gas: %w", err)
		}
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &c.contract,
		Data:     data,
	})
	signed, err := types.SignTx(tx, c.signer, c.key)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return signed, nil
}
