package chain

import (
	"context"
	"fmt"
	"math/big"
	"testing"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

const (
	testKey      = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
	testContract = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
)

type stubBackend struct {
	pendingNonce uint64
	pendingErrs  []error
	pendingCalls int

	estimateErrs  map[int]error
	estimateCalls int

	sendErrs  map[int]error
	sendCalls int
	sentNonces []uint64

	receipts   map[common.Hash]*types.Receipt
	receiptErr error

	callResult []byte
	callErr    error
}

func newStubBackend(nonce uint64) *stubBackend {
	return &stubBackend{
		pendingNonce: nonce,
		estimateErrs: map[int]error{},
		sendErrs:     map[int]error{},
		receipts:     map[common.Hash]*types.Receipt{},
	}
}

func (b *stubBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	call := b.pendingCalls
	b.pendingCalls++
	if call < len(b.pendingErrs) && b.pendingErrs[call] != nil {
		return 0, b.pendingErrs[call]
	}
	return b.pendingNonce, nil
}

func (b *stubBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (b *stubBackend) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	defer func() { b.estimateCalls++ }()
	if err, ok := b.estimateErrs[b.estimateCalls]; ok {
		return 0, err
	}
	return 150_000, nil
}

func (b *stubBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	defer func() { b.sendCalls++ }()
	if err, ok := b.sendErrs[b.sendCalls]; ok {
		return err
	}
	b.sentNonces = append(b.sentNonces, tx.Nonce())
	// Accepted transactions advance the node's pending view.
	b.pendingNonce = tx.Nonce() + 1
	return nil
}

func (b *stubBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	if b.receiptErr != nil {
		return nil, b.receiptErr
	}
	if receipt, ok := b.receipts[txHash]; ok {
		return receipt, nil
	}
	return nil, ethereum.NotFound
}

func (b *stubBackend) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if b.callErr != nil {
		return nil, b.callErr
	}
	return b.callResult, nil
}

func newTestClient(t *testing.T, backend Backend) *Client {
	t.Helper()
	client, err := NewClient(backend, Config{
		PrivateKey:          testKey,
		ContractAddress:     testContract,
		ChainID:             1337,
		ConfirmTimeout:      200 * time.Millisecond,
		ConfirmPollInterval: 10 * time.Millisecond,
	}, nil)
	require.NoError(t, err)
	return client
}

func testCall(i int) IssuanceCall {
	return IssuanceCall{
		CertificateID: fmt.Sprintf("CERT-2026-%d-AAAA", i),
		StudentName:   fmt.Sprintf("Student %d", i),
		StudentID:     fmt.Sprintf("STU-%03d", i),
		Degree:        "BSc Computer Science",
		Institution:   "Test University",
		IssueDate:     1767225600,
		ContentID:     "QmTestContent",
		ContentHash:   "aabbccddeeff00112233445566778899aabbccddeeff00112233445566778899",
	}
}

func TestBatchSessionSequentialNonces(t *testing.T) {
	backend := newStubBackend(7)
	client := newTestClient(t, backend)

	session, err := client.BeginBatch(context.Background())
	require.NoError(t, err)
	defer session.Close()

	for i := 0; i < 3; i++ {
		hash, err := session.Submit(context.Background(), testCall(i))
		require.NoError(t, err)
		require.NotEqual(t, common.Hash{}, hash)
	}

	require.Equal(t, []uint64{7, 8, 9}, backend.sentNonces)
	require.Equal(t, 3, session.Consumed())
	require.Equal(t, uint64(10), session.Nonce())
	// Pending nonce fetched exactly once for the whole run.
	require.Equal(t, 1, backend.pendingCalls)
}

func TestBatchSessionResyncAfterPreAcceptanceFailure(t *testing.T) {
	backend := newStubBackend(5)
	// Second submission fails during gas estimation, before the network
	// ever saw the transaction.
	backend.estimateErrs[1] = fmt.Errorf("execution reverted: duplicate id")
	client := newTestClient(t, backend)

	session, err := client.BeginBatch(context.Background())
	require.NoError(t, err)
	defer session.Close()

	_, err = session.Submit(context.Background(), testCall(0))
	require.NoError(t, err)

	_, err = session.Submit(context.Background(), testCall(1))
	require.Error(t, err)

	_, err = session.Submit(context.Background(), testCall(2))
	require.NoError(t, err)

	// Nonce 5 consumed by the first record; the failed record consumed
	// nothing, so the third record reuses the resynced value 6.
	require.Equal(t, []uint64{5, 6}, backend.sentNonces)
	require.Equal(t, 2, session.Consumed())
	// Initial fetch plus one resync.
	require.Equal(t, 2, backend.pendingCalls)
}

func TestBatchSessionResyncFailureKeepsCursor(t *testing.T) {
	backend := newStubBackend(5)
	backend.estimateErrs[0] = fmt.Errorf("gas estimation failed")
	backend.pendingErrs = []error{nil, fmt.Errorf("node unavailable")}
	client := newTestClient(t, backend)

	session, err := client.BeginBatch(context.Background())
	require.NoError(t, err)
	defer session.Close()

	_, err = session.Submit(context.Background(), testCall(0))
	require.Error(t, err)
	// Resync failed; the local cursor is unchanged and the next record
	// proceeds with it.
	require.Equal(t, uint64(5), session.Nonce())

	_, err = session.Submit(context.Background(), testCall(1))
	require.NoError(t, err)
	require.Equal(t, []uint64{5}, backend.sentNonces)
	require.Equal(t, 1, session.Consumed())
}

func TestBatchSessionSendRejectionDoesNotConsume(t *testing.T) {
	backend := newStubBackend(3)
	backend.sendErrs[0] = fmt.Errorf("txpool rejected: underpriced")
	client := newTestClient(t, backend)

	session, err := client.BeginBatch(context.Background())
	require.NoError(t, err)
	defer session.Close()

	_, err = session.Submit(context.Background(), testCall(0))
	require.Error(t, err)
	require.Equal(t, 0, session.Consumed())

	_, err = session.Submit(context.Background(), testCall(1))
	require.NoError(t, err)
	require.Equal(t, []uint64{3}, backend.sentNonces)
}

func TestConfirmSuccess(t *testing.T) {
	backend := newStubBackend(0)
	client := newTestClient(t, backend)

	txHash := common.HexToHash("0xdeadbeef")
	backend.receipts[txHash] = &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		BlockNumber: big.NewInt(128),
		GasUsed:     92_100,
	}

	outcome, err := client.Confirm(context.Background(), txHash)
	require.NoError(t, err)
	require.True(t, outcome.Success)
	require.Equal(t, uint64(128), outcome.BlockNumber)
	require.Equal(t, uint64(92_100), outcome.GasUsed)
	require.Equal(t, txHash.Hex(), outcome.TxHash)
}

func TestConfirmRevert(t *testing.T) {
	backend := newStubBackend(0)
	client := newTestClient(t, backend)

	txHash := common.HexToHash("0xbadc0de")
	backend.receipts[txHash] = &types.Receipt{
		Status:      types.ReceiptStatusFailed,
		BlockNumber: big.NewInt(64),
		GasUsed:     45_000,
	}

	outcome, err := client.Confirm(context.Background(), txHash)
	require.Error(t, err)
	require.False(t, outcome.Success)
	require.Equal(t, "transaction reverted", outcome.Error)
	require.Equal(t, uint64(64), outcome.BlockNumber)
}

func TestConfirmTimeout(t *testing.T) {
	backend := newStubBackend(0)
	client := newTestClient(t, backend)

	outcome, err := client.Confirm(context.Background(), common.HexToHash("0x1234"))
	require.Error(t, err)
	require.False(t, outcome.Success)
	require.Equal(t, "confirmation timeout", outcome.Error)
}

func TestIssueResolvesNoncePerCall(t *testing.T) {
	backend := newStubBackend(11)
	client := newTestClient(t, backend)

	_, err := client.Issue(context.Background(), testCall(0))
	require.NoError(t, err)
	_, err = client.Issue(context.Background(), testCall(1))
	require.NoError(t, err)

	require.Equal(t, []uint64{11, 12}, backend.sentNonces)
	require.Equal(t, 2, backend.pendingCalls)
}

func TestTotalIssued(t *testing.T) {
	backend := newStubBackend(0)
	client := newTestClient(t, backend)

	registryABI, err := parseRegistryABI()
	require.NoError(t, err)
	encoded, err := registryABI.Methods["totalCertificates"].Outputs.Pack(big.NewInt(42))
	require.NoError(t, err)
	backend.callResult = encoded

	total, err := client.TotalIssued(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(42), total)
}

func TestGetCertificate(t *testing.T) {
	backend := newStubBackend(0)
	client := newTestClient(t, backend)

	registryABI, err := parseRegistryABI()
	require.NoError(t, err)
	encoded, err := registryABI.Methods["getCertificate"].Outputs.Pack(
		"Ada Lovelace", "STU-001", "BSc Computer Science", "Test University",
		big.NewInt(1767225600), "QmTestContent", true,
	)
	require.NoError(t, err)
	backend.callResult = encoded

	cert, err := client.GetCertificate(context.Background(), "CERT-2026-1-AAAA")
	require.NoError(t, err)
	require.True(t, cert.Exists)
	require.Equal(t, "Ada Lovelace", cert.StudentName)
	require.Equal(t, int64(1767225600), cert.IssueDate)
	require.Equal(t, "QmTestContent", cert.ContentID)
}
