package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certchain-io/certchain-api/internal/chain"
	"github.com/certchain-io/certchain-api/internal/models"
	appErrors "github.com/certchain-io/certchain-api/pkg/errors"
	"github.com/certchain-io/certchain-api/pkg/storage"
)

type fakeJobStore struct {
	mu   sync.Mutex
	seq  int
	jobs map[string]*models.BatchJob
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: map[string]*models.BatchJob{}}
}

func (f *fakeJobStore) Create(job *models.BatchJob) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	job.ID = fmt.Sprintf("job-%d", f.seq)
	job.Status = models.BatchStatusValidated
	f.jobs[job.ID] = job
	return job.ID
}

func (f *fakeJobStore) Get(id string) (*models.BatchJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "batch job not found")
	}
	clone := *job
	return &clone, nil
}

func (f *fakeJobStore) StartProcessing(id string) ([]models.CertificateRecord, *models.BatchJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "batch job not found")
	}
	if job.Status == models.BatchStatusProcessing {
		return nil, nil, appErrors.ErrJobProcessing
	}
	if job.Status == models.BatchStatusCompleted || job.Status == models.BatchStatusFailed {
		return nil, nil, appErrors.Clone(appErrors.ErrConflict, "batch job already processed")
	}
	job.Status = models.BatchStatusProcessing
	records := make([]models.CertificateRecord, len(job.Records))
	copy(records, job.Records)
	clone := *job
	return records, &clone, nil
}

func (f *fakeJobStore) SetProgress(id string, progress models.PhaseProgress) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if job, ok := f.jobs[id]; ok {
		p := progress
		job.Progress = &p
	}
}

func (f *fakeJobStore) Complete(id string, results []models.BatchRecordResult, summary *models.BatchSummary) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if job, ok := f.jobs[id]; ok {
		job.Status = models.BatchStatusCompleted
		job.Results = results
		job.Summary = summary
	}
}

func (f *fakeJobStore) Fail(id string, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if job, ok := f.jobs[id]; ok {
		job.Status = models.BatchStatusFailed
		job.Error = message
	}
}

type stubSession struct {
	mu        sync.Mutex
	failFor   map[string]error
	submitted []string
	closed    bool
}

func (s *stubSession) Submit(ctx context.Context, call chain.IssuanceCall) (common.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.failFor[call.StudentID]; ok {
		return common.Hash{}, err
	}
	s.submitted = append(s.submitted, call.StudentID)
	return common.HexToHash(fmt.Sprintf("0x%02x", len(s.submitted))), nil
}

func (s *stubSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

type stubGateway struct {
	session   *stubSession
	openErr   error
	issueErr  error
	confirmFn func(tx common.Hash) (models.TransactionOutcome, error)
	total     uint64
	cert      *models.ChainCertificate
	certErr   error
}

func (g *stubGateway) OpenSession(ctx context.Context) (chainSession, error) {
	if g.openErr != nil {
		return nil, g.openErr
	}
	return g.session, nil
}

func (g *stubGateway) Issue(ctx context.Context, call chain.IssuanceCall) (common.Hash, error) {
	if g.issueErr != nil {
		return common.Hash{}, g.issueErr
	}
	return common.HexToHash("0xff"), nil
}

func (g *stubGateway) Confirm(ctx context.Context, txHash common.Hash) (models.TransactionOutcome, error) {
	if g.confirmFn != nil {
		return g.confirmFn(txHash)
	}
	return models.TransactionOutcome{Success: true, TxHash: txHash.Hex(), BlockNumber: 42, GasUsed: 90000}, nil
}

func (g *stubGateway) TotalIssued(ctx context.Context) (uint64, error) {
	return g.total, nil
}

func (g *stubGateway) GetCertificate(ctx context.Context, certificateID string) (*models.ChainCertificate, error) {
	if g.certErr != nil {
		return nil, g.certErr
	}
	if g.cert != nil {
		return g.cert, nil
	}
	return &models.ChainCertificate{CertificateID: certificateID, Exists: false}, nil
}

type stubRenderer struct{}

func (stubRenderer) Render(templateID string, rec models.CertificateRecord) ([]byte, error) {
	if rec.StudentName == "Broken Render" {
		return nil, errors.New("template overflow")
	}
	return []byte("%PDF-test " + rec.CertificateID), nil
}

type stubContentStore struct {
	err error
}

func (s *stubContentStore) Store(data []byte) (storage.StoreResult, error) {
	if s.err != nil {
		return storage.StoreResult{}, s.err
	}
	return storage.StoreResult{ContentID: "Qm" + storage.Digest(data)[:8], Confirmed: true}, nil
}

func (s *stubContentStore) GatewayURL(contentID string) string { return "" }

type stubFiles struct {
	mu      sync.Mutex
	saved   map[string][]byte
	deleted []string
}

func newStubFiles() *stubFiles { return &stubFiles{saved: map[string][]byte{}} }

func (s *stubFiles) Save(filename string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved[filename] = data
	return filename, nil
}

func (s *stubFiles) Delete(filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, filename)
	return nil
}

type stubNotifier struct {
	configured bool
	sendErr    error
	mu         sync.Mutex
	sent       []string
}

func (n *stubNotifier) Configured() bool { return n.configured }

func (n *stubNotifier) SendIssuanceEmail(rec *models.CertificateRecord, verifyURL string) (models.NotificationStatus, error) {
	if n.sendErr != nil {
		return models.NotificationFailed, n.sendErr
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, rec.Email)
	return models.NotificationSent, nil
}

type stubSink struct {
	mu    sync.Mutex
	saved []models.IssuedCertificate
}

func (s *stubSink) SaveAll(ctx context.Context, certs []models.IssuedCertificate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, certs...)
	return nil
}

type batchFixture struct {
	svc       *BatchService
	store     *fakeJobStore
	gateway   *stubGateway
	session   *stubSession
	artifacts *stubFiles
	staging   *stubFiles
	notifier  *stubNotifier
	sink      *stubSink
}

func newBatchFixture(t *testing.T) *batchFixture {
	t.Helper()
	f := &batchFixture{
		store:     newFakeJobStore(),
		session:   &stubSession{failFor: map[string]error{}},
		artifacts: newStubFiles(),
		staging:   newStubFiles(),
		notifier:  &stubNotifier{configured: true},
		sink:      &stubSink{},
	}
	f.gateway = &stubGateway{session: f.session, total: 100}
	f.svc = NewBatchService(
		nil,
		f.store,
		f.gateway,
		stubRenderer{},
		&stubContentStore{},
		f.artifacts,
		f.staging,
		storage.NewSignedURLSigner("test-secret", time.Hour),
		f.notifier,
		f.sink,
		nil,
		1,
		BatchServiceConfig{VerificationBaseURL: "https://certs.test.edu"},
		nil,
	)
	return f
}

const sampleCSV = "student_name,student_id,degree,institution,issue_date,email\n" +
	"Ada Lovelace,STU-001,BSc Computer Science,Test University,2026-06-15,ada@test.edu\n" +
	"Alan Turing,STU-002,MSc Mathematics,Test University,2026-06-15,alan@test.edu\n"

func (f *batchFixture) validatedJob(t *testing.T) string {
	t.Helper()
	result, err := f.svc.ValidateUpload(context.Background(), "issuer-1", []byte(sampleCSV), "classic", true)
	require.NoError(t, err)
	require.NotEmpty(t, result.JobID)
	return result.JobID
}

func (f *batchFixture) run(t *testing.T, jobID string) *models.BatchJob {
	t.Helper()
	records, meta, err := f.store.StartProcessing(jobID)
	require.NoError(t, err)
	f.svc.runBatch(context.Background(), meta, records)
	job, err := f.store.Get(jobID)
	require.NoError(t, err)
	return job
}

func TestValidateUploadCreatesJob(t *testing.T) {
	f := newBatchFixture(t)

	result, err := f.svc.ValidateUpload(context.Background(), "issuer-1", []byte(sampleCSV), "", true)
	require.NoError(t, err)
	assert.NotEmpty(t, result.JobID)
	assert.Equal(t, 2, result.Report.ValidCount)

	job, err := f.store.Get(result.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusValidated, job.Status)
	assert.Equal(t, "classic", job.TemplateID)
	assert.NotEmpty(t, job.StagingFile)
	assert.Contains(t, f.staging.saved, job.StagingFile)
}

func TestValidateUploadAllRowsInvalid(t *testing.T) {
	f := newBatchFixture(t)

	csv := "student_name,student_id,degree,institution,issue_date\n,,,,\n"
	result, err := f.svc.ValidateUpload(context.Background(), "issuer-1", []byte(csv), "", false)
	require.NoError(t, err)
	assert.Empty(t, result.JobID)
	assert.Equal(t, 1, result.Report.InvalidCount)
}

func TestValidateUploadEmptyFile(t *testing.T) {
	f := newBatchFixture(t)

	_, err := f.svc.ValidateUpload(context.Background(), "issuer-1", []byte("student_name\n"), "", false)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrNoDataRows.Code, appErr.Code)
}

func TestRunBatchHappyPath(t *testing.T) {
	f := newBatchFixture(t)
	jobID := f.validatedJob(t)

	job := f.run(t, jobID)

	assert.Equal(t, models.BatchStatusCompleted, job.Status)
	require.Len(t, job.Results, 2)
	for _, res := range job.Results {
		assert.True(t, res.Success)
		assert.True(t, res.DocumentGenerated)
		assert.NotEmpty(t, res.CertificateID)
		assert.NotEmpty(t, res.ContentID)
		assert.NotEmpty(t, res.TxHash)
		assert.NotEmpty(t, res.QRCodeURL)
		assert.NotEmpty(t, res.CertificateURL)
		assert.Equal(t, models.NotificationSent, res.NotificationStatus)
	}
	// Row numbers preserved from the source file.
	assert.Equal(t, 2, job.Results[0].Row)
	assert.Equal(t, 3, job.Results[1].Row)

	require.NotNil(t, job.Summary)
	assert.Equal(t, 2, job.Summary.Total)
	assert.Equal(t, 2, job.Summary.DocumentsGenerated)
	assert.Equal(t, 2, job.Summary.BlockchainSuccess)
	assert.Zero(t, job.Summary.BlockchainFailed)
	assert.Equal(t, 2, job.Summary.NotificationsSent)
	assert.Equal(t, 2, job.Summary.ArtifactsGenerated)

	assert.True(t, f.session.closed)
	assert.Len(t, f.sink.saved, 2)
	// Staging file removed after the terminal result set is compiled.
	assert.Len(t, f.staging.deleted, 1)
}

func TestRunBatchIDSequenceFromChainTotal(t *testing.T) {
	f := newBatchFixture(t)
	f.gateway.total = 500
	jobID := f.validatedJob(t)

	job := f.run(t, jobID)

	year := time.Now().UTC().Year()
	assert.Contains(t, job.Results[0].CertificateID, fmt.Sprintf("CERT-%d-501-", year))
	assert.Contains(t, job.Results[1].CertificateID, fmt.Sprintf("CERT-%d-502-", year))
}

func TestRunBatchDocumentFailureSkipsChain(t *testing.T) {
	f := newBatchFixture(t)
	csv := "student_name,student_id,degree,institution,issue_date\n" +
		"Broken Render,STU-001,BSc,Test University,2026-06-15\n" +
		"Alan Turing,STU-002,MSc Mathematics,Test University,2026-06-15\n"
	result, err := f.svc.ValidateUpload(context.Background(), "issuer-1", []byte(csv), "", false)
	require.NoError(t, err)

	job := f.run(t, result.JobID)

	assert.Equal(t, models.BatchStatusCompleted, job.Status)
	require.Len(t, job.Results, 2)

	broken := job.Results[0]
	assert.False(t, broken.Success)
	assert.False(t, broken.DocumentGenerated)
	assert.NotEmpty(t, broken.DocumentError)
	// A record without a rendered document never reaches the chain.
	assert.Empty(t, broken.TxHash)

	assert.True(t, job.Results[1].Success)
	assert.Equal(t, []string{"STU-002"}, f.session.submitted)
}

func TestRunBatchPreAcceptanceFailureIsRecordData(t *testing.T) {
	f := newBatchFixture(t)
	f.session.failFor["STU-001"] = errors.New("estimate gas: execution reverted")
	jobID := f.validatedJob(t)

	job := f.run(t, jobID)

	assert.Equal(t, models.BatchStatusCompleted, job.Status)
	assert.False(t, job.Results[0].Success)
	assert.Contains(t, job.Results[0].ChainError, "estimate gas")
	assert.True(t, job.Results[1].Success)
	assert.Equal(t, 1, job.Summary.BlockchainSuccess)
	assert.Equal(t, 1, job.Summary.BlockchainFailed)
}

func TestRunBatchRevertRecordedAsData(t *testing.T) {
	f := newBatchFixture(t)
	f.gateway.confirmFn = func(tx common.Hash) (models.TransactionOutcome, error) {
		return models.TransactionOutcome{Success: false, TxHash: tx.Hex(), BlockNumber: 7, Error: "transaction reverted"},
			errors.New("transaction reverted")
	}
	jobID := f.validatedJob(t)

	job := f.run(t, jobID)

	assert.Equal(t, models.BatchStatusCompleted, job.Status)
	for _, res := range job.Results {
		assert.False(t, res.Success)
		assert.Equal(t, "transaction reverted", res.ChainError)
		// Reverted records get no secondary artifacts or notifications.
		assert.Empty(t, res.QRCodeURL)
		assert.NotEqual(t, models.NotificationSent, res.NotificationStatus)
	}
	assert.Empty(t, f.sink.saved)
}

func TestRunBatchChainSessionFailureFailsJob(t *testing.T) {
	f := newBatchFixture(t)
	f.gateway.openErr = errors.New("node unreachable")
	jobID := f.validatedJob(t)

	job := f.run(t, jobID)

	assert.Equal(t, models.BatchStatusFailed, job.Status)
	assert.Contains(t, job.Error, "chain session could not be opened")
	// Staging is still cleaned up on systemic failure.
	assert.Len(t, f.staging.deleted, 1)
}

func TestRunBatchUnconfiguredNotifierSkips(t *testing.T) {
	f := newBatchFixture(t)
	f.notifier.configured = false
	jobID := f.validatedJob(t)

	job := f.run(t, jobID)

	for _, res := range job.Results {
		assert.Equal(t, models.NotificationSkipped, res.NotificationStatus)
	}
	assert.Equal(t, 2, job.Summary.NotificationsSkipped)
}

func TestProcessBatchRejectsConcurrentStart(t *testing.T) {
	f := newBatchFixture(t)
	jobID := f.validatedJob(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.svc.Start(ctx)
	defer f.svc.Stop()

	require.NoError(t, f.svc.ProcessBatch(context.Background(), jobID))

	err := f.svc.ProcessBatch(context.Background(), jobID)
	if err == nil {
		// The first run may already have completed; then the rejection is
		// the already-processed conflict.
		t.Fatal("expected second start to be rejected")
	}
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Contains(t, []string{appErrors.ErrJobProcessing.Code, appErrors.ErrConflict.Code}, appErr.Code)

	require.Eventually(t, func() bool {
		job, err := f.store.Get(jobID)
		return err == nil && job.Terminal()
	}, 5*time.Second, 10*time.Millisecond)
}

func TestRunBatchContentStoreFailureStillAnchors(t *testing.T) {
	f := newBatchFixture(t)
	f.svc.content = &stubContentStore{err: errors.New("content daemon unreachable")}
	jobID := f.validatedJob(t)

	job := f.run(t, jobID)

	assert.Equal(t, models.BatchStatusCompleted, job.Status)
	for _, res := range job.Results {
		assert.True(t, res.Success)
		assert.Empty(t, res.ContentID)
		assert.NotEmpty(t, res.StorageError)
		assert.NotEmpty(t, res.TxHash)
	}
}

func TestGenerateIDsKeepsExistingIdentifiers(t *testing.T) {
	f := newBatchFixture(t)

	records := []models.CertificateRecord{
		{StudentName: "Ada Lovelace", CertificateID: "CERT-2026-1-AAAA"},
		{StudentName: "Alan Turing"},
	}
	f.svc.generateIDs(context.Background(), "job-1", records)

	assert.Equal(t, "CERT-2026-1-AAAA", records[0].CertificateID)
	assert.NotEmpty(t, records[1].CertificateID)

	second := records[1].CertificateID
	f.svc.generateIDs(context.Background(), "job-1", records)
	assert.Equal(t, "CERT-2026-1-AAAA", records[0].CertificateID)
	assert.Equal(t, second, records[1].CertificateID)
}
