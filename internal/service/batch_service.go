package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/certchain-io/certchain-api/internal/chain"
	"github.com/certchain-io/certchain-api/internal/models"
	appErrors "github.com/certchain-io/certchain-api/pkg/errors"
	"github.com/certchain-io/certchain-api/pkg/jobs"
	"github.com/certchain-io/certchain-api/pkg/render"
	"github.com/certchain-io/certchain-api/pkg/storage"
)

type batchJobStore interface {
	Create(job *models.BatchJob) string
	Get(id string) (*models.BatchJob, error)
	StartProcessing(id string) ([]models.CertificateRecord, *models.BatchJob, error)
	SetProgress(id string, progress models.PhaseProgress)
	Complete(id string, results []models.BatchRecordResult, summary *models.BatchSummary)
	Fail(id string, message string)
}

type documentRenderer interface {
	Render(templateID string, rec models.CertificateRecord) ([]byte, error)
}

type documentStore interface {
	Store(data []byte) (storage.StoreResult, error)
	GatewayURL(contentID string) string
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Delete(filename string) error
}

type issuanceNotifier interface {
	Configured() bool
	SendIssuanceEmail(rec *models.CertificateRecord, verifyURL string) (models.NotificationStatus, error)
}

type certificateSink interface {
	SaveAll(ctx context.Context, certs []models.IssuedCertificate) error
}

type artifactSigner interface {
	Generate(certID, relPath string) (string, time.Time, error)
}

// BatchServiceConfig carries the orchestrator settings.
type BatchServiceConfig struct {
	VerificationBaseURL string
	ArtifactRoutePrefix string
	DefaultTemplate     string
}

// BatchValidationResult is the outcome of an upload validation.
type BatchValidationResult struct {
	JobID  string                   `json:"jobId,omitempty"`
	Report *models.ValidationReport `json:"report"`
}

// BatchService orchestrates the issuance pipeline: strictly ordered phases
// over an immutable record list, per-record failures recorded as data,
// systemic failures terminating the job. One worker owns a job for the whole
// run; pollers read snapshots through the job store.
type BatchService struct {
	validator *BatchValidator
	store     batchJobStore
	chainGw   chainGateway
	renderer  documentRenderer
	content   documentStore
	artifacts fileStorage
	staging   fileStorage
	signer    artifactSigner
	notifier  issuanceNotifier
	certRepo  certificateSink
	metrics   *MetricsService
	queue     *jobs.Queue
	config    BatchServiceConfig
	logger    *zap.Logger

	mu      sync.Mutex
	pending map[string][]models.CertificateRecord
	meta    map[string]*models.BatchJob
}

// NewBatchService constructs the orchestrator. The dispatch queue is created
// here so the enqueue handler closes over the service; callers start it with
// Start.
func NewBatchService(
	validator *BatchValidator,
	store batchJobStore,
	chainGw chainGateway,
	renderer documentRenderer,
	content documentStore,
	artifacts fileStorage,
	staging fileStorage,
	signer artifactSigner,
	notifier issuanceNotifier,
	certRepo certificateSink,
	metrics *MetricsService,
	workers int,
	config BatchServiceConfig,
	logger *zap.Logger,
) *BatchService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validator == nil {
		validator = NewBatchValidator(nil, logger)
	}
	if renderer == nil {
		renderer = render.NewCertificateRenderer()
	}
	if config.DefaultTemplate == "" {
		config.DefaultTemplate = render.TemplateClassic
	}
	if config.ArtifactRoutePrefix == "" {
		config.ArtifactRoutePrefix = "/api/v1/artifacts"
	}

	s := &BatchService{
		validator: validator,
		store:     store,
		chainGw:   chainGw,
		renderer:  renderer,
		content:   content,
		artifacts: artifacts,
		staging:   staging,
		signer:    signer,
		notifier:  notifier,
		certRepo:  certRepo,
		metrics:   metrics,
		config:    config,
		logger:    logger,
		pending:   make(map[string][]models.CertificateRecord),
		meta:      make(map[string]*models.BatchJob),
	}
	s.queue = jobs.NewQueue("batch-issuance", s.handleJob, jobs.QueueConfig{
		Workers: workers,
		Logger:  logger,
	})
	return s
}

// Start begins background job consumption.
func (s *BatchService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the dispatch workers.
func (s *BatchService) Stop() {
	s.queue.Stop()
}

// ValidateUpload parses and validates an uploaded CSV, stages the raw file,
// and registers a validated job when at least one record is eligible.
func (s *BatchService) ValidateUpload(ctx context.Context, createdBy string, raw []byte, templateID string, notify bool) (*BatchValidationResult, error) {
	rows, err := s.validator.ParseCSV(strings.NewReader(string(raw)))
	if err != nil {
		return nil, err
	}
	report, err := s.validator.Validate(rows)
	if err != nil {
		return nil, err
	}

	result := &BatchValidationResult{Report: report}
	if report.ValidCount == 0 {
		return result, nil
	}

	if templateID == "" {
		templateID = s.config.DefaultTemplate
	}
	job := &models.BatchJob{
		TemplateID:    templateID,
		NotifyEnabled: notify,
		CreatedBy:     createdBy,
		Records:       report.ValidRecords,
	}
	jobID := s.store.Create(job)

	if s.staging != nil {
		stagingFile := fmt.Sprintf("staging/%s.csv", jobID)
		if _, err := s.staging.Save(stagingFile, raw); err != nil {
			s.logger.Warn("failed to stage upload", zap.String("jobId", jobID), zap.Error(err))
		} else {
			job.StagingFile = stagingFile
		}
	}

	result.JobID = jobID
	s.logger.Info("batch validated",
		zap.String("jobId", jobID),
		zap.Int("valid", report.ValidCount),
		zap.Int("invalid", report.InvalidCount))
	return result, nil
}

// ProcessBatch transitions a validated job to processing and hands it to the
// dispatch queue. The transition is atomic: a job already processing or
// already terminal is rejected here, before any work is enqueued.
func (s *BatchService) ProcessBatch(ctx context.Context, jobID string) error {
	records, job, err := s.store.StartProcessing(jobID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.pending[jobID] = records
	s.meta[jobID] = job
	s.mu.Unlock()

	if err := s.queue.Enqueue(jobs.Job{ID: jobID, Type: "batch_issuance"}); err != nil {
		s.mu.Lock()
		delete(s.pending, jobID)
		delete(s.meta, jobID)
		s.mu.Unlock()
		s.store.Fail(jobID, "dispatch queue unavailable")
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue batch job")
	}
	return nil
}

// Status returns the poll-readable job snapshot.
func (s *BatchService) Status(jobID string) (*models.BatchJob, error) {
	return s.store.Get(jobID)
}

// Results returns the terminal result set. Polling results before the job is
// terminal is a conflict, not an error in the job.
func (s *BatchService) Results(jobID string) (*models.BatchJob, error) {
	job, err := s.store.Get(jobID)
	if err != nil {
		return nil, err
	}
	if !job.Terminal() {
		return nil, appErrors.ErrJobNotReady
	}
	return job, nil
}

func (s *BatchService) handleJob(ctx context.Context, job jobs.Job) error {
	s.mu.Lock()
	records, ok := s.pending[job.ID]
	meta := s.meta[job.ID]
	delete(s.pending, job.ID)
	delete(s.meta, job.ID)
	s.mu.Unlock()

	if !ok || meta == nil {
		return fmt.Errorf("no staged records for job %s", job.ID)
	}
	s.runBatch(ctx, meta, records)
	return nil
}

// runBatch executes the strictly ordered phases over the job's records.
func (s *BatchService) runBatch(ctx context.Context, job *models.BatchJob, records []models.CertificateRecord) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("batch run panicked", zap.String("jobId", job.ID), zap.Any("panic", r))
			// Anchored records must not vanish with the job: persist whatever
			// already confirmed on chain before marking the job failed.
			s.persistIssued(ctx, job, records)
			s.store.Fail(job.ID, fmt.Sprintf("internal pipeline failure: %v", r))
			s.metrics.RecordBatchCompleted(string(models.BatchStatusFailed))
		}
	}()

	total := len(records)
	documents := make([][]byte, total)

	s.runPhase(job.ID, models.PhaseGeneratingIDs, func() {
		s.generateIDs(ctx, job.ID, records)
	})

	s.runPhase(job.ID, models.PhaseGeneratingDocuments, func() {
		for i := range records {
			s.progress(job.ID, models.PhaseGeneratingDocuments, i, total)
			s.renderDocument(job, &records[i], &documents[i])
		}
	})

	s.runPhase(job.ID, models.PhaseStoringContent, func() {
		for i := range records {
			s.progress(job.ID, models.PhaseStoringContent, i, total)
			s.storeContent(&records[i], documents[i])
		}
	})

	session, err := s.chainGw.OpenSession(ctx)
	if err != nil {
		// No chain session means no record can be anchored: systemic failure.
		s.logger.Error("chain session unavailable", zap.String("jobId", job.ID), zap.Error(err))
		s.store.Fail(job.ID, fmt.Sprintf("chain session could not be opened: %v", err))
		s.metrics.RecordBatchCompleted(string(models.BatchStatusFailed))
		s.cleanupStaging(job)
		return
	}
	s.runPhase(job.ID, models.PhaseChainSubmission, func() {
		defer session.Close()
		for i := range records {
			s.progress(job.ID, models.PhaseChainSubmission, i, total)
			s.submitRecord(ctx, session, &records[i])
		}
	})

	s.runPhase(job.ID, models.PhaseGeneratingArtifacts, func() {
		for i := range records {
			s.progress(job.ID, models.PhaseGeneratingArtifacts, i, total)
			s.generateArtifacts(job, &records[i])
		}
	})

	s.runPhase(job.ID, models.PhaseNotifying, func() {
		for i := range records {
			s.progress(job.ID, models.PhaseNotifying, i, total)
			s.notifyRecord(job, &records[i])
		}
	})

	s.persistIssued(ctx, job, records)

	results, summary := s.compileResults(job, records, time.Since(started))
	s.store.Complete(job.ID, results, summary)
	s.metrics.RecordBatchCompleted(string(models.BatchStatusCompleted))
	s.cleanupStaging(job)

	s.logger.Info("batch completed",
		zap.String("jobId", job.ID),
		zap.Int("total", summary.Total),
		zap.Int("chainSuccess", summary.BlockchainSuccess),
		zap.Int("chainFailed", summary.BlockchainFailed),
		zap.Duration("duration", time.Since(started)))
}

func (s *BatchService) runPhase(jobID string, phase models.BatchPhase, fn func()) {
	start := time.Now()
	s.progress(jobID, phase, 0, 0)
	fn()
	s.metrics.ObservePhase(string(phase), time.Since(start))
}

func (s *BatchService) progress(jobID string, phase models.BatchPhase, current, total int) {
	percent := 0
	if total > 0 {
		percent = current * 100 / total
	}
	s.store.SetProgress(jobID, models.PhaseProgress{Phase: phase, Current: current, Total: total, Percent: percent})
}

// generateIDs assigns certificate identifiers. The on-chain total seeds the
// sequence; on failure the sequence starts at zero and uniqueness rests on the
// random suffix.
func (s *BatchService) generateIDs(ctx context.Context, jobID string, records []models.CertificateRecord) {
	var seq uint64
	if total, err := s.chainGw.TotalIssued(ctx); err != nil {
		s.logger.Warn("could not read issued total for id sequencing", zap.String("jobId", jobID), zap.Error(err))
	} else {
		seq = total
	}

	year := time.Now().UTC().Year()
	for i := range records {
		if records[i].CertificateID != "" {
			continue
		}
		seq++
		records[i].CertificateID = fmt.Sprintf("CERT-%d-%d-%s", year, seq, randomSuffix())
	}
}

func (s *BatchService) renderDocument(job *models.BatchJob, rec *models.CertificateRecord, doc *[]byte) {
	data, err := s.renderer.Render(job.TemplateID, *rec)
	if err != nil {
		rec.DocumentError = err.Error()
		return
	}
	if s.artifacts != nil {
		path := fmt.Sprintf("%s/%s.pdf", job.ID, rec.CertificateID)
		if _, err := s.artifacts.Save(path, data); err != nil {
			rec.DocumentError = fmt.Sprintf("store document: %v", err)
			return
		}
	}
	rec.DocumentGenerated = true
	*doc = data
}

func (s *BatchService) storeContent(rec *models.CertificateRecord, doc []byte) {
	if !rec.DocumentGenerated || len(doc) == 0 {
		return
	}
	rec.ContentHash = storage.Digest(doc)
	if s.content == nil {
		return
	}
	res, err := s.content.Store(doc)
	if err != nil {
		// The record still proceeds to chain submission with an empty
		// content identifier; existence on chain is the stronger proof.
		rec.StorageError = err.Error()
		return
	}
	rec.ContentID = res.ContentID
}

func (s *BatchService) submitRecord(ctx context.Context, session chainSession, rec *models.CertificateRecord) {
	if !rec.ChainEligible() {
		return
	}
	call := chain.IssuanceCall{
		CertificateID: rec.CertificateID,
		StudentName:   rec.StudentName,
		StudentID:     rec.StudentID,
		Degree:        rec.Degree,
		Institution:   rec.Institution,
		IssueDate:     rec.IssueDate.Unix(),
		ContentID:     rec.ContentID,
		ContentHash:   rec.ContentHash,
	}
	txHash, err := session.Submit(ctx, call)
	if err != nil {
		// Pre-acceptance failure: the session has already resynced its
		// cursor, the nonce was never consumed.
		rec.Chain = &models.TransactionOutcome{Success: false, Error: err.Error()}
		s.metrics.RecordTransaction(false)
		s.metrics.RecordNonceResync()
		return
	}

	outcome, err := s.chainGw.Confirm(ctx, txHash)
	rec.Chain = &outcome
	s.metrics.RecordTransaction(true)
	if err != nil {
		s.logger.Warn("transaction not confirmed",
			zap.String("certificateId", rec.CertificateID),
			zap.String("tx", outcome.TxHash),
			zap.Error(err))
		return
	}
	s.metrics.RecordCertificateIssued()
}

func (s *BatchService) generateArtifacts(job *models.BatchJob, rec *models.CertificateRecord) {
	if !rec.ChainSucceeded() {
		return
	}
	png, err := render.VerificationQR(s.verifyURL(rec.CertificateID))
	if err != nil {
		rec.ArtifactError = err.Error()
		return
	}
	if s.artifacts == nil {
		return
	}
	path := fmt.Sprintf("%s/%s-qr.png", job.ID, rec.CertificateID)
	if _, err := s.artifacts.Save(path, png); err != nil {
		rec.ArtifactError = fmt.Sprintf("store qr code: %v", err)
		return
	}
	rec.QRPath = path
}

func (s *BatchService) notifyRecord(job *models.BatchJob, rec *models.CertificateRecord) {
	if !rec.ChainSucceeded() {
		return
	}
	if !job.NotifyEnabled || rec.Email == "" || s.notifier == nil || !s.notifier.Configured() {
		rec.NotificationStatus = models.NotificationSkipped
		return
	}
	status, err := s.notifier.SendIssuanceEmail(rec, s.verifyURL(rec.CertificateID))
	rec.NotificationStatus = status
	if err != nil {
		rec.NotificationError = err.Error()
	}
}

func (s *BatchService) persistIssued(ctx context.Context, job *models.BatchJob, records []models.CertificateRecord) {
	if s.certRepo == nil {
		return
	}
	var issued []models.IssuedCertificate
	for i := range records {
		rec := &records[i]
		if !rec.ChainSucceeded() {
			continue
		}
		issued = append(issued, models.IssuedCertificate{
			CertificateID: rec.CertificateID,
			StudentName:   rec.StudentName,
			StudentID:     rec.StudentID,
			Degree:        rec.Degree,
			Institution:   rec.Institution,
			IssueDate:     rec.IssueDate,
			ContentID:     rec.ContentID,
			ContentHash:   rec.ContentHash,
			TxHash:        rec.Chain.TxHash,
			BlockNumber:   rec.Chain.BlockNumber,
			GasUsed:       rec.Chain.GasUsed,
			CreatedBy:     job.CreatedBy,
		})
	}
	if len(issued) == 0 {
		return
	}
	// The chain already holds these certificates; a failed off-chain insert
	// must not fail the batch.
	if err := s.certRepo.SaveAll(ctx, issued); err != nil {
		s.logger.Error("failed to persist issued certificates", zap.String("jobId", job.ID), zap.Error(err))
	}
}

// compileResults joins every stage outcome by original row position, exactly once.
func (s *BatchService) compileResults(job *models.BatchJob, records []models.CertificateRecord, elapsed time.Duration) ([]models.BatchRecordResult, *models.BatchSummary) {
	results := make([]models.BatchRecordResult, 0, len(records))
	summary := &models.BatchSummary{Total: len(records), DurationMilliseconds: elapsed.Milliseconds()}

	for i := range records {
		rec := &records[i]
		res := models.BatchRecordResult{
			Row:                rec.Row,
			CertificateID:      rec.CertificateID,
			StudentName:        rec.StudentName,
			StudentID:          rec.StudentID,
			DocumentGenerated:  rec.DocumentGenerated,
			DocumentError:      rec.DocumentError,
			ContentID:          rec.ContentID,
			ContentHash:        rec.ContentHash,
			StorageError:       rec.StorageError,
			ArtifactError:      rec.ArtifactError,
			NotificationStatus: rec.NotificationStatus,
			NotificationError:  rec.NotificationError,
		}
		if rec.DocumentGenerated {
			summary.DocumentsGenerated++
			if s.artifacts != nil && s.signer != nil {
				res.CertificateURL = s.artifactURL(rec.CertificateID, fmt.Sprintf("%s/%s.pdf", job.ID, rec.CertificateID))
			}
		}
		if rec.ContentID != "" {
			summary.ContentStored++
		}
		if rec.Chain != nil {
			res.TxHash = rec.Chain.TxHash
			res.BlockNumber = rec.Chain.BlockNumber
			res.GasUsed = rec.Chain.GasUsed
			res.ChainError = rec.Chain.Error
		}
		if rec.ChainSucceeded() {
			res.Success = true
			summary.BlockchainSuccess++
		} else if rec.Chain != nil {
			summary.BlockchainFailed++
		}
		if rec.QRPath != "" {
			summary.ArtifactsGenerated++
			if s.signer != nil {
				res.QRCodeURL = s.artifactURL(rec.CertificateID, rec.QRPath)
			}
		}
		switch rec.NotificationStatus {
		case models.NotificationSent:
			summary.NotificationsSent++
		case models.NotificationFailed:
			summary.NotificationsFailed++
		case models.NotificationSkipped:
			summary.NotificationsSkipped++
		}
		results = append(results, res)
	}
	return results, summary
}

func (s *BatchService) cleanupStaging(job *models.BatchJob) {
	if s.staging == nil || job.StagingFile == "" {
		return
	}
	if err := s.staging.Delete(job.StagingFile); err != nil {
		s.logger.Warn("failed to remove staging file", zap.String("jobId", job.ID), zap.Error(err))
	}
}

func (s *BatchService) verifyURL(certificateID string) string {
	base := strings.TrimRight(s.config.VerificationBaseURL, "/")
	return fmt.Sprintf("%s/verify/%s", base, certificateID)
}

func (s *BatchService) artifactURL(certificateID, relPath string) string {
	token, _, err := s.signer.Generate(certificateID, relPath)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%s/%s", strings.TrimRight(s.config.ArtifactRoutePrefix, "/"), token)
}

const suffixAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func randomSuffix() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "XXXX"
	}
	for i, b := range buf {
		buf[i] = suffixAlphabet[int(b)%len(suffixAlphabet)]
	}
	return string(buf)
}
