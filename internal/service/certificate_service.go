package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/certchain-io/certchain-api/internal/chain"
	"github.com/certchain-io/certchain-api/internal/dto"
	"github.com/certchain-io/certchain-api/internal/models"
	appErrors "github.com/certchain-io/certchain-api/pkg/errors"
	"github.com/certchain-io/certchain-api/pkg/render"
	"github.com/certchain-io/certchain-api/pkg/storage"
)

type certificateRepository interface {
	Save(ctx context.Context, cert *models.IssuedCertificate) error
	FindByCertificateID(ctx context.Context, certificateID string) (*models.IssuedCertificate, error)
	List(ctx context.Context, filter models.CertificateFilter) ([]models.IssuedCertificate, int, error)
}

type verificationCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// CertificateServiceConfig carries single-issuance and verification settings.
type CertificateServiceConfig struct {
	VerificationBaseURL string
	ArtifactRoutePrefix string
	DefaultTemplate     string
	CacheTTL            time.Duration
}

// CertificateService handles single issuance, verification, and listings.
// Single issuance runs the same stages as a batch record but synchronously,
// with the chain client resolving the nonce per call.
type CertificateService struct {
	chainGw   chainGateway
	repo      certificateRepository
	cache     verificationCache
	renderer  documentRenderer
	content   documentStore
	artifacts fileStorage
	signer    artifactSigner
	notifier  issuanceNotifier
	metrics   *MetricsService
	validate  *validator.Validate
	config    CertificateServiceConfig
	logger    *zap.Logger
}

// NewCertificateService constructs a CertificateService.
func NewCertificateService(
	chainGw chainGateway,
	repo certificateRepository,
	cache verificationCache,
	renderer documentRenderer,
	content documentStore,
	artifacts fileStorage,
	signer artifactSigner,
	notifier issuanceNotifier,
	metrics *MetricsService,
	validate *validator.Validate,
	config CertificateServiceConfig,
	logger *zap.Logger,
) *CertificateService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
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
	if config.CacheTTL <= 0 {
		config.CacheTTL = 5 * time.Minute
	}
	return &CertificateService{
		chainGw:   chainGw,
		repo:      repo,
		cache:     cache,
		renderer:  renderer,
		content:   content,
		artifacts: artifacts,
		signer:    signer,
		notifier:  notifier,
		metrics:   metrics,
		validate:  validate,
		config:    config,
		logger:    logger,
	}
}

// Issue anchors a single certificate: render, store content, submit, confirm,
// then secondary artifacts and notification. Unlike batch records, a chain
// failure here is surfaced as the call's error.
func (s *CertificateService) Issue(ctx context.Context, createdBy string, req dto.IssueCertificateRequest) (*dto.IssueCertificateResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid certificate payload")
	}
	issueDate, err := parseIssueDate(req.IssueDate)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unrecognized issue date")
	}

	rec := models.CertificateRecord{
		StudentName: req.StudentName,
		StudentID:   req.StudentID,
		Degree:      req.Degree,
		Institution: req.Institution,
		IssueDate:   issueDate,
		Email:       req.Email,
	}
	rec.CertificateID = s.nextCertificateID(ctx)

	templateID := req.TemplateID
	if templateID == "" {
		templateID = s.config.DefaultTemplate
	}
	doc, err := s.renderer.Render(templateID, rec)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render certificate")
	}
	rec.DocumentGenerated = true
	rec.ContentHash = storage.Digest(doc)

	docPath := fmt.Sprintf("single/%s.pdf", rec.CertificateID)
	if s.artifacts != nil {
		if _, err := s.artifacts.Save(docPath, doc); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store certificate document")
		}
	}

	if s.content != nil {
		res, err := s.content.Store(doc)
		if err != nil {
			s.logger.Warn("content store unavailable for single issuance",
				zap.String("certificateId", rec.CertificateID), zap.Error(err))
			rec.StorageError = err.Error()
		} else {
			rec.ContentID = res.ContentID
		}
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
	txHash, err := s.chainGw.Issue(ctx, call)
	if err != nil {
		s.metrics.RecordTransaction(false)
		return nil, appErrors.Wrap(err, appErrors.ErrChainUnavailable.Code, appErrors.ErrChainUnavailable.Status, "chain submission rejected")
	}
	s.metrics.RecordTransaction(true)

	outcome, err := s.chainGw.Confirm(ctx, txHash)
	rec.Chain = &outcome
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrChainUnavailable.Code, appErrors.ErrChainUnavailable.Status, "transaction not confirmed")
	}
	s.metrics.RecordCertificateIssued()

	resp := &dto.IssueCertificateResponse{
		CertificateID: rec.CertificateID,
		TxHash:        outcome.TxHash,
		BlockNumber:   outcome.BlockNumber,
		GasUsed:       outcome.GasUsed,
		ContentID:     rec.ContentID,
		ContentHash:   rec.ContentHash,
		VerifyURL:     s.publicVerifyURL(rec.CertificateID),
	}
	if s.signer != nil && s.artifacts != nil {
		resp.CertificateURL = s.signedArtifactURL(rec.CertificateID, docPath)
	}

	if png, err := render.VerificationQR(resp.VerifyURL); err == nil && s.artifacts != nil {
		qrPath := fmt.Sprintf("single/%s-qr.png", rec.CertificateID)
		if _, err := s.artifacts.Save(qrPath, png); err == nil {
			rec.QRPath = qrPath
			if s.signer != nil {
				resp.QRCodeURL = s.signedArtifactURL(rec.CertificateID, qrPath)
			}
		}
	}

	if s.repo != nil {
		cert := &models.IssuedCertificate{
			CertificateID: rec.CertificateID,
			StudentName:   rec.StudentName,
			StudentID:     rec.StudentID,
			Degree:        rec.Degree,
			Institution:   rec.Institution,
			IssueDate:     rec.IssueDate,
			ContentID:     rec.ContentID,
			ContentHash:   rec.ContentHash,
			TxHash:        outcome.TxHash,
			BlockNumber:   outcome.BlockNumber,
			GasUsed:       outcome.GasUsed,
			CreatedBy:     createdBy,
		}
		if err := s.repo.Save(ctx, cert); err != nil {
			s.logger.Error("failed to persist issued certificate",
				zap.String("certificateId", rec.CertificateID), zap.Error(err))
		}
	}

	if req.Notify && rec.Email != "" && s.notifier != nil && s.notifier.Configured() {
		status, err := s.notifier.SendIssuanceEmail(&rec, resp.VerifyURL)
		resp.NotificationStatus = status
		if err != nil {
			s.logger.Warn("issuance notification failed",
				zap.String("certificateId", rec.CertificateID), zap.Error(err))
		}
	} else {
		resp.NotificationStatus = models.NotificationSkipped
	}

	s.logger.Info("certificate issued",
		zap.String("certificateId", rec.CertificateID),
		zap.String("tx", outcome.TxHash),
		zap.Uint64("block", outcome.BlockNumber))
	return resp, nil
}

// Verify answers the public verification lookup: cache first, then the chain.
// The chain is authoritative; the database only enriches the payload.
func (s *CertificateService) Verify(ctx context.Context, certificateID string) (*models.VerificationResult, error) {
	cacheKey := "verify:" + certificateID

	if s.cache != nil {
		var cached models.VerificationResult
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			s.metrics.RecordCacheLookup(true)
			cached.Source = "cache"
			return &cached, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("verification cache read failed", zap.String("certificateId", certificateID), zap.Error(err))
		}
	}
	s.metrics.RecordCacheLookup(false)

	onChain, err := s.chainGw.GetCertificate(ctx, certificateID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrChainUnavailable.Code, appErrors.ErrChainUnavailable.Status, "verification lookup failed")
	}
	if onChain == nil || !onChain.Exists {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "certificate not found on chain")
	}

	result := &models.VerificationResult{
		CertificateID: certificateID,
		Valid:         true,
		StudentName:   onChain.StudentName,
		StudentID:     onChain.StudentID,
		Degree:        onChain.Degree,
		Institution:   onChain.Institution,
		IssueDate:     onChain.IssueDate,
		ContentID:     onChain.ContentID,
		VerifiedAt:    time.Now().UTC(),
		Source:        "chain",
	}
	if s.content != nil {
		result.GatewayURL = s.content.GatewayURL(onChain.ContentID)
	}
	if s.repo != nil {
		if row, err := s.repo.FindByCertificateID(ctx, certificateID); err == nil {
			result.TxHash = row.TxHash
			result.BlockNumber = row.BlockNumber
		}
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, result, s.config.CacheTTL); err != nil {
			s.logger.Warn("verification cache write failed", zap.String("certificateId", certificateID), zap.Error(err))
		}
	}
	return result, nil
}

// Get returns the persisted row for one certificate.
func (s *CertificateService) Get(ctx context.Context, certificateID string) (*models.IssuedCertificate, error) {
	cert, err := s.repo.FindByCertificateID(ctx, certificateID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "certificate not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load certificate")
	}
	return cert, nil
}

// List returns issued certificates for the caller's filters.
func (s *CertificateService) List(ctx context.Context, query dto.CertificateListQuery) (*dto.CertificateListResponse, error) {
	filter := models.CertificateFilter{
		Institution: query.Institution,
		StudentID:   query.StudentID,
		Search:      query.Search,
		Page:        query.Page,
		PageSize:    query.PageSize,
		SortOrder:   query.SortOrder,
	}
	certs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list certificates")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	totalPages := (total + pageSize - 1) / pageSize

	return &dto.CertificateListResponse{
		Items: certs,
		Pagination: models.Pagination{
			Page:       page,
			PageSize:   pageSize,
			TotalItems: total,
			TotalPages: totalPages,
		},
	}, nil
}

func (s *CertificateService) nextCertificateID(ctx context.Context) string {
	var seq uint64
	if total, err := s.chainGw.TotalIssued(ctx); err != nil {
		s.logger.Warn("could not read issued total for id sequencing", zap.Error(err))
	} else {
		seq = total
	}
	return fmt.Sprintf("CERT-%d-%d-%s", time.Now().UTC().Year(), seq+1, randomSuffix())
}

func (s *CertificateService) publicVerifyURL(certificateID string) string {
	base := strings.TrimRight(s.config.VerificationBaseURL, "/")
	return fmt.Sprintf("%s/verify/%s", base, certificateID)
}

func (s *CertificateService) signedArtifactURL(certificateID, relPath string) string {
	token, _, err := s.signer.Generate(certificateID, relPath)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%s/%s", strings.TrimRight(s.config.ArtifactRoutePrefix, "/"), token)
}
