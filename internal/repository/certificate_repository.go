package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/certchain-io/certchain-api/internal/models"
)

// CertificateRepository manages persistence for certificates anchored on chain.
// Rows here mirror successful chain submissions; the chain remains the source
// of truth for verification.
type CertificateRepository struct {
	db *sqlx.DB
}

// NewCertificateRepository constructs a CertificateRepository.
func NewCertificateRepository(db *sqlx.DB) *CertificateRepository {
	return &CertificateRepository{db: db}
}

// Save inserts an issued certificate row.
func (r *CertificateRepository) Save(ctx context.Context, cert *models.IssuedCertificate) error {
	if cert.ID == "" {
		cert.ID = uuid.NewString()
	}
	if cert.CreatedAt.IsZero() {
		cert.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO certificates (id, certificate_id, student_name, student_id, degree, institution, issue_date, content_id, content_hash, tx_hash, block_number, gas_used, created_by, created_at)
        VALUES (:id, :certificate_id, :student_name, :student_id, :degree, :institution, :issue_date, :content_id, :content_hash, :tx_hash, :block_number, :gas_used, :created_by, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, cert); err != nil {
		return fmt.Errorf("save certificate: %w", err)
	}
	return nil
}

// SaveAll inserts every row in one transaction. Used at the end of a batch run
// so a partially written batch never surfaces in listings.
func (r *CertificateRepository) SaveAll(ctx context.Context, certs []models.IssuedCertificate) error {
	if len(certs) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch insert: %w", err)
	}
	const query = `INSERT INTO certificates (id, certificate_id, student_name, student_id, degree, institution, issue_date, content_id, content_hash, tx_hash, block_number, gas_used, created_by, created_at)
        VALUES (:id, :certificate_id, :student_name, :student_id, :degree, :institution, :issue_date, :content_id, :content_hash, :tx_hash, :block_number, :gas_used, :created_by, :created_at)`
	for i := range certs {
		if certs[i].ID == "" {
			certs[i].ID = uuid.NewString()
		}
		if certs[i].CreatedAt.IsZero() {
			certs[i].CreatedAt = time.Now().UTC()
		}
		if _, err := tx.NamedExecContext(ctx, query, &certs[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("save certificate %s: %w", certs[i].CertificateID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch insert: %w", err)
	}
	return nil
}

// FindByCertificateID fetches one certificate by its public identifier.
func (r *CertificateRepository) FindByCertificateID(ctx context.Context, certificateID string) (*models.IssuedCertificate, error) {
	const query = `SELECT id, certificate_id, student_name, student_id, degree, institution, issue_date, content_id, content_hash, tx_hash, block_number, gas_used, created_by, created_at FROM certificates WHERE certificate_id = $1 LIMIT 1`
	var cert models.IssuedCertificate
	if err := r.db.GetContext(ctx, &cert, query, certificateID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find certificate: %w", err)
	}
	return &cert, nil
}

// List returns certificates matching the provided filters with a total count.
func (r *CertificateRepository) List(ctx context.Context, filter models.CertificateFilter) ([]models.IssuedCertificate, int, error) {
	baseQuery := `FROM certificates WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Institution != "" {
		conditions = append(conditions, fmt.Sprintf("institution = $%d", len(args)+1))
		args = append(args, filter.Institution)
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(student_name) LIKE $%d OR LOWER(certificate_id) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT id, certificate_id, student_name, student_id, degree, institution, issue_date, content_id, content_hash, tx_hash, block_number, gas_used, created_by, created_at %s ORDER BY created_at %s LIMIT %d OFFSET %d", baseQuery, sortOrder, pageSize, offset)

	var certs []models.IssuedCertificate
	if err := r.db.SelectContext(ctx, &certs, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list certificates: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count certificates: %w", err)
	}

	return certs, total, nil
}

// ExistsByCertificateID reports whether the identifier is already persisted.
func (r *CertificateRepository) ExistsByCertificateID(ctx context.Context, certificateID string) (bool, error) {
	const query = `SELECT 1 FROM certificates WHERE certificate_id = $1 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, certificateID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check certificate id: %w", err)
	}
	return true, nil
}
