package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certchain-io/certchain-api/internal/models"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

func certColumns() []string {
	return []string{"id", "certificate_id", "student_name", "student_id", "degree", "institution", "issue_date", "content_id", "content_hash", "tx_hash", "block_number", "gas_used", "created_by", "created_at"}
}

func TestSaveCertificate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCertificateRepository(db)

	mock.ExpectExec("INSERT INTO certificates").WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Save(context.Background(), &models.IssuedCertificate{
		CertificateID: "CERT-2026-42-X7KP",
		StudentName:   "Ada Lovelace",
		StudentID:     "STU-001",
		Degree:        "BSc Computer Science",
		Institution:   "Test University",
		IssueDate:     time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC),
		TxHash:        "0xabc",
		BlockNumber:   128,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByCertificateID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCertificateRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(certColumns()).
		AddRow("1", "CERT-2026-42-X7KP", "Ada Lovelace", "STU-001", "BSc Computer Science", "Test University", now, "QmTest", "aabb", "0xabc", 128, 92100, "issuer-1", now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, certificate_id, student_name, student_id, degree, institution, issue_date, content_id, content_hash, tx_hash, block_number, gas_used, created_by, created_at FROM certificates WHERE certificate_id = $1 LIMIT 1")).
		WithArgs("CERT-2026-42-X7KP").
		WillReturnRows(rows)

	cert, err := repo.FindByCertificateID(context.Background(), "CERT-2026-42-X7KP")
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", cert.StudentName)
	assert.Equal(t, uint64(128), cert.BlockNumber)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListCertificates(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCertificateRepository(db)

	now := time.Now()
	listRows := sqlmock.NewRows(certColumns()).
		AddRow("1", "CERT-2026-42-X7KP", "Ada Lovelace", "STU-001", "BSc Computer Science", "Test University", now, "QmTest", "aabb", "0xabc", 128, 92100, "issuer-1", now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM certificates WHERE 1=1 ORDER BY created_at DESC LIMIT 20 OFFSET 0")).
		WillReturnRows(listRows)

	countRows := sqlmock.NewRows([]string{"count"}).AddRow(1)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM certificates WHERE 1=1")).WillReturnRows(countRows)

	certs, total, err := repo.List(context.Background(), models.CertificateFilter{})
	require.NoError(t, err)
	assert.Len(t, certs, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListCertificatesByInstitution(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCertificateRepository(db)

	listRows := sqlmock.NewRows(certColumns())
	mock.ExpectQuery(regexp.QuoteMeta("FROM certificates WHERE 1=1 AND institution = $1 ORDER BY created_at DESC LIMIT 20 OFFSET 0")).
		WithArgs("Test University").
		WillReturnRows(listRows)

	countRows := sqlmock.NewRows([]string{"count"}).AddRow(0)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM certificates WHERE 1=1 AND institution = $1")).
		WithArgs("Test University").
		WillReturnRows(countRows)

	certs, total, err := repo.List(context.Background(), models.CertificateFilter{Institution: "Test University"})
	require.NoError(t, err)
	assert.Empty(t, certs)
	assert.Zero(t, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}
