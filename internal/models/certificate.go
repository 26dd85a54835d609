package models

import "time"

// NotificationStatus captures the outcome of the delivery attempt for one record.
type NotificationStatus string

const (
	NotificationSkipped NotificationStatus = "skipped"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
)

// TransactionOutcome is the terminal chain result for one record, written
// exactly once by the submission phase.
type TransactionOutcome struct {
	Success     bool   `json:"success"`
	TxHash      string `json:"txHash,omitempty"`
	BlockNumber uint64 `json:"blockNumber,omitempty"`
	GasUsed     uint64 `json:"gasUsed,omitempty"`
	Error       string `json:"error,omitempty"`
}

// CertificateRecord is one row of intended issuance. Input fields are
// immutable once validated; stage-result fields are write-once, set by the
// pipeline phase that produced them.
type CertificateRecord struct {
	Row         int       `json:"row"`
	StudentName string    `json:"studentName"`
	StudentID   string    `json:"studentId"`
	Degree      string    `json:"degree"`
	Institution string    `json:"institution"`
	IssueDate   time.Time `json:"issueDate"`
	Email       string    `json:"email,omitempty"`

	CertificateID string `json:"certificateId,omitempty"`
	ContentHash   string `json:"contentHash,omitempty"`
	ContentID     string `json:"contentId,omitempty"`

	DocumentGenerated bool   `json:"documentGenerated"`
	DocumentError     string `json:"documentError,omitempty"`
	StorageError      string `json:"storageError,omitempty"`

	Chain *TransactionOutcome `json:"chain,omitempty"`

	QRPath        string `json:"-"`
	ArtifactError string `json:"artifactError,omitempty"`

	NotificationStatus NotificationStatus `json:"notificationStatus,omitempty"`
	NotificationError  string             `json:"notificationError,omitempty"`
}

// ChainEligible reports whether the record may reach chain submission.
// A certificate is never anchored without a rendered document, even when the
// content identifier is empty due to a storage failure.
func (r *CertificateRecord) ChainEligible() bool {
	return r.DocumentGenerated
}

// ChainSucceeded reports whether the record's chain stage succeeded.
func (r *CertificateRecord) ChainSucceeded() bool {
	return r.Chain != nil && r.Chain.Success
}

// IssuedCertificate is the persisted row for a certificate that reached the chain.
type IssuedCertificate struct {
	ID            string    `db:"id" json:"id"`
	CertificateID string    `db:"certificate_id" json:"certificateId"`
	StudentName   string    `db:"student_name" json:"studentName"`
	StudentID     string    `db:"student_id" json:"studentId"`
	Degree        string    `db:"degree" json:"degree"`
	Institution   string    `db:"institution" json:"institution"`
	IssueDate     time.Time `db:"issue_date" json:"issueDate"`
	ContentID     string    `db:"content_id" json:"contentId,omitempty"`
	ContentHash   string    `db:"content_hash" json:"contentHash,omitempty"`
	TxHash        string    `db:"tx_hash" json:"txHash"`
	BlockNumber   uint64    `db:"block_number" json:"blockNumber"`
	GasUsed       uint64    `db:"gas_used" json:"gasUsed"`
	CreatedBy     string    `db:"created_by" json:"createdBy,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
}

// VerificationResult is the public verification payload. It is cached
// verbatim; Source distinguishes a cache hit from a fresh chain read.
type VerificationResult struct {
	CertificateID string    `json:"certificateId"`
	Valid         bool      `json:"valid"`
	StudentName   string    `json:"studentName,omitempty"`
	StudentID     string    `json:"studentId,omitempty"`
	Degree        string    `json:"degree,omitempty"`
	Institution   string    `json:"institution,omitempty"`
	IssueDate     int64     `json:"issueDate,omitempty"`
	ContentID     string    `json:"contentId,omitempty"`
	GatewayURL    string    `json:"gatewayUrl,omitempty"`
	TxHash        string    `json:"txHash,omitempty"`
	BlockNumber   uint64    `json:"blockNumber,omitempty"`
	VerifiedAt    time.Time `json:"verifiedAt"`
	Source        string    `json:"source"`
}

// CertificateFilter narrows issued-certificate listings.
type CertificateFilter struct {
	Institution string
	StudentID   string
	Search      string
	Page        int
	PageSize    int
	SortOrder   string
}

// ChainCertificate is the registry contract's view of one certificate.
type ChainCertificate struct {
	CertificateID string `json:"certificateId"`
	StudentName   string `json:"studentName"`
	StudentID     string `json:"studentId"`
	Degree        string `json:"degree"`
	Institution   string `json:"institution"`
	IssueDate     int64  `json:"issueDate"`
	ContentID     string `json:"contentId,omitempty"`
	Exists        bool   `json:"exists"`
}
