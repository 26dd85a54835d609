package models

import "time"

// BatchStatus captures the batch job lifecycle.
type BatchStatus string

const (
	BatchStatusValidated  BatchStatus = "validated"
	BatchStatusProcessing BatchStatus = "processing"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusFailed     BatchStatus = "failed"
)

// BatchPhase names the strictly sequential pipeline phases.
type BatchPhase string

const (
	PhaseGeneratingIDs       BatchPhase = "generating_ids"
	PhaseGeneratingDocuments BatchPhase = "generating_documents"
	PhaseStoringContent      BatchPhase = "storing_content"
	PhaseChainSubmission     BatchPhase = "chain_submission"
	PhaseGeneratingArtifacts BatchPhase = "generating_secondary_artifacts"
	PhaseNotifying           BatchPhase = "notifying"
)

// PhaseProgress is the poll-readable progress descriptor for the active phase.
type PhaseProgress struct {
	Phase   BatchPhase `json:"phase"`
	Current int        `json:"current"`
	Total   int        `json:"total"`
	Percent int        `json:"percent"`
}

// BatchSummary aggregates per-stage counters over the whole batch.
type BatchSummary struct {
	Total                 int `json:"total"`
	DocumentsGenerated    int `json:"documentsGenerated"`
	ContentStored         int `json:"contentStored"`
	BlockchainSuccess     int `json:"blockchainSuccess"`
	BlockchainFailed      int `json:"blockchainFailed"`
	NotificationsSent     int `json:"notificationsSent"`
	NotificationsFailed   int `json:"notificationsFailed"`
	NotificationsSkipped  int `json:"notificationsSkipped"`
	ArtifactsGenerated    int `json:"artifactsGenerated"`
	DurationMilliseconds  int64 `json:"durationMs"`
}

// BatchRecordResult is the per-record entry of the terminal result set,
// compiled once after all phases complete and joined by original row position.
type BatchRecordResult struct {
	Row                int                `json:"row"`
	CertificateID      string             `json:"certificateId"`
	StudentName        string             `json:"studentName"`
	StudentID          string             `json:"studentId"`
	Success            bool               `json:"success"`
	DocumentGenerated  bool               `json:"documentGenerated"`
	DocumentError      string             `json:"documentError,omitempty"`
	ContentID          string             `json:"contentId,omitempty"`
	ContentHash        string             `json:"contentHash,omitempty"`
	StorageError       string             `json:"storageError,omitempty"`
	TxHash             string             `json:"txHash,omitempty"`
	BlockNumber        uint64             `json:"blockNumber,omitempty"`
	GasUsed            uint64             `json:"gasUsed,omitempty"`
	ChainError         string             `json:"chainError,omitempty"`
	QRCodeURL          string             `json:"qrCodeUrl,omitempty"`
	CertificateURL     string             `json:"certificateUrl,omitempty"`
	ArtifactError      string             `json:"artifactError,omitempty"`
	NotificationStatus NotificationStatus `json:"notificationStatus,omitempty"`
	NotificationError  string             `json:"notificationError,omitempty"`
}

// BatchJob is one batch-processing run, exclusively owned by the job store.
type BatchJob struct {
	ID            string              `json:"id"`
	Status        BatchStatus         `json:"status"`
	TemplateID    string              `json:"templateId"`
	NotifyEnabled bool                `json:"notifyEnabled"`
	StagingFile   string              `json:"-"`
	CreatedBy     string              `json:"createdBy,omitempty"`
	Records       []CertificateRecord `json:"-"`
	Progress      *PhaseProgress      `json:"progress,omitempty"`
	Results       []BatchRecordResult `json:"results,omitempty"`
	Summary       *BatchSummary       `json:"summary,omitempty"`
	Error         string              `json:"error,omitempty"`
	CreatedAt     time.Time           `json:"createdAt"`
	CompletedAt   *time.Time          `json:"completedAt,omitempty"`
}

// Terminal reports whether the job reached a final state.
func (j *BatchJob) Terminal() bool {
	return j.Status == BatchStatusCompleted || j.Status == BatchStatusFailed
}

// RowError preserves the 1-based source row number for user-facing display.
type RowError struct {
	Row    int      `json:"row"`
	Errors []string `json:"errors"`
}

// RowWarning flags a suspicious but non-blocking condition on a source row.
type RowWarning struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// ValidationReport is the validator's output over one uploaded batch.
type ValidationReport struct {
	ValidRecords []CertificateRecord `json:"-"`
	ValidCount   int                 `json:"validCount"`
	InvalidCount int                 `json:"invalidCount"`
	InvalidRows  []RowError          `json:"invalidRows,omitempty"`
	Warnings     []RowWarning        `json:"warnings,omitempty"`
}
