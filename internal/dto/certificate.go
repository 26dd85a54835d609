package dto

import "github.com/certchain-io/certchain-api/internal/models"

// IssueCertificateRequest is the single-issuance payload.
type IssueCertificateRequest struct {
	StudentName string `json:"studentName" validate:"required,max=200"`
	StudentID   string `json:"studentId" validate:"required,max=100"`
	Degree      string `json:"degree" validate:"required,max=200"`
	Institution string `json:"institution" validate:"required,max=200"`
	IssueDate   string `json:"issueDate" validate:"required"`
	Email       string `json:"email" validate:"omitempty,email"`
	TemplateID  string `json:"templateId"`
	Notify      bool   `json:"notify"`
}

// IssueCertificateResponse reports the outcome of a single issuance.
type IssueCertificateResponse struct {
	CertificateID      string                    `json:"certificateId"`
	TxHash             string                    `json:"txHash"`
	BlockNumber        uint64                    `json:"blockNumber"`
	GasUsed            uint64                    `json:"gasUsed"`
	ContentID          string                    `json:"contentId,omitempty"`
	ContentHash        string                    `json:"contentHash,omitempty"`
	CertificateURL     string                    `json:"certificateUrl,omitempty"`
	QRCodeURL          string                    `json:"qrCodeUrl,omitempty"`
	VerifyURL          string                    `json:"verifyUrl"`
	NotificationStatus models.NotificationStatus `json:"notificationStatus,omitempty"`
}

// CertificateListQuery captures listing query parameters.
type CertificateListQuery struct {
	Institution string `form:"institution"`
	StudentID   string `form:"studentId"`
	Search      string `form:"search"`
	Page        int    `form:"page"`
	PageSize    int    `form:"pageSize"`
	SortOrder   string `form:"sortOrder"`
}

// CertificateListResponse pairs rows with pagination metadata.
type CertificateListResponse struct {
	Items      []models.IssuedCertificate `json:"items"`
	Pagination models.Pagination          `json:"pagination"`
}
