package service

import (
	"fmt"

	"go.uber.org/zap"
	gomail "gopkg.in/gomail.v2"

	"github.com/certchain-io/certchain-api/internal/models"
)

// SMTPConfig carries the mail transport settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type mailDialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// NotificationService delivers issuance emails. Delivery is best-effort:
// a failed send is recorded on the record, never surfaced as a pipeline error.
type NotificationService struct {
	dialer mailDialer
	config SMTPConfig
	logger *zap.Logger
}

// NewNotificationService constructs a NotificationService. With an empty host
// the service reports unconfigured and every send is skipped.
func NewNotificationService(config SMTPConfig, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &NotificationService{config: config, logger: logger}
	if config.Host != "" {
		svc.dialer = gomail.NewDialer(config.Host, config.Port, config.Username, config.Password)
	}
	return svc
}

// Configured reports whether a mail transport is available.
func (s *NotificationService) Configured() bool {
	return s != nil && s.dialer != nil
}

// SendIssuanceEmail notifies one recipient that their certificate is on chain.
// The returned status is data for the batch result set.
func (s *NotificationService) SendIssuanceEmail(rec *models.CertificateRecord, verifyURL string) (models.NotificationStatus, error) {
	if !s.Configured() || rec.Email == "" {
		return models.NotificationSkipped, nil
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", s.config.From)
	msg.SetHeader("To", rec.Email)
	msg.SetHeader("Subject", fmt.Sprintf("Your certificate %s has been issued", rec.CertificateID))
	msg.SetBody("text/html", issuanceBody(rec, verifyURL))

	if err := s.dialer.DialAndSend(msg); err != nil {
		s.logger.Warn("issuance email failed",
			zap.String("certificateId", rec.CertificateID),
			zap.String("email", rec.Email),
			zap.Error(err))
		return models.NotificationFailed, err
	}
	return models.NotificationSent, nil
}

func issuanceBody(rec *models.CertificateRecord, verifyURL string) string {
	return fmt.Sprintf(`<p>Dear %s,</p>
<p>Your certificate for <strong>%s</strong> from %s has been issued and recorded on the blockchain.</p>
<p>Certificate ID: <strong>%s</strong></p>
<p>Anyone can verify its authenticity at: <a href="%s">%s</a></p>
<p>This message was sent automatically; replies are not monitored.</p>`,
		rec.StudentName, rec.Degree, rec.Institution, rec.CertificateID, verifyURL, verifyURL)
}
