package email

import (
	"fmt"
	"net/smtp"
	"time"

	"github.com/credana/lending-service/internal/config"
	"github.com/credana/lending-service/internal/models"
	"github.com/jordan-wright/email"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Sender handles sending emails via SMTP
type Sender struct {
	cfg    *config.Config
	logger *logrus.Logger
}

// NewSender creates a new email sender
func NewSender(cfg *config.Config, logger *logrus.Logger) *Sender {
	return &Sender{
		cfg:    cfg,
		logger: logger,
	}
}

func (s *Sender) send(e *email.Email) error {
	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	auth := smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	if err := e.Send(addr, auth); err != nil {
		s.logger.Errorf("Failed to send email to %v: %v", e.To, err)
		return fmt.Errorf("failed to send email: %w", err)
	}
	s.logger.Infof("Email sent to %v: %s", e.To, e.Subject)
	return nil
}

// PaymentStatusChanged notifies the user of a payment lifecycle transition.
func (s *Sender) PaymentStatusChanged(to, username string, intent *models.PaymentIntent) error {
	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{to}

	body := fmt.Sprintf("Dear %s,\n\n", username)
	switch intent.Status {
	case models.PaymentPending:
		e.Subject = "Payment Initiated"
		body += fmt.Sprintf(
			"Your %s payment of %s INR has been initiated.\n"+
				"Reference: %s\n"+
				"We will notify you once it is confirmed.\n",
			intent.Target, intent.Amount.StringFixed(2), intent.Reference,
		)
	case models.PaymentSuccess:
		e.Subject = "Payment Successful"
		body += fmt.Sprintf(
			"Your %s payment of %s INR completed successfully.\n"+
				"Reference: %s\n",
			intent.Target, intent.Amount.StringFixed(2), intent.Reference,
		)
	case models.PaymentFailed:
		e.Subject = "Payment Failed"
		body += fmt.Sprintf(
			"Your %s payment of %s INR could not be completed.\n"+
				"Reference: %s\n"+
				"Reason: %s\n"+
				"No amount has been deducted for this payment.\n",
			intent.Target, intent.Amount.StringFixed(2), intent.Reference, intent.FailureReason,
		)
	}
	body += "\nBest regards,\nCredana"
	e.Text = []byte(body)

	return s.send(e)
}

// SendPaymentReminder sends an installment reminder email
func (s *Sender) SendPaymentReminder(to, username string, dueDate time.Time, amount, penalty decimal.Decimal, isOverdue bool) error {
	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{to}
	if isOverdue {
		e.Subject = "Overdue EMI Notification"
	} else {
		e.Subject = "Upcoming EMI Reminder"
	}

	body := fmt.Sprintf("Dear %s,\n\n", username)
	if isOverdue {
		body += fmt.Sprintf(
			"Your EMI of %s INR was due on %s and is now overdue.\n"+
				"A delay charge of %s INR has been applied.\n"+
				"Please make the payment as soon as possible to avoid further charges.\n",
			amount.StringFixed(2), dueDate.Format("2006-01-02"), penalty.StringFixed(2),
		)
	} else {
		body += fmt.Sprintf(
			"This is a reminder that your EMI of %s INR is due on %s.\n"+
				"Please ensure sufficient funds are available in your wallet.\n",
			amount.StringFixed(2), dueDate.Format("2006-01-02"),
		)
	}
	body += "\nBest regards,\nCredana"
	e.Text = []byte(body)

	return s.send(e)
}
