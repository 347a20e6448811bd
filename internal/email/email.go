// Package email delivers license keys to purchasers over SMTP. Delivery
// is best-effort: the license row is already persisted by the time a
// message is attempted, and a send failure must never fail the webhook.
package email

import (
	"fmt"
	"net/smtp"
	"strings"

	"mcplabs.co.uk/licensing/internal/config"
	"mcplabs.co.uk/licensing/models"
)

type Sender struct {
	host     string
	port     string
	username string
	password string
	from     string
}

func New(cfg *config.Config) *Sender {
	return &Sender{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		username: cfg.SMTPUsername,
		password: cfg.SMTPPassword,
		from:     cfg.EmailFrom,
	}
}

// Enabled reports whether SMTP is configured at all. An unconfigured
// sender is valid; Send just refuses.
func (s *Sender) Enabled() bool {
	return s.host != "" && s.port != "" && s.username != "" && s.password != ""
}

func (s *Sender) Send(to, subject, body string) error {
	if !s.Enabled() {
		return fmt.Errorf("SMTP configuration missing")
	}

	auth := smtp.PlainAuth("", s.username, s.password, s.host)

	msg := []byte(fmt.Sprintf("From: %s\r\n"+
		"To: %s\r\n"+
		"Subject: %s\r\n"+
		"\r\n"+
		"%s\r\n", s.from, to, subject, body))

	addr := fmt.Sprintf("%s:%s", s.host, s.port)
	return smtp.SendMail(addr, auth, s.from, []string{to}, msg)
}

// LicenseBody renders the plain-text purchase confirmation carrying the
// license key.
func LicenseBody(license *models.License, productName string) string {
	return fmt.Sprintf(`Hello,

Thank you for your purchase! Your subscription is now active.

LICENSE DETAILS
License Key: %s
Product: %s
Tier: %s
Amount Paid: %s
Expires: %s

GETTING STARTED
Configure your client with the license key above. Entitlements are
checked automatically; no further activation is needed.

NEED HELP?
Reply to this email or contact us at support@mcplabs.co.uk

Best regards,
The MCP Labs Team`,
		license.Key,
		productName,
		license.Tier.DisplayName(),
		FormatPrice(license.AmountPaid, license.Currency),
		license.ExpiresAt.Format("2 January 2006"),
	)
}

// FormatPrice renders a minor-unit amount in its major currency unit.
func FormatPrice(amountCents int64, currency string) string {
	amount := float64(amountCents) / 100.0

	switch strings.ToUpper(currency) {
	case "USD":
		return fmt.Sprintf("$%.2f", amount)
	case "EUR":
		return fmt.Sprintf("€%.2f", amount)
	case "GBP":
		return fmt.Sprintf("£%.2f", amount)
	default:
		return fmt.Sprintf("%.2f %s", amount, strings.ToUpper(currency))
	}
}
