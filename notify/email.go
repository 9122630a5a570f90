package notify

import (
	"crypto/tls"
	"fmt"
	"net/smtp"
	"os"
	"path/filepath"

	"github.com/bgentry/go-netrc/netrc"
	"github.com/jordan-wright/email"
)

// EmailConfig describes the SMTP submission endpoint and the fixed alert
// addresses. Credentials come from the netrc file, matching the submission
// host.
type EmailConfig struct {
	Host      string
	Port      int
	From      string
	To        string
	Subject   string
	Body      string
	NetrcPath string
}

// Mailer submits the motion alert over TLS-on-connect SMTP (smtps).
type Mailer struct {
	cfg EmailConfig
}

// NewMailer creates a mailer for the given submission endpoint.
func NewMailer(cfg EmailConfig) *Mailer {
	return &Mailer{cfg: cfg}
}

// Send composes the fixed alert message and submits it. Each call dials a
// fresh connection; alerts are rare enough that connection reuse buys
// nothing.
func (m *Mailer) Send() error {
	login, password, err := m.credentials()
	if err != nil {
		return fmt.Errorf("notify: %w", err)
	}

	msg := email.NewEmail()
	msg.From = m.cfg.From
	msg.To = []string{m.cfg.To}
	msg.Subject = m.cfg.Subject
	msg.Text = []byte(m.cfg.Body)

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	auth := smtp.PlainAuth("", login, password, m.cfg.Host)
	if err := msg.SendWithTLS(addr, auth, &tls.Config{ServerName: m.cfg.Host}); err != nil {
		return fmt.Errorf("notify: send: %w", err)
	}
	return nil
}

// credentials resolves the submission login from the netrc file.
func (m *Mailer) credentials() (login, password string, err error) {
	path := m.cfg.NetrcPath
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", "", fmt.Errorf("resolve netrc path: %w", err)
		}
		path = filepath.Join(home, ".netrc")
	}

	rc, err := netrc.ParseFile(path)
	if err != nil {
		return "", "", fmt.Errorf("parse netrc: %w", err)
	}
	machine := rc.FindMachine(m.cfg.Host)
	if machine == nil {
		return "", "", fmt.Errorf("netrc: no entry for %s", m.cfg.Host)
	}
	return machine.Login, machine.Password, nil
}
