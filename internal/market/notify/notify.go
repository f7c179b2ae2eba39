// Package notify sends the plain text emails of the marketplace.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/songzhibin97/qwork/pkg/market"
)

// Message is a plain text email
type Message struct {
	To      string
	Subject string
	Body    string
}

// Notifier delivers messages
type Notifier interface {
	Send(ctx context.Context, msg *Message) error
}

// Mailer renders the marketplace emails and hands them to a Notifier
type Mailer struct {
	notifier  Notifier
	clientURL string
}

// NewMailer creates a mailer whose links point at clientURL
func NewMailer(notifier Notifier, clientURL string) *Mailer {
	return &Mailer{notifier: notifier, clientURL: strings.TrimRight(clientURL, "/")}
}

// SendActivation emails the account activation link
func (m *Mailer) SendActivation(ctx context.Context, to, token string) error {
	link := fmt.Sprintf("%s/api/auth/activate-account/%s", m.clientURL, token)
	return m.notifier.Send(ctx, &Message{
		To:      to,
		Subject: "Activate Your Q Work Account",
		Body: "Hello,\n\n" +
			"Thank you for signing up with Q Work.\n" +
			"To activate your account, open the following link:\n\n" +
			link + "\n\n" +
			"If you did not sign up for Q Work, please ignore this email.\n",
	})
}

// SendPasswordReset emails the password reset link
func (m *Mailer) SendPasswordReset(ctx context.Context, to, token string) error {
	link := fmt.Sprintf("%s/reset-password.html?token=%s", m.clientURL, token)
	return m.notifier.Send(ctx, &Message{
		To:      to,
		Subject: "Reset Your Q Work Password",
		Body: "Hello,\n\n" +
			"We received a request to reset the password of your Q Work account.\n" +
			"Open the following link within one hour to choose a new password:\n\n" +
			link + "\n\n" +
			"If you did not request this, you can safely ignore this email.\n",
	})
}

// SendAdminTemporaryPassword emails a freshly generated admin password
func (m *Mailer) SendAdminTemporaryPassword(ctx context.Context, to, password string) error {
	return m.notifier.Send(ctx, &Message{
		To:      to,
		Subject: "Your Q Work Admin Temporary Password",
		Body: "Hello,\n\n" +
			"Your temporary admin password is: " + password + "\n\n" +
			"Please log in and change it immediately.\n",
	})
}

// SendPortfolioStatus tells an owner that a moderator changed the status
// of their portfolio
func (m *Mailer) SendPortfolioStatus(ctx context.Context, to, title string, status market.PortfolioStatus) error {
	return m.notifier.Send(ctx, &Message{
		To:      to,
		Subject: "Your Q Work Portfolio Status Changed",
		Body: "Hello,\n\n" +
			fmt.Sprintf("The status of your portfolio %q is now %s.\n", title, status),
	})
}
