package notifications

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"

	"github.com/mrz1836/postmark"
)

// EmailConfig holds Postmark credentials and sender identity.
type EmailConfig struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN,required"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN,required"`
	SenderEmail          string `env:"SENDER_EMAIL,required"`
	SupportEmail         string `env:"SUPPORT_EMAIL,required"`
}

// AddressBook resolves a user's email address.
type AddressBook interface {
	EmailFor(ctx context.Context, userID string) (string, error)
}

// AddressBookFunc adapts a function to AddressBook.
type AddressBookFunc func(ctx context.Context, userID string) (string, error)

func (f AddressBookFunc) EmailFor(ctx context.Context, userID string) (string, error) {
	return f(ctx, userID)
}

// postmarkSender is the subset of *postmark.Client used for delivery.
type postmarkSender interface {
	SendEmail(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error)
}

// EmailDeliverer sends notifications as transactional email via Postmark.
type EmailDeliverer struct {
	client  postmarkSender
	config  EmailConfig
	address AddressBook
}

// NewEmailDeliverer creates a Postmark-backed deliverer.
func NewEmailDeliverer(cfg EmailConfig, book AddressBook) (*EmailDeliverer, error) {
	if cfg.PostmarkServerToken == "" || cfg.SenderEmail == "" {
		return nil, errors.Join(ErrInvalidConfig, errors.New("postmark server token and sender email are required"))
	}
	if book == nil {
		return nil, errors.Join(ErrInvalidConfig, errors.New("address book is required"))
	}
	return newEmailDeliverer(postmark.NewClient(cfg.PostmarkServerToken, cfg.PostmarkAccountToken), cfg, book), nil
}

func newEmailDeliverer(client postmarkSender, cfg EmailConfig, book AddressBook) *EmailDeliverer {
	return &EmailDeliverer{client: client, config: cfg, address: book}
}

var emailBody = template.Must(template.New("notification").Parse(
	`<h1>{{.Title}}</h1>{{if .Message}}<p>{{.Message}}</p>{{end}}` +
		`<p>Subscription: {{.SubscriptionID}}</p>` +
		`{{if .Support}}<p>Questions? Reply to this email or write to {{.Support}}.</p>{{end}}`,
))

func (d *EmailDeliverer) Deliver(ctx context.Context, n Notification) error {
	to, err := d.address.EmailFor(ctx, n.UserID)
	if err != nil {
		return errors.Join(ErrFailedToDeliver, err)
	}
	if strings.TrimSpace(to) == "" {
		return ErrNoRecipient
	}

	var body strings.Builder
	if err := emailBody.Execute(&body, struct {
		Notification
		Support string
	}{n, d.config.SupportEmail}); err != nil {
		return errors.Join(ErrFailedToDeliver, err)
	}

	resp, err := d.client.SendEmail(ctx, postmark.Email{
		From:       d.config.SenderEmail,
		ReplyTo:    d.config.SupportEmail,
		To:         to,
		Subject:    n.Title,
		Tag:        string(n.Kind),
		HTMLBody:   body.String(),
		TrackOpens: true,
		TrackLinks: "HtmlOnly",
	})
	if err != nil {
		return errors.Join(ErrFailedToDeliver, err)
	}
	if resp.ErrorCode > 0 {
		return errors.Join(ErrFailedToDeliver, fmt.Errorf("postmark error %d: %s", resp.ErrorCode, resp.Message))
	}
	return nil
}
