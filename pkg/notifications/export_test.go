package notifications

import (
	"context"

	"github.com/mrz1836/postmark"
)

func NewEmailDelivererWithClient(client interface {
	SendEmail(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error)
}, cfg EmailConfig, book AddressBook) *EmailDeliverer {
	return newEmailDeliverer(client, cfg, book)
}
