package stripe

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripeapi "github.com/stripe/stripe-go/v82"

	"github.com/dmitrymomot/subsync/pkg/webhook"
)

func TestNormalizeEvent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		typ     stripeapi.EventType
		object  string
		want    string
		subject string
		status  string
	}{
		{
			name:    "subscription deleted",
			typ:     "customer.subscription.deleted",
			object:  `{"id":"sub_1","object":"subscription","status":"canceled","customer":"cus_1"}`,
			want:    webhook.EventSubscriptionCanceled,
			subject: "sub_1",
			status:  "canceled",
		},
		{
			name:    "pause collection",
			typ:     "customer.subscription.updated",
			object:  `{"id":"sub_2","object":"subscription","status":"active","pause_collection":{"behavior":"void"}}`,
			want:    webhook.EventSubscriptionPaused,
			subject: "sub_2",
			status:  "paused",
		},
		{
			name:    "invoice failed",
			typ:     "invoice.payment_failed",
			object:  `{"id":"in_1","object":"invoice","parent":{"subscription_details":{"subscription":"sub_3"}}}`,
			want:    webhook.EventPaymentFailed,
			subject: "sub_3",
		},
		{
			name:   "unmapped",
			typ:    "charge.refunded",
			object: `{"id":"ch_1","object":"charge"}`,
			want:   "charge.refunded",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ev, err := normalizeEvent(stripeapi.Event{
				ID:      "evt_1",
				Type:    tt.typ,
				Created: 1748772000,
				Data:    &stripeapi.EventData{Raw: json.RawMessage(tt.object)},
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, ev.Type)
			assert.Equal(t, tt.subject, ev.SubjectID)
			assert.Equal(t, tt.status, ev.Status)
			assert.Equal(t, "stripe", ev.Source)
			assert.False(t, ev.OccurredAt.IsZero())
		})
	}
}

func TestNewWebhookParser_RequiresSecret(t *testing.T) {
	t.Parallel()
	_, err := NewWebhookParser(" ")
	assert.ErrorIs(t, err, webhook.ErrInvalidConfiguration)
}
