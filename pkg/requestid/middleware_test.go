package requestid_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/subsync/pkg/requestid"
)

func TestMiddleware(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		inbound string
		reuse   bool
	}{
		{name: "generated when missing", inbound: "", reuse: false},
		{name: "reused when valid", inbound: "evt_delivery-42", reuse: true},
		{name: "replaced when it has spaces", inbound: "bad id", reuse: false},
		{name: "replaced when it injects headers", inbound: "id\r\nX-Evil: 1", reuse: false},
		{name: "replaced when too long", inbound: strings.Repeat("a", 129), reuse: false},
		{name: "kept at max length", inbound: strings.Repeat("a", 128), reuse: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var seen string
			h := requestid.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = requestid.FromContext(r.Context())
			}))
			req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", nil)
			if tt.inbound != "" {
				req.Header[requestid.Header] = []string{tt.inbound}
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			require.NotEmpty(t, seen)
			assert.Equal(t, seen, rec.Header().Get(requestid.Header))
			if tt.reuse {
				assert.Equal(t, tt.inbound, seen)
			} else {
				assert.NotEqual(t, tt.inbound, seen)
			}
		})
	}
}

func TestExtractors(t *testing.T) {
	t.Parallel()

	_, ok := requestid.LoggerExtractor()(context.Background())
	assert.False(t, ok)
	_, ok = requestid.AuditExtractor(context.Background())
	assert.False(t, ok)

	ctx := requestid.WithContext(context.Background(), "req-1")
	attr, ok := requestid.LoggerExtractor()(ctx)
	require.True(t, ok)
	assert.Equal(t, "request_id", attr.Key)
	assert.Equal(t, "req-1", attr.Value.String())

	id, ok := requestid.AuditExtractor(ctx)
	assert.True(t, ok)
	assert.Equal(t, "req-1", id)
}
