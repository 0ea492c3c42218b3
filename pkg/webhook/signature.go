package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// Header names used by the HMAC scheme.
const (
	HeaderSignature = "X-Webhook-Signature"
	HeaderTimestamp = "X-Webhook-Timestamp"
)

const maxBodySize = 1 << 20

// SignatureHeaders carries a signature and the timestamp it is bound to.
type SignatureHeaders struct {
	Signature string
	Timestamp int64
}

// Apply sets the signature headers on h.
func (s SignatureHeaders) Apply(h http.Header) {
	h.Set(HeaderSignature, s.Signature)
	h.Set(HeaderTimestamp, strconv.FormatInt(s.Timestamp, 10))
}

// SignPayload signs payload as HMAC-SHA256(secret, timestamp + "." + payload).
func SignPayload(secret string, payload []byte, at time.Time) (SignatureHeaders, error) {
	if secret == "" {
		return SignatureHeaders{}, fmt.Errorf("%w: secret is required", ErrInvalidConfiguration)
	}
	if len(payload) == 0 {
		return SignatureHeaders{}, fmt.Errorf("%w: payload cannot be empty", ErrInvalidPayload)
	}
	ts := at.Unix()
	return SignatureHeaders{Signature: sign(secret, ts, payload), Timestamp: ts}, nil
}

// VerifySignature checks headers against payload. maxAge > 0 rejects
// stale timestamps and timestamps more than a minute in the future.
func VerifySignature(secret string, payload []byte, headers SignatureHeaders, maxAge time.Duration, now time.Time) error {
	if secret == "" {
		return fmt.Errorf("%w: secret is required", ErrInvalidConfiguration)
	}
	if headers.Signature == "" {
		return fmt.Errorf("%w: signature is missing", ErrInvalidSignature)
	}
	if maxAge > 0 {
		age := now.Sub(time.Unix(headers.Timestamp, 0))
		if age > maxAge {
			return fmt.Errorf("%w: signature timestamp too old: %v", ErrInvalidSignature, age)
		}
		if age < -time.Minute {
			return fmt.Errorf("%w: signature timestamp is in the future", ErrInvalidSignature)
		}
	}
	expected := sign(secret, headers.Timestamp, payload)
	if !hmac.Equal([]byte(expected), []byte(headers.Signature)) {
		return fmt.Errorf("%w: signature mismatch", ErrInvalidSignature)
	}
	return nil
}

func sign(secret string, ts int64, payload []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(h, "%d.", ts)
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// ExtractSignatureHeaders reads the signature headers from h.
func ExtractSignatureHeaders(h http.Header) (SignatureHeaders, error) {
	sig := SignatureHeaders{Signature: h.Get(HeaderSignature)}
	if raw := h.Get(HeaderTimestamp); raw != "" {
		ts, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return SignatureHeaders{}, fmt.Errorf("%w: invalid timestamp format", ErrInvalidSignature)
		}
		sig.Timestamp = ts
	}
	if sig.Signature == "" || sig.Timestamp == 0 {
		return SignatureHeaders{}, fmt.Errorf("%w: missing required signature headers", ErrInvalidSignature)
	}
	return sig, nil
}

// HMACParser accepts events already in the normalized shape, signed with a
// shared secret. It serves internal producers such as a billing bridge or
// replay tooling.
type HMACParser struct {
	secret string
	maxAge time.Duration
	now    func() time.Time
}

var _ Parser = (*HMACParser)(nil)

// NewHMACParser creates a parser. maxAge <= 0 disables the replay window.
func NewHMACParser(secret string, maxAge time.Duration) (*HMACParser, error) {
	if secret == "" {
		return nil, fmt.Errorf("%w: secret is required", ErrInvalidConfiguration)
	}
	return &HMACParser{secret: secret, maxAge: maxAge, now: time.Now}, nil
}

// signedEvent is the wire form accepted by HMACParser.
type signedEvent struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Source     string            `json:"source,omitempty"`
	SubjectID  string            `json:"subject_id"`
	Status     string            `json:"status,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
	Data       map[string]string `json:"data,omitempty"`
}

// MarshalEvent encodes ev in the form HMACParser accepts.
func MarshalEvent(ev Event) ([]byte, error) {
	return json.Marshal(signedEvent{
		ID:         ev.ID,
		Type:       ev.Type,
		Source:     ev.Source,
		SubjectID:  ev.SubjectID,
		Status:     ev.Status,
		OccurredAt: ev.OccurredAt,
		Data:       ev.Data,
	})
}

func (p *HMACParser) Parse(r *http.Request) (Event, error) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return Event{}, errors.Join(ErrInvalidPayload, err)
	}
	headers, err := ExtractSignatureHeaders(r.Header)
	if err != nil {
		return Event{}, err
	}
	if err := VerifySignature(p.secret, payload, headers, p.maxAge, p.now()); err != nil {
		return Event{}, err
	}

	var se signedEvent
	if err := json.Unmarshal(payload, &se); err != nil {
		return Event{}, errors.Join(ErrInvalidPayload, err)
	}
	if se.ID == "" || se.Type == "" {
		return Event{}, fmt.Errorf("%w: id and type are required", ErrInvalidPayload)
	}
	if se.Source == "" {
		se.Source = "hmac"
	}
	return Event{
		ID:         se.ID,
		Type:       se.Type,
		Source:     se.Source,
		SubjectID:  se.SubjectID,
		Status:     se.Status,
		OccurredAt: se.OccurredAt,
		Data:       se.Data,
	}, nil
}
