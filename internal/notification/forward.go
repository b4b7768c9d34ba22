package notification

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/t77yq/kioskmon/internal/model"
)

// ErrorNotice is the body of POST /api/notify/error
type ErrorNotice struct {
	Source    string    `json:"source"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ResourceNotice is the body of POST /api/notify/resource
type ResourceNotice struct {
	Resource  string        `json:"resource"`
	Level     model.Reading `json:"level"`
	Message   string        `json:"message"`
	Timestamp time.Time     `json:"timestamp"`
}

// ForwardChannel posts alerts to a remote kioskmon server, which pushes
// them to its subscribers
type ForwardChannel struct {
	baseURL string
	secret  string
	client  *http.Client
}

// NewForwardChannel creates a forward channel. If secret is non-empty,
// requests are signed with HMAC-SHA256.
func NewForwardChannel(baseURL, secret string, timeout time.Duration) (*ForwardChannel, error) {
	if baseURL == "" {
		return nil, errors.New("forward channel: server url required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ForwardChannel{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (f *ForwardChannel) Name() string { return "forward" }

// Send posts to /api/notify/error for error alerts and /api/notify/resource otherwise
func (f *ForwardChannel) Send(ctx context.Context, n model.Notification) error {
	var (
		path string
		body any
	)
	if n.Alert.Kind == model.AlertKindError {
		path = "/api/notify/error"
		body = ErrorNotice{
			Source:    string(n.Alert.Resource),
			Message:   n.Alert.Message,
			Timestamp: n.Timestamp,
		}
	} else {
		path = "/api/notify/resource"
		body = ResourceNotice{
			Resource:  string(n.Alert.Resource),
			Level:     n.Alert.Level,
			Message:   n.Alert.Message,
			Timestamp: n.Timestamp,
		}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal forward payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create forward request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if f.secret != "" {
		req.Header.Set(SignatureHeader, "sha256="+Sign(data, f.secret))
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("forward alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}
	return nil
}

// SignatureHeader carries the HMAC of forwarded request bodies
const SignatureHeader = "X-Signature-256"

// Sign computes the hex HMAC-SHA256 of body
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a "sha256=<hex>" header value against body
func VerifySignature(body []byte, secret, header string) bool {
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	return hmac.Equal([]byte(sig), []byte(Sign(body, secret)))
}
