package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/loykin/vmpilot/internal/history"
)

// Sink indexes run events into OpenSearch. Each event is stored under a
// deterministic id so a retried Send overwrites instead of duplicating.
type Sink struct {
	client   *http.Client
	baseURL  string
	index    string
	user     string
	password string
}

type Option func(*Sink)

// WithBasicAuth sets credentials sent with every request.
func WithBasicAuth(user, password string) Option {
	return func(s *Sink) { s.user, s.password = user, password }
}

// WithTimeout overrides the per-request timeout (5s by default).
func WithTimeout(d time.Duration) Option {
	return func(s *Sink) {
		if d > 0 {
			s.client.Timeout = d
		}
	}
}

func New(baseURL, index string, opts ...Option) *Sink {
	s := &Sink{
		client:  &http.Client{Timeout: 5 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		index:   index,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// DocID returns the document id used for e.
func DocID(e history.Event) string {
	if e.RunID == "" {
		return ""
	}
	return e.RunID + "-" + string(e.Type)
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	method := http.MethodPost
	u := fmt.Sprintf("%s/%s/_doc", s.baseURL, url.PathEscape(s.index))
	if id := DocID(e); id != "" {
		method = http.MethodPut
		u += "/" + url.PathEscape(id)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.user != "" {
		req.SetBasicAuth(s.user, s.password)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if m := strings.TrimSpace(string(msg)); m != "" {
			return fmt.Errorf("opensearch sink status %d: %s", resp.StatusCode, m)
		}
		return fmt.Errorf("opensearch sink status %d", resp.StatusCode)
	}
	return nil
}
