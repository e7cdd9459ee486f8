package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/briefly/tracker/internal/signallog"
)

const signalsEndpoint = "/api/track-signals"

// HTTPSender posts signal batches to the tracking endpoint.
type HTTPSender struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// SenderOption configures an HTTPSender.
type SenderOption func(*HTTPSender)

// WithSenderHTTPClient overrides the HTTP client.
func WithSenderHTTPClient(hc *http.Client) SenderOption {
	return func(s *HTTPSender) { s.httpClient = hc }
}

// WithSenderLogger attaches a logger.
func WithSenderLogger(l *zap.Logger) SenderOption {
	return func(s *HTTPSender) { s.logger = l }
}

// NewHTTPSender creates a sender targeting baseURL.
func NewHTTPSender(baseURL string, opts ...SenderOption) *HTTPSender {
	s := &HTTPSender{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type signalsRequest struct {
	Signals []signallog.Signal `json:"signals"`
}

// Send transmits the batch in the background and discards the outcome.
func (s *HTTPSender) Send(signals []signallog.Signal) {
	go func() {
		if err := s.post(context.Background(), signals); err != nil {
			s.logger.Warn("background signal send failed", zap.Error(err))
		}
	}()
}

// SendAndConfirm transmits the batch and reports the outcome.
func (s *HTTPSender) SendAndConfirm(ctx context.Context, signals []signallog.Signal) error {
	return s.post(ctx, signals)
}

func (s *HTTPSender) post(ctx context.Context, signals []signallog.Signal) error {
	body, err := json.Marshal(signalsRequest{Signals: signals})
	if err != nil {
		return fmt.Errorf("encode signals: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+signalsEndpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send signals: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("send signals: status %d: %s", resp.StatusCode, snippet)
	}
	return nil
}
