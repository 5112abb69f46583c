// Package oracle is the chain's boundary to the external randomness service.
// Request ids are assigned on-chain (from the triggering transaction hash) so
// every replica records the same pending-request ledger; the chain then tells
// the oracle which id to answer, and the randomness arrives back as a signed
// oracle_callback transaction.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Oracle accepts randomness requests. Submit hands the chain-assigned
// request id to the service; the eventual callback must quote the same id.
type Oracle interface {
	Submit(ctx context.Context, requestID string) error
}

// HTTPClient talks to a remote randomness oracle over HTTP.
type HTTPClient struct {
	url string
	hc  *http.Client
	log *zap.Logger
}

// NewHTTPClient creates a client for the oracle at url.
func NewHTTPClient(url string, log *zap.Logger) *HTTPClient {
	if log == nil {
		log = zap.NewNop()
	}
	return &HTTPClient{
		url: url,
		hc:  &http.Client{Timeout: 10 * time.Second},
		log: log,
	}
}

type submitBody struct {
	RequestID string `json:"request_id"`
}

// Submit registers requestID with the oracle.
func (c *HTTPClient) Submit(ctx context.Context, requestID string) error {
	body, err := json.Marshal(submitBody{RequestID: requestID})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/request", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("oracle request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("oracle request: status %d", resp.StatusCode)
	}

	c.log.Debug("oracle request submitted", zap.String("request_id", requestID))
	return nil
}
