// Package rewardsvc is the chain's boundary to the external reward-issuing
// service. The chain pulls one reward unit at a time once the revenue pool
// crosses its threshold; pull ids are assigned on-chain and units arrive
// back asynchronously as signed reward_delivery transactions quoting them.
package rewardsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Issuer requests reward units from the external service. The chain-assigned
// pullID correlates the asynchronous delivery.
type Issuer interface {
	Pull(ctx context.Context, pullID string, amount uint32, recipient string) error
}

// HTTPClient talks to a remote reward-issuing service over HTTP.
type HTTPClient struct {
	url string
	hc  *http.Client
	log *zap.Logger
}

// NewHTTPClient creates a client for the issuer at url.
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

type pullBody struct {
	PullID    string `json:"pull_id"`
	Amount    uint32 `json:"amount"`
	Recipient string `json:"recipient"`
}

// Pull requests amount reward units for recipient under pullID.
func (c *HTTPClient) Pull(ctx context.Context, pullID string, amount uint32, recipient string) error {
	body, err := json.Marshal(pullBody{PullID: pullID, Amount: amount, Recipient: recipient})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/pull", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("reward pull: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("reward pull: status %d", resp.StatusCode)
	}

	c.log.Debug("reward pull submitted",
		zap.String("pull_id", pullID),
		zap.String("recipient", recipient))
	return nil
}
