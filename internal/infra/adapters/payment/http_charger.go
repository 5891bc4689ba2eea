// File: internal/infra/adapters/payment/http_charger.go
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"cuenty-subscription-engine/internal/config"
	"cuenty-subscription-engine/internal/domain"
	"cuenty-subscription-engine/internal/domain/ports/adapter"
)

// Ensure HTTPCharger implements adapter.PaymentCharger
var _ adapter.PaymentCharger = (*HTTPCharger)(nil)

// HTTPCharger posts charges to the payment gateway. A declined charge is an
// expected business outcome and maps to domain.ErrChargeDeclined; transport
// failures and timeouts surface as-is so the caller treats them as failed.
type HTTPCharger struct {
	url    string
	apiKey string
	client *http.Client
	log    *zerolog.Logger
}

func NewHTTPCharger(cfg config.PaymentConfig, logger *zerolog.Logger) *HTTPCharger {
	l := logger.With().Str("component", "HTTPCharger").Logger()
	return &HTTPCharger{
		url:    cfg.ChargeURL,
		apiKey: cfg.APIKey,
		client: &http.Client{},
		log:    &l,
	}
}

func (c *HTTPCharger) Name() string { return "http" }

type chargeRequest struct {
	CustomerID     string `json:"customer_id"`
	SubscriptionID string `json:"subscription_id"`
	Amount         int64  `json:"amount"`
}

type chargeResponse struct {
	Ref      string `json:"ref"`
	Declined bool   `json:"declined"`
	Message  string `json:"message"`
}

func (c *HTTPCharger) Charge(ctx context.Context, customerID, subscriptionID string, amount int64) (string, error) {
	body, err := json.Marshal(chargeRequest{
		CustomerID:     customerID,
		SubscriptionID: subscriptionID,
		Amount:         amount,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusPaymentRequired {
		return "", domain.ErrChargeDeclined
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("charge gateway status %d", resp.StatusCode)
	}
	var out chargeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.Declined {
		c.log.Info().Str("subscription_id", subscriptionID).Str("message", out.Message).Msg("charge declined")
		return "", domain.ErrChargeDeclined
	}
	return out.Ref, nil
}
