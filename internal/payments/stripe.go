package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// Provider is the value recorded on orders paid through this adapter.
	Provider = "stripe"

	defaultBaseURL = "https://api.stripe.com/v1"
)

// StripeGateway talks to the Stripe PaymentIntents API. Responses are
// converted into the typed Intent at this boundary.
type StripeGateway struct {
	secretKey string
	baseURL   string
	client    *http.Client
}

// NewStripeGateway returns a gateway authenticated with the given secret key.
// An empty key yields a gateway whose calls fail with ErrGatewayUnavailable,
// so an unconfigured deployment degrades to a clear error instead of a panic.
func NewStripeGateway(secretKey string) *StripeGateway {
	return &StripeGateway{
		secretKey: secretKey,
		baseURL:   defaultBaseURL,
		client:    &http.Client{Timeout: 15 * time.Second},
	}
}

// intentPayload is the subset of Stripe's payment_intent object we read.
type intentPayload struct {
	ID           string            `json:"id"`
	ClientSecret string            `json:"client_secret"`
	Status       string            `json:"status"`
	Metadata     map[string]string `json:"metadata"`
	Error        *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (g *StripeGateway) CreateIntent(ctx context.Context, amountMinorUnits int64, currency string, metadata map[string]string) (*Intent, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amountMinorUnits, 10))
	form.Set("currency", strings.ToLower(currency))
	form.Set("automatic_payment_methods[enabled]", "true")
	for k, v := range metadata {
		form.Set(fmt.Sprintf("metadata[%s]", k), v)
	}
	if orderID, ok := metadata["orderId"]; ok && len(orderID) >= 6 {
		form.Set("description", fmt.Sprintf("Huskies order %s", orderID[len(orderID)-6:]))
	}

	var payload intentPayload
	if err := g.do(ctx, http.MethodPost, "/payment_intents", form, &payload); err != nil {
		return nil, err
	}
	return payload.toIntent(), nil
}

func (g *StripeGateway) RetrieveIntent(ctx context.Context, intentID string) (*Intent, error) {
	var payload intentPayload
	path := "/payment_intents/" + url.PathEscape(intentID)
	if err := g.do(ctx, http.MethodGet, path, nil, &payload); err != nil {
		return nil, err
	}
	return payload.toIntent(), nil
}

func (g *StripeGateway) do(ctx context.Context, method, path string, form url.Values, out *intentPayload) error {
	if g.secretKey == "" {
		return fmt.Errorf("%w: no secret key configured", ErrGatewayUnavailable)
	}

	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build gateway request: %w", err)
	}
	req.SetBasicAuth(g.secretKey, "")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode gateway response: %w", err)
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: gateway returned %d", ErrGatewayUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		msg := "request rejected"
		if out.Error != nil {
			msg = out.Error.Message
		}
		return fmt.Errorf("gateway error (%d): %s", resp.StatusCode, msg)
	}
	return nil
}

func (p *intentPayload) toIntent() *Intent {
	md := p.Metadata
	if md == nil {
		md = map[string]string{}
	}
	return &Intent{
		ID:           p.ID,
		ClientSecret: p.ClientSecret,
		Status:       p.Status,
		Metadata:     md,
	}
}
