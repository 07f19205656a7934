package payments

import (
	"context"
	"errors"
)

// Intent statuses the lifecycle manager cares about. The gateway's own
// vocabulary is passed through verbatim; success is exactly "succeeded".
const StatusSucceeded = "succeeded"

// ErrGatewayUnavailable indicates the gateway could not be reached or is not
// configured. Callers must not assume a failed CreateIntent definitely failed
// remotely; operators reconcile ambiguous cases against gateway-side records.
var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

// Intent is the typed boundary representation of a gateway payment intent.
// The gateway's loose payload never crosses this boundary.
type Intent struct {
	ID           string
	ClientSecret string
	Status       string
	Metadata     map[string]string
}

// Gateway is the contract the order lifecycle manager expects from the
// payment provider.
type Gateway interface {
	// CreateIntent opens a charge attempt for the given amount in minor
	// currency units (cents).
	CreateIntent(ctx context.Context, amountMinorUnits int64, currency string, metadata map[string]string) (*Intent, error)

	// RetrieveIntent fetches the current intent state. Read-only and safe to
	// call repeatedly.
	RetrieveIntent(ctx context.Context, intentID string) (*Intent, error)
}
