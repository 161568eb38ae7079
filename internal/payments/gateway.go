package payments

import (
	"context"
)

const (
	ProviderMpesa  = "mpesa"
	ProviderStripe = "stripe"
)

// Gateway starts a payment with an external provider. The outcome arrives
// later through the provider's callback.
type Gateway interface {
	Name() string
	Authorize(ctx context.Context, req AuthorizeRequest) (*Authorization, error)
}

// AuthorizeRequest amounts are whole currency units.
type AuthorizeRequest struct {
	Phone       string
	Email       string
	Amount      int64
	Reference   string
	Description string
}

type Authorization struct {
	// TransactionID is the provider id the callback will carry.
	TransactionID   string
	ClientSecret    string
	CustomerMessage string
}
