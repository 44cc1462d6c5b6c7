package playbilling

import "context"

// VerifiedPurchase is the store's view of a purchase token.
type VerifiedPurchase struct {
	ProductID string
	Credits   int64
}

// Provider verifies store purchase tokens before credits are granted.
type Provider interface {
	VerifyPurchase(ctx context.Context, productID, token string) (*VerifiedPurchase, error)
	Acknowledge(ctx context.Context, productID, token string) error
}

// NoOpProvider trusts the client-reported purchase. Production deployments
// swap in a verifier backed by the Play Developer API.
type NoOpProvider struct {
	// CreditsByProduct maps product ids to their credit grants.
	CreditsByProduct map[string]int64
}

func (p *NoOpProvider) VerifyPurchase(ctx context.Context, productID, token string) (*VerifiedPurchase, error) {
	credits := p.CreditsByProduct[productID]
	return &VerifiedPurchase{ProductID: productID, Credits: credits}, nil
}

func (p *NoOpProvider) Acknowledge(ctx context.Context, productID, token string) error {
	return nil
}
