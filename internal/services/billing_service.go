package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rtmcdo/schedulecoaches-web/internal/config"
	"github.com/rtmcdo/schedulecoaches-web/internal/models"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
)

const defaultLookupKey = "pickleball_monthly"

var (
	ErrPriceNotFound    = errors.New("price not found for lookup key")
	ErrNoBillingAccount = errors.New("user has no billing account")
)

// BillingService creates hosted checkout and billing portal sessions.
// The Stripe client is injected so tests can point it at a stub
// backend.
type BillingService struct {
	sc     *client.API
	cfg    *config.Config
	prices map[string]string
}

func NewBillingService(sc *client.API, cfg *config.Config) *BillingService {
	prices := map[string]string{}
	if cfg.StripePriceID != "" {
		prices[defaultLookupKey] = cfg.StripePriceID
	}
	return &BillingService{sc: sc, cfg: cfg, prices: prices}
}

// CheckoutParams is the caller-supplied part of a checkout session.
type CheckoutParams struct {
	LookupKey    string
	ReferralCode string
	Metadata     map[string]string
}

// CreateCheckoutSession builds a subscription checkout session for the
// user and returns the hosted page URL. The user's database id and
// email ride along as session metadata so the completion webhook can
// find the row again.
func (s *BillingService) CreateCheckoutSession(ctx context.Context, user *models.User, p CheckoutParams) (string, error) {
	lookupKey := p.LookupKey
	if lookupKey == "" {
		lookupKey = defaultLookupKey
	}

	priceID, err := s.resolvePrice(ctx, lookupKey)
	if err != nil {
		return "", err
	}

	params := &stripe.CheckoutSessionParams{
		Params:                   stripe.Params{Context: ctx},
		BillingAddressCollection: stripe.String("auto"),
		Mode:                     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:    stripe.String(s.cfg.Domain + "/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:     stripe.String(s.cfg.Domain + "/sign-up"),
		CustomerEmail: stripe.String(user.Email),
	}

	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}
	// Written last so callers cannot spoof the correlation keys.
	params.AddMetadata("user_id", user.ID.String())
	params.AddMetadata("user_email", user.Email)
	if p.ReferralCode != "" {
		params.AddMetadata("referral_code", p.ReferralCode)
	}

	session, err := s.sc.CheckoutSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create checkout session: %w", err)
	}

	slog.Info("checkout session created", "user_id", user.ID, "session_id", session.ID)
	return session.URL, nil
}

// CreatePortalSession returns a billing portal URL for a user who has
// already completed a payment.
func (s *BillingService) CreatePortalSession(ctx context.Context, user *models.User) (string, error) {
	if user.StripeCustomerID == nil || *user.StripeCustomerID == "" {
		return "", ErrNoBillingAccount
	}

	// from=stripe stops the frontend from bouncing back to the portal.
	params := &stripe.BillingPortalSessionParams{
		Params:    stripe.Params{Context: ctx},
		Customer:  stripe.String(*user.StripeCustomerID),
		ReturnURL: stripe.String(s.cfg.Domain + "/account?from=stripe"),
	}

	session, err := s.sc.BillingPortalSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create portal session: %w", err)
	}

	slog.Info("portal session created", "user_id", user.ID, "session_id", session.ID)
	return session.URL, nil
}

// resolvePrice maps a lookup key to a price id through the configured
// map, falling back to a Stripe price search when enabled.
func (s *BillingService) resolvePrice(ctx context.Context, lookupKey string) (string, error) {
	if priceID, ok := s.prices[lookupKey]; ok {
		return priceID, nil
	}

	if !s.cfg.StripePriceLookup {
		return "", ErrPriceNotFound
	}

	listParams := &stripe.PriceListParams{
		ListParams: stripe.ListParams{Context: ctx},
		LookupKeys: stripe.StringSlice([]string{lookupKey}),
	}
	listParams.AddExpand("data.product")

	iter := s.sc.Prices.List(listParams)
	for iter.Next() {
		return iter.Price().ID, nil
	}
	if err := iter.Err(); err != nil {
		return "", fmt.Errorf("failed to list prices: %w", err)
	}
	return "", ErrPriceNotFound
}
