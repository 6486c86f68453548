package dto

type CheckoutRequest struct {
	LookupKey    string            `json:"lookup_key"`
	ReferralCode string            `json:"referral_code"`
	Metadata     map[string]string `json:"metadata"`
}

type SessionResponse struct {
	URL string `json:"url"`
}
