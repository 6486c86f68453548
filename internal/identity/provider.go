package identity

import "strings"

// Provider is a trusted external identity source.
type Provider string

const (
	ProviderEntra     Provider = "entra"
	ProviderGoogle    Provider = "google"
	ProviderMicrosoft Provider = "microsoft"
	ProviderApple     Provider = "apple"
)

// Column returns the Users column that stores this provider's subject id.
func (p Provider) Column() string {
	switch p {
	case ProviderGoogle:
		return "google_account_id"
	case ProviderMicrosoft:
		return "microsoft_account_id"
	case ProviderApple:
		return "apple_account_id"
	default:
		return "entra_account_id"
	}
}

// UsesDirectoryID reports whether logins from this provider also
// populate the legacy azure_ad_id column the mobile app reads.
func (p Provider) UsesDirectoryID() bool {
	return p == ProviderEntra || p == ProviderMicrosoft
}

// msaTenantID is the fixed tenant for Microsoft personal accounts.
const msaTenantID = "9188040d-6c67-4c5b-b112-36a304b66dad"

// providerForIssuer maps a token's issuer to its provider. Entra is the
// default; every non-social token comes from the External ID tenant.
func providerForIssuer(issuer string) Provider {
	switch {
	case strings.Contains(issuer, "accounts.google.com"):
		return ProviderGoogle
	case strings.Contains(issuer, "appleid.apple.com"):
		return ProviderApple
	case strings.Contains(issuer, msaTenantID):
		return ProviderMicrosoft
	default:
		return ProviderEntra
	}
}
