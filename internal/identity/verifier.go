package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rtmcdo/schedulecoaches-web/internal/config"
)

var (
	ErrInvalidToken          = errors.New("invalid token")
	ErrTokenExpired          = errors.New("token has expired")
	ErrProviderNotConfigured = errors.New("identity provider not configured")
)

// Claims are the normalized identity attributes extracted from a
// verified provider token.
type Claims struct {
	ProviderID string
	Provider   Provider
	Email      string
	FirstName  string
	LastName   string
	Name       string
	Groups     []string
}

// ProviderConfig describes how to verify one provider's tokens.
type ProviderConfig struct {
	Issuers   []string
	JWKSURL   string
	Audiences []string
}

// Verifier validates bearer tokens against the configured providers and
// returns normalized claims. Dispatch is by the token's (unverified)
// issuer; the signature is then checked against that provider's JWKS.
type Verifier struct {
	providers map[Provider]ProviderConfig
	jwks      *JWKSClient
}

func NewVerifier(cfg *config.Config) *Verifier {
	providers := map[Provider]ProviderConfig{
		ProviderEntra: {
			Issuers:   []string{cfg.EntraIssuer()},
			JWKSURL:   cfg.EntraJWKSURL(),
			Audiences: []string{cfg.EntraClientID},
		},
		ProviderGoogle: {
			Issuers:   []string{"https://accounts.google.com", "accounts.google.com"},
			JWKSURL:   "https://www.googleapis.com/oauth2/v3/certs",
			Audiences: cfg.GoogleClientIDs,
		},
		ProviderApple: {
			Issuers:   []string{"https://appleid.apple.com"},
			JWKSURL:   "https://appleid.apple.com/auth/keys",
			Audiences: []string{cfg.AppleClientID},
		},
		ProviderMicrosoft: {
			Issuers:   []string{"https://login.microsoftonline.com/" + msaTenantID + "/v2.0"},
			JWKSURL:   "https://login.microsoftonline.com/common/discovery/v2.0/keys",
			Audiences: []string{cfg.MicrosoftClientID},
		},
	}
	return NewVerifierWith(providers, NewJWKSClient(cfg.VerifyTimeout))
}

// NewVerifierWith builds a Verifier from an explicit provider table.
func NewVerifierWith(providers map[Provider]ProviderConfig, jwks *JWKSClient) *Verifier {
	return &Verifier{providers: providers, jwks: jwks}
}

// Verify checks the token's signature, issuer, audience and expiry, and
// returns the normalized claims.
func (v *Verifier) Verify(ctx context.Context, rawToken string) (*Claims, error) {
	unverified, _, err := jwt.NewParser().ParseUnverified(rawToken, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	issuer, _ := unverified.Claims.GetIssuer()
	provider := providerForIssuer(issuer)

	pc, ok := v.providers[provider]
	if !ok || pc.JWKSURL == "" || len(pc.Audiences) == 0 || pc.Audiences[0] == "" {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotConfigured, provider)
	}

	token, err := jwt.Parse(rawToken, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("token header has no kid")
		}
		return v.jwks.GetKey(ctx, pc.JWKSURL, kid)
	}, jwt.WithValidMethods([]string{"RS256"}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	iss, _ := claims.GetIssuer()
	if !containsString(pc.Issuers, iss) {
		return nil, fmt.Errorf("%w: unexpected issuer %s", ErrInvalidToken, iss)
	}

	aud, _ := claims.GetAudience()
	if !audienceAllowed(aud, pc.Audiences) {
		return nil, fmt.Errorf("%w: unexpected audience", ErrInvalidToken)
	}

	return normalize(provider, claims), nil
}

// normalize extracts the per-provider claim shape into Claims.
//
// Entra External ID puts custom attributes behind an extension_ prefix
// and the email inside an emails array; Google uses given_name and
// family_name; Apple tokens carry no name at all after first sign-up.
func normalize(provider Provider, claims jwt.MapClaims) *Claims {
	c := &Claims{Provider: provider}

	switch provider {
	case ProviderGoogle:
		c.ProviderID = strClaim(claims, "sub")
		c.Email = strClaim(claims, "email")
		c.Name = strClaim(claims, "name")
		c.FirstName = strClaim(claims, "given_name")
		c.LastName = strClaim(claims, "family_name")

	case ProviderApple:
		c.ProviderID = strClaim(claims, "sub")
		c.Email = strClaim(claims, "email")
		if c.Email != "" {
			c.Name = strings.Split(c.Email, "@")[0]
		}

	default: // entra and microsoft share the Azure AD claim shape
		c.ProviderID = strClaim(claims, "oid")
		if c.ProviderID == "" {
			c.ProviderID = strClaim(claims, "sub")
		}
		c.Email = firstEmail(claims)
		c.Name = strClaim(claims, "name")
		c.FirstName = strClaim(claims, "extension_FirstName")
		if c.FirstName == "" {
			c.FirstName = strClaim(claims, "given_name")
		}
		c.LastName = strClaim(claims, "extension_LastName")
		if c.LastName == "" {
			c.LastName = strClaim(claims, "family_name")
		}
		c.Groups = strSliceClaim(claims, "groups")
	}

	// Fall back to splitting the display name when the token has no
	// structured name fields.
	if c.FirstName == "" && c.Name != "" {
		parts := strings.Fields(c.Name)
		c.FirstName = parts[0]
		if c.LastName == "" && len(parts) > 1 {
			c.LastName = strings.Join(parts[1:], " ")
		}
	}
	if c.Name == "" {
		c.Name = strings.TrimSpace(c.FirstName + " " + c.LastName)
	}

	return c
}

func firstEmail(claims jwt.MapClaims) string {
	if emails := strSliceClaim(claims, "emails"); len(emails) > 0 {
		return emails[0]
	}
	return strClaim(claims, "email")
}

func strClaim(claims jwt.MapClaims, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}

func strSliceClaim(claims jwt.MapClaims, key string) []string {
	raw, ok := claims[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func containsString(list []string, val string) bool {
	for _, item := range list {
		if item == val {
			return true
		}
	}
	return false
}

func audienceAllowed(aud jwt.ClaimStrings, allowed []string) bool {
	for _, a := range aud {
		if containsString(allowed, a) {
			return true
		}
	}
	return false
}
