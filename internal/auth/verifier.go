// Package auth verifies the bearer credentials presented during the
// presence handshake. Token issuance happens in the account service; this
// package only consumes the verification contract.
package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenPrefix is the self-identifying prefix clients prepend to tokens.
const tokenPrefix = "eg1~"

// Reason classifies a failed verification. Peers always see the same
// failure; the reason is for logging and tests.
type Reason string

const (
	// ReasonInvalid covers malformed tokens, bad signatures, and
	// missing claims.
	ReasonInvalid Reason = "invalid"
	// ReasonExpired means the token's validity window has passed.
	ReasonExpired Reason = "expired"
)

// Verification is the outcome of checking one bearer token.
type Verification struct {
	Valid     bool
	AccountID string
	Reason    Reason
}

// Verifier checks HMAC-signed bearer tokens.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

// NewVerifier creates a Verifier for tokens signed with the given secret.
//
// Precondition: secret must be non-empty.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret), now: time.Now}
}

// Verify checks the token's signature and validity window and extracts
// the account identity.
//
// Postcondition: Returns Valid=true with a non-empty AccountID, or
// Valid=false with a Reason.
func (v *Verifier) Verify(token string) Verification {
	token = strings.TrimPrefix(token, tokenPrefix)

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, v.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return Verification{Valid: false, Reason: ReasonInvalid}
	}

	accountID, _ := claims["accountId"].(string)
	if accountID == "" {
		return Verification{Valid: false, Reason: ReasonInvalid}
	}

	expired, err := v.expired(claims)
	if err != nil {
		return Verification{Valid: false, Reason: ReasonInvalid}
	}
	if expired {
		return Verification{Valid: false, Reason: ReasonExpired}
	}

	return Verification{Valid: true, AccountID: accountID}
}

func (v *Verifier) keyFunc(*jwt.Token) (interface{}, error) {
	return v.secret, nil
}

// expired applies the creation_date + hours_expire validity window the
// issuer stamps instead of a standard exp claim.
func (v *Verifier) expired(claims jwt.MapClaims) (bool, error) {
	creation, _ := claims["creation_date"].(string)
	if creation == "" {
		return false, fmt.Errorf("missing creation_date claim")
	}
	created, err := time.Parse(time.RFC3339, creation)
	if err != nil {
		return false, fmt.Errorf("parsing creation_date: %w", err)
	}

	hours, ok := claims["hours_expire"].(float64)
	if !ok {
		return false, fmt.Errorf("missing hours_expire claim")
	}

	expiry := created.Add(time.Duration(hours * float64(time.Hour)))
	return !expiry.After(v.now()), nil
}
