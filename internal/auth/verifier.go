package auth

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nelsonmaranda/tubonge-chat-app/internal/domain"
)

var (
	// ErrMissingCredential is returned when no credential is presented at
	// handshake time. Absence is an error, never an anonymous identity.
	ErrMissingCredential = errors.New("missing credential")
	// ErrInvalidCredential covers structural, signature, and expiry failures.
	ErrInvalidCredential = errors.New("invalid credential")
)

// Claims are the JWT claims issued by the credential issuer.
type Claims struct {
	jwt.RegisteredClaims
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// Verifier checks bearer credentials against the shared secret known only to
// the server process. It runs once per connection, before admission.
type Verifier struct {
	secret []byte
	issuer string
}

func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer}
}

// Verify decodes the credential, checks its signature and expiry, and yields
// the stable identity it speaks for.
func (v *Verifier) Verify(credential string) (domain.Identity, error) {
	if credential == "" {
		return domain.Identity{}, ErrMissingCredential
	}

	token, err := jwt.ParseWithClaims(credential, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidCredential
		}
		return v.secret, nil
	})
	if err != nil {
		return domain.Identity{}, ErrInvalidCredential
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return domain.Identity{}, ErrInvalidCredential
	}

	if v.issuer != "" && claims.Issuer != v.issuer {
		return domain.Identity{}, ErrInvalidCredential
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" || claims.Username == "" {
		return domain.Identity{}, ErrInvalidCredential
	}

	return domain.Identity{ID: userID, Username: claims.Username}, nil
}
