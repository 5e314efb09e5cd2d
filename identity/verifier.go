package identity

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"

	"colist-api/domain"
)

// Verifier validates incoming JWT tokens and resolves them to users.
type Verifier struct {
	JWKS       *keyfunc.JWKS
	Audience   string
	Issuer     string
	TestMode   bool
	TestSecret []byte
}

// NewVerifier creates a new Verifier instance.
func NewVerifier(jwks *keyfunc.JWKS, audience, issuer string) *Verifier {
	v := &Verifier{JWKS: jwks, Audience: audience, Issuer: issuer}
	if testMode, err := strconv.ParseBool(os.Getenv("AUTH_TEST_MODE")); err == nil && testMode {
		secret := os.Getenv("TEST_JWT_SECRET")
		if secret == "" {
			panic("TEST_JWT_SECRET must be set when AUTH_TEST_MODE=1")
		}
		v.TestMode = true
		v.TestSecret = []byte(secret)
	}
	return v
}

// UserFromAuthHeader extracts the user identity from the Authorization header.
// The token must carry both a subject and an email claim; the email is the
// collaborator-matching key, so a token without one cannot act on lists.
func (v *Verifier) UserFromAuthHeader(h string) (domain.User, error) {
	if h == "" {
		return domain.User{}, errors.New("missing authorization header")
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 {
		return domain.User{}, errors.New("bad auth header")
	}

	tokenStr := parts[1]
	if strings.Count(tokenStr, ".") != 2 {
		return domain.User{}, errors.New("bad auth header")
	}

	if v.TestMode {
		token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("invalid signing method")
			}
			return v.TestSecret, nil
		})
		if err != nil {
			return domain.User{}, err
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return domain.User{}, errors.New("invalid claims")
		}
		return userFromClaims(claims)
	}

	parser := jwt.NewParser(jwt.WithValidMethods([]string{"RS256"}))
	token, err := parser.Parse(tokenStr, v.JWKS.Keyfunc)
	if err != nil {
		return domain.User{}, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return domain.User{}, errors.New("invalid claims")
	}

	now := time.Now().Add(time.Minute).Unix()
	if !claims.VerifyExpiresAt(now, true) {
		return domain.User{}, errors.New("token expired")
	}
	if !claims.VerifyNotBefore(now, false) {
		return domain.User{}, errors.New("token not valid yet")
	}
	if !claims.VerifyAudience(v.Audience, false) {
		return domain.User{}, errors.New("invalid audience")
	}
	if !claims.VerifyIssuer(v.Issuer, false) {
		return domain.User{}, errors.New("invalid issuer")
	}
	return userFromClaims(claims)
}

func userFromClaims(claims jwt.MapClaims) (domain.User, error) {
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return domain.User{}, errors.New("missing sub")
	}
	email, ok := claims["email"].(string)
	if !ok || email == "" {
		return domain.User{}, errors.New("missing email claim")
	}
	return domain.User{ID: sub, Email: email}, nil
}
