package services

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/wondr/rembg/internal/apperrors"
	"github.com/wondr/rembg/internal/models"
)

const bearerPrefix = "Bearer "

// TokenVerifier validates HS256 bearer tokens issued by the identity provider
// and extracts the ledger identity. It is safe for concurrent use.
type TokenVerifier struct {
	secret []byte
	claim  string
	now    func() time.Time
}

func NewTokenVerifier(secret, identityClaim string) *TokenVerifier {
	if identityClaim == "" {
		identityClaim = "email"
	}
	return &TokenVerifier{
		secret: []byte(secret),
		claim:  identityClaim,
		now:    time.Now,
	}
}

// Verify checks an Authorization header value of the form "Bearer <token>".
func (v *TokenVerifier) Verify(authorization string) (models.Identity, error) {
	tokenString, ok := strings.CutPrefix(authorization, bearerPrefix)
	tokenString = strings.TrimSpace(tokenString)
	if !ok || tokenString == "" {
		return models.Identity{}, apperrors.New(apperrors.MissingOrMalformed, "Invalid Authorization header", nil)
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return models.Identity{}, apperrors.New(apperrors.TokenExpired, "Token expired", err)
		}
		return models.Identity{}, apperrors.New(apperrors.TokenInvalid, "Invalid token", err)
	}

	key, _ := claims[v.claim].(string)
	if strings.TrimSpace(key) == "" {
		return models.Identity{}, apperrors.Newf(apperrors.MissingClaim, "%s missing in token", claimLabel(v.claim))
	}

	identity := models.Identity{Key: key}
	identity.Email, _ = claims["email"].(string)
	identity.Subject, _ = claims["sub"].(string)
	return identity, nil
}

func claimLabel(claim string) string {
	if claim == "email" {
		return "Email"
	}
	return claim
}
