package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"anarchy.ttfm/paytr/tokens"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	Issuer = "paytr"
	// Gin context key holding the authenticated caller address
	CallerKey = "paytr.caller"
)

var (
	ErrMissingToken   = errors.New("missing bearer token")
	ErrInvalidToken   = errors.New("invalid token")
	ErrMissingSubject = errors.New("token subject is required")
)

// Claims identify the account an API call acts for
type Claims struct {
	jwt.RegisteredClaims
}

// Signer issues and validates HS256 caller tokens
type Signer struct {
	secret []byte
	now    func() time.Time
}

func New(secret []byte) (s *Signer) {
	return &Signer{secret: secret, now: time.Now}
}

// Issue signs a token acting for address, valid for ttl
func (s *Signer) Issue(address string, ttl time.Duration) (token string, err error) {
	address = tokens.NormalizeAddress(address)
	if tokens.IsZeroAddress(address) {
		return "", ErrMissingSubject
	}

	now := s.now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   address,
			Issuer:    Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

// Validate returns the caller address of a token
func (s *Signer) Validate(token string) (address string, err error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return "", ErrInvalidToken
	}
	if claims.Subject == "" {
		return "", ErrMissingSubject
	}
	return tokens.NormalizeAddress(claims.Subject), nil
}

// Middleware rejects requests without a valid bearer token and stores the caller
func (s *Signer) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		header := ctx.GetHeader("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || token == "" {
			ctx.AbortWithError(http.StatusUnauthorized, ErrMissingToken)
			return
		}

		address, err := s.Validate(token)
		if err != nil {
			ctx.AbortWithError(http.StatusUnauthorized, err)
			return
		}
		ctx.Set(CallerKey, address)
		ctx.Next()
	}
}

// Caller returns the address stored by Middleware
func Caller(ctx *gin.Context) (address string) {
	return ctx.GetString(CallerKey)
}
