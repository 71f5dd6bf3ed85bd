package auth

import (
	"crypto/rsa"
	"crypto/subtle"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/radio-control/rigd/internal/config"
)

// TokenVerifier turns a bearer token into claims.
type TokenVerifier interface {
	VerifyToken(token string) (*Claims, error)
}

var errInvalidToken = errors.New("invalid token")

// StaticVerifier accepts exactly one shared token.
type StaticVerifier struct {
	token []byte
}

// NewStaticVerifier returns a verifier for token. The token must not be empty.
func NewStaticVerifier(token string) (*StaticVerifier, error) {
	if token == "" {
		return nil, fmt.Errorf("static auth requires a token")
	}
	return &StaticVerifier{token: []byte(token)}, nil
}

// VerifyToken compares in constant time. A match carries all scopes.
func (v *StaticVerifier) VerifyToken(token string) (*Claims, error) {
	if subtle.ConstantTimeCompare([]byte(token), v.token) != 1 {
		return nil, errInvalidToken
	}
	return &Claims{Subject: "static", Scopes: AllScopes()}, nil
}

// VerifierConfig holds configuration for JWT verification.
type VerifierConfig struct {
	Algorithm    string // "RS256" or "HS256"
	SecretKey    string
	PublicKeyPEM string
	Issuer       string
	Audience     string
}

// Verifier checks JWTs signed with one algorithm.
type Verifier struct {
	config    VerifierConfig
	publicKey *rsa.PublicKey
}

// NewVerifier creates a new JWT verifier.
func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	v := &Verifier{config: cfg}
	switch cfg.Algorithm {
	case "RS256":
		if err := v.loadPublicKeyFromPEM(cfg.PublicKeyPEM); err != nil {
			return nil, fmt.Errorf("failed to load public key from PEM: %w", err)
		}
	case "HS256":
		if cfg.SecretKey == "" {
			return nil, fmt.Errorf("HS256 requires secret key")
		}
	default:
		return nil, fmt.Errorf("unsupported algorithm: %s", cfg.Algorithm)
	}
	return v, nil
}

// FromConfig builds the verifier for the configured mode. Mode none
// returns a nil verifier.
func FromConfig(cfg config.AuthConfig) (TokenVerifier, error) {
	switch strings.ToLower(cfg.Mode) {
	case "", config.AuthNone:
		return nil, nil
	case config.AuthStatic:
		v, err := NewStaticVerifier(cfg.Token)
		if err != nil {
			return nil, err
		}
		return v, nil
	case config.AuthHS256:
		return jwtVerifier(VerifierConfig{
			Algorithm: "HS256",
			SecretKey: cfg.Secret,
			Issuer:    cfg.Issuer,
			Audience:  cfg.Audience,
		})
	case config.AuthRS256:
		pemData, err := os.ReadFile(cfg.PublicKeyFile)
		if err != nil {
			return nil, fmt.Errorf("read public key: %w", err)
		}
		return jwtVerifier(VerifierConfig{
			Algorithm:    "RS256",
			PublicKeyPEM: string(pemData),
			Issuer:       cfg.Issuer,
			Audience:     cfg.Audience,
		})
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Mode)
	}
}

func jwtVerifier(cfg VerifierConfig) (TokenVerifier, error) {
	v, err := NewVerifier(cfg)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// VerifyToken verifies a JWT token and returns the claims.
func (v *Verifier) VerifyToken(tokenString string) (*Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, fmt.Errorf("token cannot be empty")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{v.config.Algorithm})}
	if v.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.config.Issuer))
	}
	if v.config.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.config.Audience))
	}

	token, err := jwt.ParseWithClaims(tokenString, jwt.MapClaims{}, v.keyFunc, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, errInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}
	return extractClaims(claims)
}

func (v *Verifier) keyFunc(token *jwt.Token) (interface{}, error) {
	if token.Method.Alg() != v.config.Algorithm {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	if v.config.Algorithm == "RS256" {
		return v.publicKey, nil
	}
	return []byte(v.config.SecretKey), nil
}

func extractClaims(claims jwt.MapClaims) (*Claims, error) {
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("missing or invalid 'sub' claim")
	}
	scopes, err := extractStringSlice(claims, "scopes")
	if err != nil {
		return nil, fmt.Errorf("missing or invalid 'scopes' claim: %w", err)
	}
	if !validateScopes(scopes) {
		return nil, fmt.Errorf("invalid scopes: %v", scopes)
	}
	return &Claims{Subject: sub, Scopes: scopes}, nil
}

func extractStringSlice(claims jwt.MapClaims, key string) ([]string, error) {
	value, ok := claims[key]
	if !ok {
		return nil, fmt.Errorf("missing claim: %s", key)
	}
	switch val := value.(type) {
	case []string:
		return val, nil
	case []interface{}:
		result := make([]string, len(val))
		for i, item := range val {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("invalid %s claim: not a string", key)
			}
			result[i] = str
		}
		return result, nil
	case string:
		// space separated, as in OAuth "scope"
		return strings.Fields(val), nil
	default:
		return nil, fmt.Errorf("invalid %s claim: not a string array", key)
	}
}

func validateScopes(scopes []string) bool {
	for _, scope := range scopes {
		if !validScope(scope) {
			return false
		}
	}
	return len(scopes) > 0
}

func (v *Verifier) loadPublicKeyFromPEM(pemData string) error {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return fmt.Errorf("failed to decode PEM block")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return fmt.Errorf("failed to parse public key: %w", err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("not an RSA public key")
	}
	v.publicKey = rsaPub
	return nil
}
