package auth

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// TokenCookieName is the cookie browser clients carry their JWT in.
const TokenCookieName = "ekaya_jwt"

var (
	ErrMissingAuthorization = errors.New("missing authorization")
	ErrInvalidAuthFormat    = errors.New("invalid authorization header format")
)

// AuthService validates the credentials on an admin request.
type AuthService interface {
	// ValidateRequest returns the validated claims and the raw token.
	// The ekaya_jwt cookie wins over an Authorization: Bearer header.
	ValidateRequest(r *http.Request) (*Claims, string, error)
}

type authService struct {
	jwksClient JWKSClientInterface
	logger     *zap.Logger
}

func NewAuthService(jwksClient JWKSClientInterface, logger *zap.Logger) AuthService {
	return &authService{
		jwksClient: jwksClient,
		logger:     logger,
	}
}

func (s *authService) ValidateRequest(r *http.Request) (*Claims, string, error) {
	token, source, err := tokenFromRequest(r)
	if err != nil {
		s.logger.Debug("No usable credentials on request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		return nil, "", err
	}

	claims, err := s.jwksClient.ValidateToken(r.Context(), token)
	if err != nil {
		s.logger.Debug("JWT validation failed",
			zap.String("path", r.URL.Path),
			zap.String("token_source", source),
			zap.Error(err))
		return nil, "", err
	}

	return claims, token, nil
}

// tokenFromRequest returns the JWT and where it came from ("cookie" or "header").
func tokenFromRequest(r *http.Request) (string, string, error) {
	if cookie, err := r.Cookie(TokenCookieName); err == nil && cookie.Value != "" {
		return cookie.Value, "cookie", nil
	}

	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", "", ErrMissingAuthorization
	}

	scheme, token, ok := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" || strings.ContainsAny(token, " \t") {
		return "", "", ErrInvalidAuthFormat
	}
	return token, "header", nil
}

var _ AuthService = (*authService)(nil)
