package auth

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/suite"

	"aegis/pkg/requestcontext"
)

type stubValidator struct {
	claims *Claims
	err    error
}

func (v stubValidator) ValidateToken(string) (*Claims, error) { return v.claims, v.err }

type AuthMiddlewareSuite struct {
	suite.Suite
	logger *slog.Logger
}

func TestAuthMiddlewareSuite(t *testing.T) {
	suite.Run(t, new(AuthMiddlewareSuite))
}

func (s *AuthMiddlewareSuite) SetupTest() {
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (s *AuthMiddlewareSuite) serve(v TokenValidator, header string, mws ...func(http.Handler) http.Handler) (*httptest.ResponseRecorder, string) {
	var seen string
	var h http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestcontext.SubjectID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	h = RequireAuth(v, s.logger)(h)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		r.Header.Set("Authorization", header)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, r)
	return rr, seen
}

func (s *AuthMiddlewareSuite) TestRequireAuth() {
	s.Run("missing header", func() {
		rr, _ := s.serve(stubValidator{}, "")
		s.Equal(http.StatusUnauthorized, rr.Code)
	})

	s.Run("invalid token", func() {
		rr, _ := s.serve(stubValidator{err: errors.New("bad signature")}, "Bearer abc")
		s.Equal(http.StatusUnauthorized, rr.Code)
		s.Contains(rr.Body.String(), "Invalid or expired token")
	})

	s.Run("valid token sets subject", func() {
		rr, seen := s.serve(stubValidator{claims: &Claims{SubjectID: "user-1"}}, "Bearer abc")
		s.Equal(http.StatusNoContent, rr.Code)
		s.Equal("user-1", seen)
	})
}

func (s *AuthMiddlewareSuite) TestRequireRole() {
	s.Run("non-admin is forbidden", func() {
		rr, _ := s.serve(stubValidator{claims: &Claims{SubjectID: "user-1"}}, "Bearer abc",
			RequireRole(requestcontext.RoleAdmin, s.logger))
		s.Equal(http.StatusForbidden, rr.Code)
	})

	s.Run("admin passes", func() {
		rr, _ := s.serve(stubValidator{claims: &Claims{SubjectID: "admin-1", Role: requestcontext.RoleAdmin}}, "Bearer abc",
			RequireRole(requestcontext.RoleAdmin, s.logger))
		s.Equal(http.StatusNoContent, rr.Code)
	})
}
