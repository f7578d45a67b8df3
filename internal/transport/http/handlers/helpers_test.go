package http_handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/baechuer/real-time-ressys/services/user-service/internal/application/auth"
	"github.com/baechuer/real-time-ressys/services/user-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/user-service/internal/infrastructure/memory"
	"github.com/baechuer/real-time-ressys/services/user-service/internal/infrastructure/security"
	"github.com/baechuer/real-time-ressys/services/user-service/internal/infrastructure/seed"
	"github.com/baechuer/real-time-ressys/services/user-service/internal/transport/http/middleware"
	"github.com/baechuer/real-time-ressys/services/user-service/internal/transport/http/response"
)

const (
	adminEmail    = "admin@example.com"
	adminPassword = "AdminPassword123!"
	userEmail     = "user@example.com"
	userPassword  = "UserPassword123!"
)

type captureMailer struct {
	mu   sync.Mutex
	err  error
	sent []auth.Email
}

func (m *captureMailer) Send(_ context.Context, msg auth.Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *captureMailer) last(t *testing.T) auth.Email {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent, "no email sent")
	return m.sent[len(m.sent)-1]
}

type testServer struct {
	h      http.Handler
	users  *memory.UserRepo
	mailer *captureMailer
	svc    *auth.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	users := memory.NewUserRepo()
	hasher := security.NewBcryptHasher(4)
	require.Equal(t, 2, seed.Users(context.Background(), users, hasher))

	mailer := &captureMailer{}
	svc := auth.NewService(
		users,
		hasher,
		security.NewJWTSigner("test-jwt-secret", "user-service"),
		security.NewResetTokenHasher("test-reset-secret"),
		mailer,
		auth.Config{SessionTTL: time.Hour, PasswordResetTTL: 15 * time.Minute},
	).WithRevoker(memory.NewRevocationStore())

	authH := NewAuthHandler(svc, false)
	profileH := NewProfileHandler(svc)
	adminH := NewAdminHandler(svc)
	authMW := middleware.Auth(svc, response.WriteError)
	adminMW := middleware.RequireRole(domain.RoleAdmin, response.WriteError)

	r := chi.NewRouter()
	r.Route(APIPrefix, func(r chi.Router) {
		r.Post("/register", authH.Register)
		r.Post("/login", authH.Login)
		r.Post("/logout", authH.Logout)
		r.Post("/password/forgot", authH.ForgotPassword)
		r.Put("/password/reset/{token}", authH.ResetPassword)

		r.Group(func(r chi.Router) {
			r.Use(authMW)
			r.Get("/details", profileH.Details)
			r.Put("/details/update", profileH.Update)
			r.Put("/password/update", authH.UpdatePassword)
			r.Post("/details/avatar", profileH.Avatar)
		})

		r.Route("/admin/users", func(r chi.Router) {
			r.Use(authMW, adminMW)
			r.Get("/", adminH.ListUsers)
			r.Get("/{id}", adminH.GetUser)
			r.Put("/{id}", adminH.UpdateUser)
			r.Delete("/{id}", adminH.DeleteUser)
		})
	})

	return &testServer{h: r, users: users, mailer: mailer, svc: svc}
}

type result struct {
	status int
	body   map[string]any
	raw    string
	res    *http.Response
}

func (ts *testServer) do(t *testing.T, method, path string, body any, token string) result {
	t.Helper()

	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, APIPrefix+path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.AddCookie(&http.Cookie{Name: security.SessionCookieName, Value: token})
	}
	rr := httptest.NewRecorder()
	ts.h.ServeHTTP(rr, req)

	out := result{status: rr.Code, raw: rr.Body.String(), res: rr.Result()}
	if rr.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out.body), rr.Body.String())
	}
	return out
}

func (ts *testServer) login(t *testing.T, email, password string) string {
	t.Helper()
	res := ts.do(t, http.MethodPost, "/login", map[string]string{"email": email, "password": password}, "")
	require.Equal(t, http.StatusOK, res.status, res.raw)
	tok, _ := res.body["token"].(string)
	require.NotEmpty(t, tok)
	return tok
}

func (ts *testServer) userID(t *testing.T, email string) string {
	t.Helper()
	u, err := ts.users.GetByEmail(context.Background(), email)
	require.NoError(t, err)
	return u.ID
}

func code(r result) string {
	c, _ := r.body["code"].(string)
	return c
}

func userField(r result, key string) string {
	u, _ := r.body["user"].(map[string]any)
	s, _ := u[key].(string)
	return s
}

func cookie(res *http.Response, name string) *http.Cookie {
	for _, c := range res.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// resetTokenFrom pulls the plaintext token out of a reset email body.
func resetTokenFrom(t *testing.T, body string) string {
	t.Helper()
	const marker = "/password/reset/"
	i := strings.Index(body, marker)
	require.GreaterOrEqual(t, i, 0, body)
	rest := body[i+len(marker):]
	if j := strings.IndexAny(rest, " \n"); j >= 0 {
		rest = rest[:j]
	}
	return rest
}

var errSMTPDown = errors.New("smtp: connection refused")
