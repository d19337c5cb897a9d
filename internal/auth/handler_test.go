package auth

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type mockAuthService struct {
	authenticateFn   func(ctx context.Context, username, password string) (*User, error)
	createReviewerFn func(ctx context.Context, username, password, fullName, role string) (*User, error)
	createSessionFn  func(ctx context.Context, userID int64) (string, time.Time, error)
	getSessionUserFn func(ctx context.Context, token string) (*User, error)
	revokeSessionFn  func(ctx context.Context, token string) error
}

func (m *mockAuthService) AuthenticatePassword(ctx context.Context, username, password string) (*User, error) {
	return m.authenticateFn(ctx, username, password)
}

func (m *mockAuthService) CreateReviewer(ctx context.Context, username, password, fullName, role string) (*User, error) {
	return m.createReviewerFn(ctx, username, password, fullName, role)
}

func (m *mockAuthService) CreateSession(ctx context.Context, userID int64) (string, time.Time, error) {
	return m.createSessionFn(ctx, userID)
}

func (m *mockAuthService) GetSessionUser(ctx context.Context, token string) (*User, error) {
	return m.getSessionUserFn(ctx, token)
}

func (m *mockAuthService) RevokeSession(ctx context.Context, token string) error {
	return m.revokeSessionFn(ctx, token)
}

func TestLoginPasswordSetsSessionCookie(t *testing.T) {
	svc := &mockAuthService{
		authenticateFn: func(_ context.Context, username, password string) (*User, error) {
			if username != "ana" || password != "secret" {
				t.Fatalf("credentials = %q/%q", username, password)
			}
			return &User{ID: 7, Username: "ana", Role: "reviewer", IsActive: true}, nil
		},
		createSessionFn: func(_ context.Context, userID int64) (string, time.Time, error) {
			if userID != 7 {
				t.Fatalf("userID = %d, want 7", userID)
			}
			return "tok-123", time.Now().Add(time.Hour), nil
		},
	}
	h := NewHandler(svc)

	body := bytes.NewBufferString(`{"username":"ana","password":"secret"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login-password", body)
	rec := httptest.NewRecorder()
	h.LoginPassword(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var sessionCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookieName {
			sessionCookie = c
		}
	}
	if sessionCookie == nil || sessionCookie.Value != "tok-123" {
		t.Fatalf("session cookie = %+v", sessionCookie)
	}
	if !sessionCookie.HttpOnly {
		t.Fatal("session cookie must be http-only")
	}
}

func TestLoginPasswordInvalidCredentials(t *testing.T) {
	svc := &mockAuthService{
		authenticateFn: func(_ context.Context, _, _ string) (*User, error) {
			return nil, ErrInvalidCredentials
		},
	}
	h := NewHandler(svc)

	body := bytes.NewBufferString(`{"username":"ana","password":"wrong"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login-password", body)
	rec := httptest.NewRecorder()
	h.LoginPassword(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestLoginPasswordInactiveAccount(t *testing.T) {
	svc := &mockAuthService{
		authenticateFn: func(_ context.Context, _, _ string) (*User, error) {
			return nil, ErrAccountInactive
		},
	}
	h := NewHandler(svc)

	body := bytes.NewBufferString(`{"username":"ana","password":"secret"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login-password", body)
	rec := httptest.NewRecorder()
	h.LoginPassword(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}

func TestRequireAuthRejectsMissingSession(t *testing.T) {
	svc := &mockAuthService{
		getSessionUserFn: func(_ context.Context, token string) (*User, error) {
			if token != "" {
				t.Fatalf("token = %q, want empty", token)
			}
			return nil, ErrUnauthorized
		},
	}
	h := NewHandler(svc)

	next := h.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler should not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	rec := httptest.NewRecorder()
	next.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRequireAuthInjectsUser(t *testing.T) {
	svc := &mockAuthService{
		getSessionUserFn: func(_ context.Context, token string) (*User, error) {
			if token != "tok-123" {
				t.Fatalf("token = %q", token)
			}
			return &User{ID: 7, Role: "reviewer", IsActive: true}, nil
		},
	}
	h := NewHandler(svc)

	var got *User
	next := h.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = CurrentUser(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "tok-123"})
	rec := httptest.NewRecorder()
	next.ServeHTTP(rec, req)

	if got == nil || got.ID != 7 {
		t.Fatalf("user in context = %+v, want id 7", got)
	}
}

func TestRequireRoles(t *testing.T) {
	h := NewHandler(&mockAuthService{})
	mw := h.RequireRoles("admin", "reviewer")

	tests := []struct {
		name string
		user *User
		want int
	}{
		{"reviewer allowed", &User{ID: 1, Role: "reviewer"}, http.StatusOK},
		{"admin allowed", &User{ID: 2, Role: "admin"}, http.StatusOK},
		{"student forbidden", &User{ID: 3, Role: "student"}, http.StatusForbidden},
		{"no user", nil, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))
			req := httptest.NewRequest(http.MethodGet, "/api/v1/tests", nil)
			if tt.user != nil {
				req = req.WithContext(ContextWithUser(req.Context(), tt.user))
			}
			rec := httptest.NewRecorder()
			next.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestCreateReviewerHandler(t *testing.T) {
	svc := &mockAuthService{
		createReviewerFn: func(_ context.Context, username, password, fullName, role string) (*User, error) {
			if username != "budi" || password != "pw" || role != "reviewer" {
				t.Fatalf("create(%q, %q, %q, %q)", username, password, fullName, role)
			}
			return &User{ID: 9, Username: username, FullName: fullName, Role: role, IsActive: true}, nil
		},
	}
	h := NewHandler(svc)

	body := bytes.NewBufferString(`{"username":"budi","password":"pw","full_name":"Budi","role":"reviewer"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/reviewers", body)
	rec := httptest.NewRecorder()
	h.CreateReviewer(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
}

func TestLogoutClearsCookie(t *testing.T) {
	revoked := ""
	svc := &mockAuthService{
		revokeSessionFn: func(_ context.Context, token string) error {
			revoked = token
			return nil
		},
	}
	h := NewHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "tok-123"})
	rec := httptest.NewRecorder()
	h.Logout(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if revoked != "tok-123" {
		t.Fatalf("revoked token = %q", revoked)
	}
	var cleared *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookieName {
			cleared = c
		}
	}
	if cleared == nil || cleared.MaxAge != -1 {
		t.Fatalf("cookie not cleared: %+v", cleared)
	}
}
