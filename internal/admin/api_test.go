package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/clinia-sante/clinia/internal/mocks"
	"github.com/clinia-sante/clinia/internal/shared/config"
	"github.com/clinia-sante/clinia/internal/shared/errors"
)

type fakeUserStore struct {
	users map[string]*User
}

func (f *fakeUserStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	if u, ok := f.users[username]; ok {
		return u, nil
	}
	return nil, errors.NotFound("admin user", username)
}

func newTestHandler(t *testing.T) (*Handler, *mocks.Store) {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	users := &fakeUserStore{users: map[string]*User{
		"root": {ID: "u-1", Username: "root", PasswordHash: string(hash)},
	}}

	mockStore, err := mocks.NewStore("")
	if err != nil {
		t.Fatalf("load templates: %v", err)
	}

	cfg := config.AuthConfig{JWTSecret: "test-secret", TokenTTL: time.Hour}
	return NewHandler(users, mockStore, cfg, nil), mockStore
}

func login(t *testing.T, srv *httptest.Server, username, password string) *http.Response {
	t.Helper()

	body := `{"username": "` + username + `", "password": "` + password + `"}`
	resp, err := http.Post(srv.URL+"/admin/login", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST /admin/login: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestLogin(t *testing.T) {
	handler, _ := newTestHandler(t)
	srv := httptest.NewServer(handler.Routes())
	t.Cleanup(srv.Close)

	t.Run("valid credentials", func(t *testing.T) {
		resp := login(t, srv, "root", "s3cret")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}

		var lr LoginResponse
		if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if lr.Token == "" {
			t.Fatal("expected a token")
		}

		claims := &Claims{}
		parsed, err := jwt.ParseWithClaims(lr.Token, claims, func(*jwt.Token) (interface{}, error) {
			return []byte("test-secret"), nil
		})
		if err != nil || !parsed.Valid {
			t.Fatalf("token does not verify: %v", err)
		}
		if claims.Role != "admin" {
			t.Errorf("role = %q, want admin", claims.Role)
		}
		if claims.Subject != "u-1" {
			t.Errorf("subject = %q, want u-1", claims.Subject)
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		resp := login(t, srv, "root", "wrong")
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", resp.StatusCode)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		resp := login(t, srv, "ghost", "s3cret")
		// Same status as a wrong password; usernames are not probeable.
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", resp.StatusCode)
		}
	})
}

func TestMockStudioAuthorization(t *testing.T) {
	handler, _ := newTestHandler(t)
	srv := httptest.NewServer(handler.Routes())
	t.Cleanup(srv.Close)

	get := func(token string) *http.Response {
		req, _ := http.NewRequest(http.MethodGet, srv.URL+"/mocks", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("GET /mocks: %v", err)
		}
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	t.Run("no token", func(t *testing.T) {
		if resp := get(""); resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", resp.StatusCode)
		}
	})

	t.Run("garbage token", func(t *testing.T) {
		if resp := get("not-a-jwt"); resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", resp.StatusCode)
		}
	})

	t.Run("wrong role", func(t *testing.T) {
		claims := Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "u-2",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
			Role: "viewer",
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
		if err != nil {
			t.Fatalf("sign token: %v", err)
		}
		if resp := get(token); resp.StatusCode != http.StatusForbidden {
			t.Errorf("status = %d, want 403", resp.StatusCode)
		}
	})

	t.Run("expired token", func(t *testing.T) {
		claims := Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "u-1",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			},
			Role: "admin",
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
		if err != nil {
			t.Fatalf("sign token: %v", err)
		}
		if resp := get(token); resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", resp.StatusCode)
		}
	})
}

func TestMockStudioRoundTrip(t *testing.T) {
	handler, mockStore := newTestHandler(t)
	srv := httptest.NewServer(handler.Routes())
	t.Cleanup(srv.Close)

	resp := login(t, srv, "root", "s3cret")
	var lr LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		t.Fatalf("decode login response: %v", err)
	}

	// Read the table.
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/mocks", nil)
	req.Header.Set("Authorization", "Bearer "+lr.Token)
	getResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /mocks: %v", err)
	}
	defer getResp.Body.Close()

	var table []mocks.Template
	if err := json.NewDecoder(getResp.Body).Decode(&table); err != nil {
		t.Fatalf("decode templates: %v", err)
	}
	if len(table) == 0 {
		t.Fatal("expected the embedded template table")
	}

	// Edit and write it back.
	table[0].Suspected = "Edited condition"
	body, _ := json.Marshal(table)
	putReq, _ := http.NewRequest(http.MethodPut, srv.URL+"/mocks", strings.NewReader(string(body)))
	putReq.Header.Set("Authorization", "Bearer "+lr.Token)
	putResp, err := http.DefaultClient.Do(putReq)
	if err != nil {
		t.Fatalf("PUT /mocks: %v", err)
	}
	defer putResp.Body.Close()

	if putResp.StatusCode != http.StatusOK {
		t.Fatalf("PUT status = %d, want 200", putResp.StatusCode)
	}
	if got := mockStore.All()[0].Suspected; got != "Edited condition" {
		t.Errorf("store suspected = %q, want the edited value", got)
	}

	// An invalid table is rejected with 400.
	badReq, _ := http.NewRequest(http.MethodPut, srv.URL+"/mocks", strings.NewReader(`[]`))
	badReq.Header.Set("Authorization", "Bearer "+lr.Token)
	badResp, err := http.DefaultClient.Do(badReq)
	if err != nil {
		t.Fatalf("PUT /mocks: %v", err)
	}
	defer badResp.Body.Close()

	if badResp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid table status = %d, want 400", badResp.StatusCode)
	}
}
