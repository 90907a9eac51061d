package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	jwtgo "github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/require"

	"stompchat/internal/pkg/auth/jwt"
)

// fakeBackend imitates the chat backend's REST surface.
type fakeBackend struct {
	srv *httptest.Server

	mu           sync.Mutex
	validTokens  map[string]bool
	registered   []RegisterRequest
	refreshCalls int
	usersBody    string
	historyBody  string
	usersStatus  int
	historyPaths []string
	nextAccess   string
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()

	b := &fakeBackend{
		validTokens: map[string]bool{"tok": true},
		usersBody:   `[{"nickName":"bob","fullName":"Bob","status":"ONLINE"}]`,
		historyBody: `[]`,
	}

	r := chi.NewRouter()
	r.Post("/api/auth/login", b.login)
	r.Post("/api/auth/register", b.register)
	r.Post("/api/auth/refresh-token", b.refresh)
	r.Get("/users", b.authorized(b.users))
	r.Get("/messages/{sender}/{recipient}", b.authorized(b.history))

	b.srv = httptest.NewServer(r)
	t.Cleanup(b.srv.Close)
	return b
}

func (b *fakeBackend) client(t *testing.T) *Client {
	t.Helper()

	c, err := New(b.srv.URL+"/", WithHTTPClient(b.srv.Client()))
	require.NoError(t, err)
	return c
}

func (b *fakeBackend) login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	if body.Username != "alice" || body.Password != "pw1" {
		http.Error(w, "Bad credentials", http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"accessToken":"tok"}`))
}

func (b *fakeBackend) register(w http.ResponseWriter, r *http.Request) {
	var body RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	b.mu.Lock()
	b.registered = append(b.registered, body)
	b.mu.Unlock()

	if body.Username == "taken" {
		http.Error(w, "Username is already taken!", http.StatusBadRequest)
		return
	}
	w.Write([]byte("User registered successfully"))
}

func (b *fakeBackend) refresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshCalls++

	if body.RefreshToken != "r1" || b.nextAccess == "" {
		http.Error(w, "invalid refresh token", http.StatusForbidden)
		return
	}

	b.validTokens[b.nextAccess] = true
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"accessToken": b.nextAccess})
}

func (b *fakeBackend) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := jwt.ExtractBearer(r.Header.Get(jwt.AuthorizationHeader))

		b.mu.Lock()
		valid := ok && b.validTokens[token]
		b.mu.Unlock()

		if !valid {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (b *fakeBackend) users(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	status, body := b.usersStatus, b.usersBody
	b.mu.Unlock()

	if status != 0 {
		http.Error(w, "database unavailable", status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(body))
}

func (b *fakeBackend) history(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.historyPaths = append(b.historyPaths, chi.URLParam(r, "sender")+"/"+chi.URLParam(r, "recipient"))
	body := b.historyBody
	b.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(body))
}

// signedToken returns an HS256 token for alice expiring at exp.
func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()

	token, err := jwtgo.NewWithClaims(jwtgo.SigningMethodHS256, jwtgo.StandardClaims{
		Subject:   "alice",
		ExpiresAt: exp.Unix(),
	}).SignedString([]byte("backend-secret"))
	require.NoError(t, err)
	return token
}
