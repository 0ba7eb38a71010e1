package handler_test

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"recordkeeper-auth/internal/audit"
	"recordkeeper-auth/internal/config"
	"recordkeeper-auth/internal/encryption"
	"recordkeeper-auth/internal/geo"
	"recordkeeper-auth/internal/handler"
	"recordkeeper-auth/internal/hashing"
	"recordkeeper-auth/internal/keys"
	"recordkeeper-auth/internal/nonce"
	"recordkeeper-auth/internal/repository/memory"
	"recordkeeper-auth/internal/risk"
	"recordkeeper-auth/internal/service"
	"recordkeeper-auth/internal/token"
	"recordkeeper-auth/internal/util"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	dispatcher := audit.NewDispatcher(memory.NewAuditStore(), audit.DispatcherOptions{BufferSize: 64})
	t.Cleanup(dispatcher.Close)

	encryptor := encryption.NewManager(&config.Config{
		KMS: config.KMSConfig{Enabled: false},
	}, nil)

	hasher := hashing.NewHasher(&config.Config{
		Hashing: config.HashingConfig{
			Argon2MemoryCost:  8192,
			Argon2TimeCost:    1,
			Argon2Parallelism: 1,
		},
	})

	sessions := service.NewSessionService(
		memory.NewSessionStore(),
		geo.StaticResolver{City: "Berlin", Country: "Germany"},
		time.Hour,
	)

	authService := service.NewAuthService(
		memory.NewIdentityStore(),
		sessions,
		nonce.NewMemoryStore(time.Minute),
		risk.NewEngine(0, nil),
		token.NewManager("test-secret", time.Hour),
		hasher,
		audit.NewRecorder(encryptor, 30*24*time.Hour),
		dispatcher,
	)

	router := chi.NewRouter()
	handler.NewAuthHandler(authService, util.Get()).RegisterRoutes(router)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

func postJSON(t *testing.T, server *httptest.Server, path string, body interface{}, bearer string) (*http.Response, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request: %v", err)
		}
	}

	req, err := http.NewRequest(http.MethodPost, server.URL+path, &buf)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp, env
}

func registerOverHTTP(t *testing.T, server *httptest.Server, email string) *ecdsa.PrivateKey {
	t.Helper()

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		t.Fatalf("failed to marshal public key: %v", err)
	}
	publicPEM := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))

	resp, env := postJSON(t, server, "/auth/register", map[string]string{
		"first_name": "Jane",
		"last_name":  "Doe",
		"email":      email,
		"password":   "initial password",
		"public_key": publicPEM,
	}, "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d, body %+v", resp.StatusCode, env)
	}
	return priv
}

func loginOverHTTP(t *testing.T, server *httptest.Server, priv *ecdsa.PrivateKey, email string) string {
	t.Helper()

	resp, env := postJSON(t, server, "/auth/login/challenge", map[string]string{"email": email}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("challenge status = %d", resp.StatusCode)
	}
	var challengeBody struct {
		Challenge string `json:"challenge"`
	}
	if err := json.Unmarshal(env.Data, &challengeBody); err != nil {
		t.Fatalf("failed to decode challenge: %v", err)
	}

	signature, err := keys.Sign(priv, challengeBody.Challenge)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	resp, env = postJSON(t, server, "/auth/login/verify", map[string]string{
		"email":     email,
		"signature": signature,
	}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify status = %d, body %+v", resp.StatusCode, env)
	}

	var result service.LoginResult
	if err := json.Unmarshal(env.Data, &result); err != nil {
		t.Fatalf("failed to decode login result: %v", err)
	}
	if result.Token == "" {
		t.Fatal("login returned no token")
	}
	return result.Token
}

func TestRegisterEndpoint(t *testing.T) {
	server := newTestServer(t)
	registerOverHTTP(t, server, "jane@example.com")
}

func TestRegisterMissingFields(t *testing.T) {
	server := newTestServer(t)

	resp, env := postJSON(t, server, "/auth/register", map[string]string{
		"email": "jane@example.com",
	}, "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if env.Success {
		t.Error("envelope marked success")
	}
}

func TestRegisterDuplicateConflict(t *testing.T) {
	server := newTestServer(t)
	registerOverHTTP(t, server, "jane@example.com")

	priv, _ := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	der, _ := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	publicPEM := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))

	resp, _ := postJSON(t, server, "/auth/register", map[string]string{
		"first_name": "Jane",
		"last_name":  "Doe",
		"email":      "jane@example.com",
		"password":   "other password",
		"public_key": publicPEM,
	}, "")
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
}

func TestChallengeUnknownEmailNotFound(t *testing.T) {
	server := newTestServer(t)

	resp, _ := postJSON(t, server, "/auth/login/challenge", map[string]string{
		"email": "nobody@example.com",
	}, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestChallengeLoginRoundTrip(t *testing.T) {
	server := newTestServer(t)
	priv := registerOverHTTP(t, server, "jane@example.com")
	bearer := loginOverHTTP(t, server, priv, "jane@example.com")

	req, _ := http.NewRequest(http.MethodGet, server.URL+"/auth/sessions", nil)
	req.Header.Set("Authorization", "Bearer "+bearer)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("sessions request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("sessions status = %d, want 200", resp.StatusCode)
	}
}

func TestVerifyWithoutChallengeUnauthorized(t *testing.T) {
	server := newTestServer(t)
	registerOverHTTP(t, server, "jane@example.com")

	resp, _ := postJSON(t, server, "/auth/login/verify", map[string]string{
		"email":     "jane@example.com",
		"signature": "AAAA",
	}, "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestPasswordLoginEndpoint(t *testing.T) {
	server := newTestServer(t)
	registerOverHTTP(t, server, "jane@example.com")

	resp, _ := postJSON(t, server, "/auth/login/password", map[string]string{
		"email":    "jane@example.com",
		"password": "initial password",
	}, "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	resp, _ = postJSON(t, server, "/auth/login/password", map[string]string{
		"email":    "jane@example.com",
		"password": "wrong",
	}, "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong password status = %d, want 401", resp.StatusCode)
	}
}

func TestLogoutEndpoint(t *testing.T) {
	server := newTestServer(t)
	priv := registerOverHTTP(t, server, "jane@example.com")
	bearer := loginOverHTTP(t, server, priv, "jane@example.com")

	resp, _ := postJSON(t, server, "/auth/logout", nil, bearer)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout status = %d, want 200", resp.StatusCode)
	}

	resp, _ = postJSON(t, server, "/auth/logout", nil, bearer)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("repeat logout status = %d, want 404", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, server.URL+"/auth/sessions", nil)
	req.Header.Set("Authorization", "Bearer "+bearer)
	sessResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("sessions request failed: %v", err)
	}
	defer sessResp.Body.Close()
	if sessResp.StatusCode != http.StatusUnauthorized {
		t.Errorf("retired token status = %d, want 401", sessResp.StatusCode)
	}
}

func TestRefreshEndpoint(t *testing.T) {
	server := newTestServer(t)
	priv := registerOverHTTP(t, server, "jane@example.com")
	bearer := loginOverHTTP(t, server, priv, "jane@example.com")

	resp, env := postJSON(t, server, "/auth/refresh", nil, bearer)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh status = %d", resp.StatusCode)
	}
	var result service.LoginResult
	if err := json.Unmarshal(env.Data, &result); err != nil {
		t.Fatalf("failed to decode refresh result: %v", err)
	}
	if result.Token == "" || result.Token == bearer {
		t.Error("refresh did not rotate the token")
	}

	resp, _ = postJSON(t, server, "/auth/refresh", nil, bearer)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("reused token refresh status = %d, want 401", resp.StatusCode)
	}
}

func TestForgotPasswordAlwaysAccepts(t *testing.T) {
	server := newTestServer(t)
	registerOverHTTP(t, server, "jane@example.com")

	for _, email := range []string{"jane@example.com", "nobody@example.com"} {
		resp, env := postJSON(t, server, "/auth/password/forgot", map[string]string{"email": email}, "")
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", email, resp.StatusCode)
		}
		if !env.Success {
			t.Errorf("%s: envelope not marked success", email)
		}
	}
}

func TestResetPasswordBadToken(t *testing.T) {
	server := newTestServer(t)

	resp, _ := postJSON(t, server, "/auth/password/reset", map[string]string{
		"token":        "bogus",
		"new_password": "new password",
	}, "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestSessionsRequiresAuth(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Get(server.URL + "/auth/sessions")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}
