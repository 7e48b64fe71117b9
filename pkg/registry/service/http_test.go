package service

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pepae/BeerCoin-sub000/pkg/registry"
	"github.com/pepae/BeerCoin-sub000/pkg/user"
)

// stubService implements registry.Service with overridable functions.
type stubService struct {
	registerSelf func(ctx context.Context, caller common.Address, username string, referrer common.Address) (*user.User, error)
	kickUser     func(ctx context.Context, addr common.Address) error
	getUserInfo  func(ctx context.Context, addr common.Address) (*user.User, error)
}

func (s *stubService) RegisterSelf(ctx context.Context, caller common.Address, username string, referrer common.Address) (*user.User, error) {
	return s.registerSelf(ctx, caller, username, referrer)
}

func (s *stubService) RegisterByTrusted(context.Context, common.Address, common.Address, string) (*user.User, error) {
	panic("not expected")
}

func (s *stubService) AddTrustedUser(context.Context, common.Address, string) (*user.User, error) {
	panic("not expected")
}

func (s *stubService) RemoveTrustedUser(context.Context, common.Address) error {
	panic("not expected")
}

func (s *stubService) KickUser(ctx context.Context, addr common.Address) error {
	return s.kickUser(ctx, addr)
}

func (s *stubService) GetUserInfo(ctx context.Context, addr common.Address) (*user.User, error) {
	return s.getUserInfo(ctx, addr)
}

func (s *stubService) IsUsernameAvailable(context.Context, string) (bool, error) {
	return true, nil
}

func (s *stubService) Stats(context.Context) (*registry.Stats, error) {
	return &registry.Stats{}, nil
}

func (s *stubService) TrustedUsers(context.Context) ([]*user.User, error) {
	return nil, nil
}

func newTestServer(svc registry.Service) http.Handler {
	r := chi.NewRouter()
	RegisterRoutes(r, svc, zap.NewNop())
	RegisterAdminRoutes(r, svc, zap.NewNop())
	return r
}

func signMessage(t *testing.T, message string) (common.Address, string) {
	t.Helper()

	privateKey, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() failed: %v", err)
	}

	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	hash := crypto.Keccak256Hash([]byte(prefixed))

	sig, err := crypto.Sign(hash.Bytes(), privateKey)
	if err != nil {
		t.Fatalf("Sign() failed: %v", err)
	}

	return crypto.PubkeyToAddress(privateKey.PublicKey), "0x" + hex.EncodeToString(sig)
}

func decodeError(t *testing.T, body []byte) (string, int) {
	t.Helper()
	var got struct {
		Error string `json:"error"`
		Code  int    `json:"code"`
	}
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return got.Error, got.Code
}

func TestRegisterHTTP_InvalidJSON_ReturnsBadRequest(t *testing.T) {
	handler := newTestServer(&stubService{})

	req := httptest.NewRequest(http.MethodPost, "/register", bytes.NewBufferString("{invalid"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
	if msg, _ := decodeError(t, rec.Body.Bytes()); msg != "invalid JSON" {
		t.Fatalf("expected error %q, got %q", "invalid JSON", msg)
	}
}

func TestRegisterHTTP_RejectsBadUsername(t *testing.T) {
	handler := newTestServer(&stubService{})

	for _, name := range []string{"ab", "name with spaces", "bier!", "this_username_is_way_too_long"} {
		body, _ := json.Marshal(map[string]string{
			"username": name,
			"referrer": "0x1111111111111111111111111111111111111111",
			"message":  "m",
			"signature": "0x" +
				"0000000000000000000000000000000000000000000000000000000000000000" +
				"0000000000000000000000000000000000000000000000000000000000000000" + "00",
		})

		req := httptest.NewRequest(http.MethodPost, "/register", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("username %q: expected status %d, got %d", name, http.StatusBadRequest, rec.Code)
		}
	}
}

func TestRegisterHTTP_MissingSignature_ReturnsUnauthorized(t *testing.T) {
	handler := newTestServer(&stubService{})

	body, _ := json.Marshal(map[string]string{
		"username": "valid_name",
		"referrer": "0x1111111111111111111111111111111111111111",
	})

	req := httptest.NewRequest(http.MethodPost, "/register", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
	if msg, _ := decodeError(t, rec.Body.Bytes()); msg != "signature and message required" {
		t.Fatalf("expected error %q, got %q", "signature and message required", msg)
	}
}

func TestRegisterHTTP_RecoversSignerAsCaller(t *testing.T) {
	signer, signature := signMessage(t, "register me")
	referrer := common.HexToAddress("0x1111111111111111111111111111111111111111")

	var gotCaller common.Address
	svc := &stubService{
		registerSelf: func(_ context.Context, caller common.Address, username string, ref common.Address) (*user.User, error) {
			gotCaller = caller
			return user.New(caller, username, &ref, time.Unix(1700000000, 0).UTC()), nil
		},
	}
	handler := newTestServer(svc)

	body, _ := json.Marshal(map[string]string{
		"username":  "valid_name",
		"referrer":  referrer.Hex(),
		"message":   "register me",
		"signature": signature,
	})

	req := httptest.NewRequest(http.MethodPost, "/register", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}
	if gotCaller != signer {
		t.Fatalf("service called with %s, want recovered signer %s", gotCaller.Hex(), signer.Hex())
	}

	var resp UserResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Address != signer.Hex() || resp.Username != "valid_name" || resp.Referrer != referrer.Hex() {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.TotalEarned != "0" {
		t.Fatalf("expected zero totalEarned, got %q", resp.TotalEarned)
	}
}

func TestRegisterHTTP_MapsConflictError(t *testing.T) {
	_, signature := signMessage(t, "register me")

	svc := &stubService{
		registerSelf: func(context.Context, common.Address, string, common.Address) (*user.User, error) {
			return nil, registry.ErrUsernameTaken
		},
	}
	handler := newTestServer(svc)

	body, _ := json.Marshal(map[string]string{
		"username":  "valid_name",
		"referrer":  "0x1111111111111111111111111111111111111111",
		"message":   "register me",
		"signature": signature,
	})

	req := httptest.NewRequest(http.MethodPost, "/register", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status %d, got %d", http.StatusConflict, rec.Code)
	}
}

func TestGetUserHTTP_NotFound(t *testing.T) {
	svc := &stubService{
		getUserInfo: func(context.Context, common.Address) (*user.User, error) {
			return nil, user.ErrNotFound
		},
	}
	handler := newTestServer(svc)

	req := httptest.NewRequest(http.MethodGet, "/users/0x1111111111111111111111111111111111111111", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestGetUserHTTP_InvalidAddress(t *testing.T) {
	handler := newTestServer(&stubService{})

	req := httptest.NewRequest(http.MethodGet, "/users/not-an-address", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestKickHTTP(t *testing.T) {
	var kicked common.Address
	svc := &stubService{
		kickUser: func(_ context.Context, addr common.Address) error {
			kicked = addr
			return nil
		},
	}
	handler := newTestServer(svc)

	target := common.HexToAddress("0x2222222222222222222222222222222222222222")
	req := httptest.NewRequest(http.MethodPost, "/kick/"+target.Hex(), nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if kicked != target {
		t.Fatalf("kicked %s, want %s", kicked.Hex(), target.Hex())
	}
}
