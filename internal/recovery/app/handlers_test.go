package app

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"html"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/louisbranch/recovery.space/internal/recovery/lifecycle"
	"github.com/louisbranch/recovery.space/internal/recovery/provider"
	"github.com/louisbranch/recovery.space/internal/recovery/record"
	"github.com/louisbranch/recovery.space/internal/recovery/storage/memory"
	"github.com/louisbranch/recovery.space/internal/recovery/token"
)

var (
	stateInputRe = regexp.MustCompile(`name="state" value="([^"]+)"`)
	tokenInputRe = regexp.MustCompile(`name="token" value="([^"]+)"`)
)

type testEnv struct {
	handler   http.Handler
	lifecycle *lifecycle.Manager
	signer    *token.Signer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer, err := token.NewSigner(key, "https://account.example.com")
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}

	manager := lifecycle.NewManager(memory.NewStore())
	providerClient := provider.NewStaticClient(provider.Config{
		Issuer:    "https://provider.example.com",
		SaveToken: "https://provider.example.com/save",
	})

	cfg := Config{
		Issuer:           "https://account.example.com",
		PrivacyPolicyURL: "https://account.example.com/privacy",
	}
	server := NewServer(cfg, manager, signer, providerClient)
	mux := http.NewServeMux()
	server.RegisterRoutes(mux)

	return &testEnv{handler: mux, lifecycle: manager, signer: signer}
}

func (e *testEnv) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

// extractState pulls the state hidden input out of the save form.
func extractState(t *testing.T, body string) State {
	t.Helper()
	match := stateInputRe.FindStringSubmatch(body)
	if match == nil {
		t.Fatalf("no state input in response body:\n%s", body)
	}
	return ParseState(match[1])
}

func extractToken(t *testing.T, body string) string {
	t.Helper()
	match := tokenInputRe.FindStringSubmatch(body)
	if match == nil {
		t.Fatalf("no token input in response body:\n%s", body)
	}
	// html/template entity-escapes "+" in attribute values; undo it the way
	// a browser would before submitting the form.
	return html.UnescapeString(match[1])
}

func TestSaveTokenFirstVisit(t *testing.T) {
	env := newTestEnv(t)

	w := env.get(t, "/save-token?username=alice")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	body := w.Body.String()
	state := extractState(t, body)
	if state.TokenID == "" || state.ObsoletesID != "" {
		t.Fatalf("expected single-id state, got %+v", state)
	}

	rec, err := env.lifecycle.Get(context.Background(), state.TokenID)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if rec == nil {
		t.Fatal("expected a provisioned record")
	}
	if rec.Status != record.StatusProvisional {
		t.Fatalf("expected provisional record, got %q", rec.Status)
	}
	if rec.Username != "alice" || rec.Audience != "https://provider.example.com" {
		t.Fatalf("unexpected record: %+v", rec)
	}

	encoded := extractToken(t, body)
	tok, err := token.Decode(encoded)
	if err != nil {
		t.Fatalf("decode issued token: %v", err)
	}
	if tok.HexID() != state.TokenID {
		t.Fatalf("token id %s does not match state %s", tok.HexID(), state.TokenID)
	}
	if tok.Issuer != "https://account.example.com" || tok.Audience != "https://provider.example.com" {
		t.Fatalf("unexpected token issuer/audience: %q/%q", tok.Issuer, tok.Audience)
	}
	if tok.Options&token.OptionStatusRequested == 0 {
		t.Fatal("expected status-requested option set")
	}
	ok, err := tok.VerifySignature(env.signer.PublicKey())
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatal("issued token signature did not verify")
	}
	hash, err := token.Hash(encoded)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !bytes.Equal(hash, rec.TokenHash) {
		t.Fatal("record hash does not match the issued token")
	}
}

func TestSaveTokenWithoutUsernameRedirectsHome(t *testing.T) {
	env := newTestEnv(t)

	w := env.get(t, "/save-token")
	if w.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", w.Code)
	}
	if location := w.Header().Get("Location"); location != "/" {
		t.Fatalf("expected redirect to /, got %q", location)
	}
}

func TestSaveTokenRejectsNonGET(t *testing.T) {
	env := newTestEnv(t)

	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/save-token?username=alice", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}

func TestSaveTokenReturnConfirms(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	state := extractState(t, env.get(t, "/save-token?username=alice").Body.String())

	w := env.get(t, "/save-token/return?status=save-success&state="+state.Encode())
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	rec, err := env.lifecycle.Get(ctx, state.TokenID)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if rec.Status != record.StatusConfirmed {
		t.Fatalf("expected confirmed, got %q", rec.Status)
	}

	confirmed, err := env.lifecycle.FindConfirmedForUser(ctx, "alice")
	if err != nil {
		t.Fatalf("find confirmed: %v", err)
	}
	if confirmed == nil || confirmed.ID != state.TokenID {
		t.Fatalf("expected %s confirmed, got %+v", state.TokenID, confirmed)
	}
}

func TestSaveTokenRenewal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// First token saved and confirmed.
	first := extractState(t, env.get(t, "/save-token?username=alice").Body.String())
	env.get(t, "/save-token/return?status=save-success&state="+first.Encode())

	// A second visit offers a replacement carrying both ids in its state.
	w := env.get(t, "/save-token?username=alice")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	second := extractState(t, w.Body.String())
	if second.TokenID == "" || second.TokenID == first.TokenID {
		t.Fatalf("expected a fresh token id, got %+v", second)
	}
	if second.ObsoletesID != first.TokenID {
		t.Fatalf("expected state to obsolete %s, got %+v", first.TokenID, second)
	}

	w = env.get(t, "/save-token/return?status=save-success&state="+second.Encode())
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	newRec, err := env.lifecycle.Get(ctx, second.TokenID)
	if err != nil {
		t.Fatalf("get new record: %v", err)
	}
	if newRec.Status != record.StatusConfirmed {
		t.Fatalf("expected new token confirmed, got %q", newRec.Status)
	}
	oldRec, err := env.lifecycle.Get(ctx, first.TokenID)
	if err != nil {
		t.Fatalf("get old record: %v", err)
	}
	if oldRec.Status != record.StatusInvalid {
		t.Fatalf("expected old token invalid, got %q", oldRec.Status)
	}

	confirmed, err := env.lifecycle.FindConfirmedForUser(ctx, "alice")
	if err != nil {
		t.Fatalf("find confirmed: %v", err)
	}
	if confirmed == nil || confirmed.ID != second.TokenID {
		t.Fatalf("expected only %s confirmed, got %+v", second.TokenID, confirmed)
	}
}

func TestSaveTokenReturnRejectionDeletesRecord(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	state := extractState(t, env.get(t, "/save-token?username=alice").Body.String())

	w := env.get(t, "/save-token/return?status=save-failure&state="+state.Encode())
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("/save-token?username=alice")) {
		t.Fatalf("expected retry link in failure view:\n%s", w.Body.String())
	}

	rec, err := env.lifecycle.Get(ctx, state.TokenID)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected record removed, got %+v", rec)
	}
}

func TestSaveTokenReturnUnknownToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Provision one real token so mutation can be ruled out afterwards.
	state := extractState(t, env.get(t, "/save-token?username=alice").Body.String())

	w := env.get(t, "/save-token/return?status=save-success&state=deadbeef")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	rec, err := env.lifecycle.Get(ctx, state.TokenID)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if rec == nil || rec.Status != record.StatusProvisional {
		t.Fatalf("unrelated record mutated: %+v", rec)
	}
}

func TestSaveTokenReturnToleratesMissingObsoleted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	state := extractState(t, env.get(t, "/save-token?username=alice").Body.String())
	state.ObsoletesID = "deadbeef"

	w := env.get(t, "/save-token/return?status=save-success&state="+state.Encode())
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	rec, err := env.lifecycle.Get(ctx, state.TokenID)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if rec.Status != record.StatusConfirmed {
		t.Fatalf("expected confirmed despite unknown obsoleted id, got %q", rec.Status)
	}
}

func TestInvalidateToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := extractState(t, env.get(t, "/save-token?username=alice").Body.String())
	env.get(t, "/save-token/return?status=save-success&state="+first.Encode())

	w := env.get(t, "/invalidate-token?id="+first.TokenID+"&username=alice")
	if w.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", w.Code)
	}
	if location := w.Header().Get("Location"); location != "/save-token?username=alice" {
		t.Fatalf("unexpected redirect %q", location)
	}

	rec, err := env.lifecycle.Get(ctx, first.TokenID)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if rec.Status != record.StatusInvalid {
		t.Fatalf("expected invalid, got %q", rec.Status)
	}
}

func TestInvalidateUnknownTokenStillRedirects(t *testing.T) {
	env := newTestEnv(t)

	w := env.get(t, "/invalidate-token?id=deadbeef&username=alice")
	if w.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", w.Code)
	}
	if location := w.Header().Get("Location"); location != "/save-token?username=alice" {
		t.Fatalf("unexpected redirect %q", location)
	}
}

func TestWellKnownConfiguration(t *testing.T) {
	env := newTestEnv(t)

	w := env.get(t, provider.WellKnownPath)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if contentType := w.Header().Get("Content-Type"); contentType != "application/json" {
		t.Fatalf("unexpected content type %q", contentType)
	}

	var config AccountProviderConfig
	if err := json.Unmarshal(w.Body.Bytes(), &config); err != nil {
		t.Fatalf("decode configuration: %v", err)
	}
	if config.Issuer != "https://account.example.com" {
		t.Fatalf("unexpected issuer %q", config.Issuer)
	}
	if config.SaveTokenReturn != "https://account.example.com/save-token/return" {
		t.Fatalf("unexpected save-token-return %q", config.SaveTokenReturn)
	}
	if config.PrivacyPolicyURL != "https://account.example.com/privacy" {
		t.Fatalf("unexpected privacy policy %q", config.PrivacyPolicyURL)
	}
	if len(config.TokenSignPubKeys) != 1 {
		t.Fatalf("expected one signing key, got %d", len(config.TokenSignPubKeys))
	}
	raw, err := base64.StdEncoding.DecodeString(config.TokenSignPubKeys[0])
	if err != nil {
		t.Fatalf("decode public key: %v", err)
	}
	if len(raw) != 65 || raw[0] != 0x04 {
		t.Fatalf("expected uncompressed P-256 point, got %d bytes", len(raw))
	}
}

func TestIndexAndHealth(t *testing.T) {
	env := newTestEnv(t)

	if w := env.get(t, "/"); w.Code != http.StatusOK {
		t.Fatalf("expected 200 for index, got %d", w.Code)
	}
	if w := env.get(t, "/nonexistent"); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown path, got %d", w.Code)
	}
	w := env.get(t, "/up")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for health check, got %d", w.Code)
	}
	if w.Body.String() != "OK" {
		t.Fatalf("unexpected health body %q", w.Body.String())
	}
}
