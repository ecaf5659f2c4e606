package jsonrpc

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mezonai/custody/asset"
	"github.com/mezonai/custody/auth"
	"github.com/mezonai/custody/config"
	"github.com/mezonai/custody/db"
	"github.com/mezonai/custody/host"
	"github.com/mezonai/custody/jsonx"
	"github.com/mezonai/custody/ledger"
	"github.com/mezonai/custody/ratelimit"
	"github.com/mezonai/custody/types"
	"github.com/mezonai/custody/vault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rpcErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Code string `json:"code"`
	} `json:"data"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcErrorBody   `json:"error"`
}

// key signs requests in order; nonce is the next request nonce it will use
type key struct {
	priv  ed25519.PrivateKey
	id    types.Identity
	nonce uint64
}

func newKey(t *testing.T) *key {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	id, err := types.IdentityFromPublicKey(pub)
	require.NoError(t, err)
	return &key{priv: priv, id: id}
}

func newTestServer(t *testing.T, profile config.Profile, opts ...func(*Server)) *httptest.Server {
	t.Helper()
	p, err := db.NewMemLevelDBProvider()
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	engine := host.NewEngine(p)
	guard := auth.NewGuard(profile)
	assets := asset.NewProgram(engine)
	srv := NewServer("127.0.0.1:0", engine, vault.New(engine, assets, guard), ledger.New(engine, guard, ledger.ProgramID), assets, profile.String())
	for _, opt := range opts {
		opt(srv)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func call(t *testing.T, url, method string, params interface{}) rpcResponse {
	t.Helper()
	req := map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": method}
	if params != nil {
		req["params"] = params
	}
	body, err := jsonx.Marshal(req)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out rpcResponse
	require.NoError(t, jsonx.Unmarshal(raw, &out), string(raw))
	return out
}

// signed builds params for signer's next request. A request that fails does not consume
// its nonce, so tests stop using a signer after one of its requests fails.
func signed(t *testing.T, signer *key, method string, args interface{}) map[string]interface{} {
	t.Helper()
	env, err := SignEnvelope(signer.priv, method, args, SignOptions{Nonce: signer.nonce})
	require.NoError(t, err)
	signer.nonce++
	return map[string]interface{}{"auth": env, "args": args}
}

func amountOf(t *testing.T, r rpcResponse) uint64 {
	t.Helper()
	require.Nil(t, r.Error)
	var a amountResponse
	require.NoError(t, jsonx.Unmarshal(r.Result, &a))
	return a.Amount
}

func TestLedgerOverRPC(t *testing.T) {
	ts := newTestServer(t, config.ProfileAsBuilt)
	owner, bob := newKey(t), newKey(t)

	genesis := ledgerInitArgs{Owner: owner.id, Admin: owner.id, Supply: 1000}
	r := call(t, ts.URL, MethodLedgerInit, signed(t, owner, MethodLedgerInit, genesis))
	require.Nil(t, r.Error)

	r = call(t, ts.URL, MethodLedgerTotalSupply, nil)
	assert.Equal(t, uint64(1000), amountOf(t, r))

	xfer := transferArgs{From: owner.id, To: bob.id, Amount: 250}
	r = call(t, ts.URL, MethodLedgerTransfer, signed(t, owner, MethodLedgerTransfer, xfer))
	require.Nil(t, r.Error)

	r = call(t, ts.URL, MethodLedgerBalanceOf, whoRequest{Who: bob.id})
	assert.Equal(t, uint64(250), amountOf(t, r))

	r = call(t, ts.URL, MethodLedgerAudit, nil)
	require.Nil(t, r.Error)
	var report ledger.AuditReport
	require.NoError(t, jsonx.Unmarshal(r.Result, &report))
	assert.True(t, report.Conserved)
	assert.Equal(t, 2, report.Accounts)
}

func TestTamperedArgsRejected(t *testing.T) {
	ts := newTestServer(t, config.ProfileAsBuilt)
	owner, bob := newKey(t), newKey(t)

	env, err := SignEnvelope(owner.priv, MethodLedgerTransfer, transferArgs{From: owner.id, To: bob.id, Amount: 1}, SignOptions{})
	require.NoError(t, err)
	params := map[string]interface{}{
		"auth": env,
		"args": transferArgs{From: owner.id, To: bob.id, Amount: 2},
	}
	r := call(t, ts.URL, MethodLedgerTransfer, params)
	require.NotNil(t, r.Error)
	assert.Equal(t, int(CodeBadEnvelope), r.Error.Code)
	assert.Equal(t, "bad_signature", r.Error.Data.Code)
}

func TestSignatureBoundToMethod(t *testing.T) {
	ts := newTestServer(t, config.ProfileAsBuilt)
	owner := newKey(t)

	args := approveArgs{Owner: owner.id, Spender: owner.id, Amount: 5}
	env, err := SignEnvelope(owner.priv, MethodLedgerApprove, args, SignOptions{})
	require.NoError(t, err)
	r := call(t, ts.URL, MethodLedgerPermit, map[string]interface{}{"auth": env, "args": args})
	require.NotNil(t, r.Error)
	assert.Equal(t, int(CodeBadEnvelope), r.Error.Code)
}

func TestHardenedTransferNeedsOwner(t *testing.T) {
	ts := newTestServer(t, config.ProfileHardened)
	owner, mallory := newKey(t), newKey(t)

	genesis := ledgerInitArgs{Owner: owner.id, Admin: owner.id, Supply: 10}
	require.Nil(t, call(t, ts.URL, MethodLedgerInit, signed(t, owner, MethodLedgerInit, genesis)).Error)

	steal := transferArgs{From: owner.id, To: mallory.id, Amount: 10}
	r := call(t, ts.URL, MethodLedgerTransfer, signed(t, mallory, MethodLedgerTransfer, steal))
	require.NotNil(t, r.Error)
	assert.Equal(t, int(CodeContractError), r.Error.Code)
	assert.Equal(t, "not_authorized", r.Error.Data.Code)

	r = call(t, ts.URL, MethodLedgerBalanceOf, whoRequest{Who: owner.id})
	assert.Equal(t, uint64(10), amountOf(t, r))

	// the rejected request left mallory's nonce unused
	r = call(t, ts.URL, MethodAuthNonce, whoRequest{Who: mallory.id})
	assert.Equal(t, uint64(0), amountOf(t, r))
}

func TestReplayedRequestRejected(t *testing.T) {
	for _, profile := range []config.Profile{config.ProfileAsBuilt, config.ProfileHardened} {
		t.Run(profile.String(), func(t *testing.T) {
			ts := newTestServer(t, profile)
			owner, dest := newKey(t), newKey(t)

			genesis := ledgerInitArgs{Owner: owner.id, Admin: owner.id, Supply: 1000}
			require.Nil(t, call(t, ts.URL, MethodLedgerInit, signed(t, owner, MethodLedgerInit, genesis)).Error)

			xfer := signed(t, owner, MethodLedgerTransfer, transferArgs{From: owner.id, To: dest.id, Amount: 100})
			require.Nil(t, call(t, ts.URL, MethodLedgerTransfer, xfer).Error)
			for i := 0; i < 2; i++ {
				r := call(t, ts.URL, MethodLedgerTransfer, xfer)
				require.NotNil(t, r.Error, "replay %d accepted", i)
				assert.Equal(t, int(CodeBadEnvelope), r.Error.Code)
				assert.Equal(t, "bad_nonce", r.Error.Data.Code)
			}

			r := call(t, ts.URL, MethodLedgerBalanceOf, whoRequest{Who: dest.id})
			assert.Equal(t, uint64(100), amountOf(t, r))
			r = call(t, ts.URL, MethodAuthNonce, whoRequest{Who: owner.id})
			assert.Equal(t, uint64(2), amountOf(t, r))

			// a fresh nonce goes through
			again := signed(t, owner, MethodLedgerTransfer, transferArgs{From: owner.id, To: dest.id, Amount: 100})
			require.Nil(t, call(t, ts.URL, MethodLedgerTransfer, again).Error)
			r = call(t, ts.URL, MethodLedgerBalanceOf, whoRequest{Who: dest.id})
			assert.Equal(t, uint64(200), amountOf(t, r))
		})
	}
}

func TestNonceIsSigned(t *testing.T) {
	ts := newTestServer(t, config.ProfileAsBuilt)
	owner := newKey(t)

	args := ledgerInitArgs{Owner: owner.id, Admin: owner.id, Supply: 1}
	env, err := SignEnvelope(owner.priv, MethodLedgerInit, args, SignOptions{Nonce: 5})
	require.NoError(t, err)
	env.Nonce = 0
	r := call(t, ts.URL, MethodLedgerInit, map[string]interface{}{"auth": env, "args": args})
	require.NotNil(t, r.Error)
	assert.Equal(t, "bad_signature", r.Error.Data.Code)

	// a signature over a future nonce is refused too
	env.Nonce = 5
	r = call(t, ts.URL, MethodLedgerInit, map[string]interface{}{"auth": env, "args": args})
	require.NotNil(t, r.Error)
	assert.Equal(t, "bad_nonce", r.Error.Data.Code)
}

func TestVaultStateNotInitialized(t *testing.T) {
	ts := newTestServer(t, config.ProfileAsBuilt)
	r := call(t, ts.URL, MethodVaultState, mintRequest{Mint: types.ProgramID("nothing")})
	require.NotNil(t, r.Error)
	assert.Equal(t, "not_initialized", r.Error.Data.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t, config.ProfileHardened)
	r := call(t, ts.URL, MethodHealthCheck, nil)
	require.Nil(t, r.Error)
	var h healthResponse
	require.NoError(t, jsonx.Unmarshal(r.Result, &h))
	assert.Equal(t, "hardened", h.Profile)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestEnvelopeCanonicalAcrossShapes(t *testing.T) {
	owner, bob := newKey(t), newKey(t)
	args := transferArgs{From: owner.id, To: bob.id, Amount: 7}
	env, err := SignEnvelope(owner.priv, MethodLedgerTransfer, args, SignOptions{})
	require.NoError(t, err)

	// a client without the Go types signs the same fields as a map
	asMap := map[string]interface{}{"to": bob.id.String(), "amount": 7, "from": owner.id.String()}
	c, err := env.Call(host.Ed25519Verifier{}, MethodLedgerTransfer, asMap)
	require.NoError(t, err)
	assert.Equal(t, owner.id, c.Invoker)
	assert.True(t, c.SignedBy(owner.id))
	assert.Nil(t, c.TxSource)
}

func TestEnvelopeFeePayerAndSource(t *testing.T) {
	caller, payer, stranger := newKey(t), newKey(t), newKey(t)
	args := mintRequest{Mint: types.ProgramID("m")}

	src := payer.id
	env, err := SignEnvelope(caller.priv, MethodVaultSetAdmin, args, SignOptions{FeePayer: payer.priv, TxSource: &src})
	require.NoError(t, err)
	c, err := env.Call(host.Ed25519Verifier{}, MethodVaultSetAdmin, args)
	require.NoError(t, err)
	assert.Equal(t, payer.id, c.FeePayer)
	require.NotNil(t, c.TxSource)
	assert.Equal(t, payer.id, *c.TxSource)
	assert.True(t, c.SignedBy(payer.id))

	// an unsigned fee payer claim is rejected
	env.FeePayerSignature = ""
	_, err = env.Call(host.Ed25519Verifier{}, MethodVaultSetAdmin, args)
	assert.Error(t, err)

	// the source must be one of the signers
	env, err = SignEnvelope(caller.priv, MethodVaultSetAdmin, args, SignOptions{TxSource: &stranger.id})
	require.NoError(t, err)
	_, err = env.Call(host.Ed25519Verifier{}, MethodVaultSetAdmin, args)
	assert.Error(t, err)
}

func TestRateLimitPerClient(t *testing.T) {
	rl := ratelimit.NewRateLimiter(&ratelimit.RateLimiterConfig{MaxRequests: 2, WindowSize: time.Minute, CleanupInterval: time.Hour})
	t.Cleanup(rl.Stop)
	ts := newTestServer(t, config.ProfileAsBuilt, func(s *Server) { s.SetRateLimiter(rl) })

	body := []byte(`{"jsonrpc":"2.0","id":1,"method":"health.check"}`)
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req, err := http.NewRequest(http.MethodPost, ts.URL, bytes.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		// a rotating forwarded address from an untrusted peer changes nothing
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i+1))
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		codes = append(codes, resp.StatusCode)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestExtractClientIP(t *testing.T) {
	trusted, err := parseTrustedProxies([]string{"10.0.0.1", "192.168.0.0/16"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "198.51.100.7:4321"
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	if got := extractClientIPFromRequest(req, nil); got != "198.51.100.7" {
		t.Errorf("header honoured without trusted proxies: %s", got)
	}
	if got := extractClientIPFromRequest(req, trusted); got != "198.51.100.7" {
		t.Errorf("header honoured from untrusted peer: %s", got)
	}

	req.RemoteAddr = "10.0.0.1:4321"
	req.Header.Set("X-Forwarded-For", "1.1.1.1, 203.0.113.9, 192.168.4.4")
	assert.Equal(t, "203.0.113.9", extractClientIPFromRequest(req, trusted), "client spoofed entries left of the last hop are ignored")

	req.Header.Del("X-Forwarded-For")
	assert.Equal(t, "10.0.0.1", extractClientIPFromRequest(req, trusted))

	_, err = parseTrustedProxies([]string{"proxy.local"})
	assert.Error(t, err)
}
