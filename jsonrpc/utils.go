package jsonrpc

import (
	"crypto/ed25519"
	"encoding/binary"
	"fmt"
	"math"
	"net"
	"net/http"
	"strings"

	"github.com/mezonai/custody/common"
	"github.com/mezonai/custody/db"
	"github.com/mezonai/custody/errors"
	"github.com/mezonai/custody/host"
	"github.com/mezonai/custody/jsonx"
	"github.com/mezonai/custody/logx"
	"github.com/mezonai/custody/store"
	"github.com/mezonai/custody/types"
)

// JSON-RPC Method name constants
const (
	// Vault methods
	MethodVaultInitialize = "vault.initialize"
	MethodVaultDeposit    = "vault.deposit"
	MethodVaultWithdraw   = "vault.withdraw"
	MethodVaultSetAdmin   = "vault.setadmin"
	MethodVaultExec       = "vault.exec"
	MethodVaultState      = "vault.state"
	MethodVaultReconcile  = "vault.reconcile"

	// Ledger methods
	MethodLedgerInit          = "ledger.init"
	MethodLedgerOwner         = "ledger.owner"
	MethodLedgerAdmin         = "ledger.admin"
	MethodLedgerTotalSupply   = "ledger.totalsupply"
	MethodLedgerBalanceOf     = "ledger.balanceof"
	MethodLedgerAllowance     = "ledger.allowance"
	MethodLedgerNonce         = "ledger.nonce"
	MethodLedgerApprove       = "ledger.approve"
	MethodLedgerTransfer      = "ledger.transfer"
	MethodLedgerTransferFrom  = "ledger.transferfrom"
	MethodLedgerMint          = "ledger.mint"
	MethodLedgerSetAdmin      = "ledger.setadmin"
	MethodLedgerPermit        = "ledger.permit"
	MethodLedgerPermitMessage = "ledger.permitmessage"
	MethodLedgerAudit         = "ledger.audit"

	// Asset methods
	MethodAssetBalance = "asset.balance"

	// Envelope methods
	MethodAuthNonce = "auth.nonce"

	// Health methods
	MethodHealthCheck = "health.check"
)

// Envelope authenticates a mutating request. Signature is the caller's ed25519 signature
// over SigningPayload(method, nonce, args), base58 encoded. A distinct fee payer co-signs the
// same payload; the transaction source, when given, must be one of the two signers.
// Nonce must equal the caller's next unused request nonce (see auth.nonce); it is consumed
// only when the request succeeds.
type Envelope struct {
	Caller            types.Identity `json:"caller"`
	Nonce             uint64         `json:"nonce"`
	FeePayer          string         `json:"fee_payer,omitempty"`
	FeePayerSignature string         `json:"fee_payer_signature,omitempty"`
	TxSource          string         `json:"tx_source,omitempty"`
	Signature         string         `json:"signature"`
}

// SigningPayload is method ‖ nonce (8 bytes, big endian) ‖ canonical JSON of args
// (sorted keys, no whitespace)
func SigningPayload(method string, nonce uint64, args interface{}) ([]byte, error) {
	body, err := jsonx.Canonical(args)
	if err != nil {
		return nil, fmt.Errorf("failed to encode params: %w", err)
	}
	payload := make([]byte, 0, len(method)+8+len(body))
	payload = append(payload, method...)
	payload = binary.BigEndian.AppendUint64(payload, nonce)
	return append(payload, body...), nil
}

// SignOptions adds the request nonce and optional parties to a signed envelope
type SignOptions struct {
	Nonce    uint64
	FeePayer ed25519.PrivateKey
	TxSource *types.Identity
}

// SignEnvelope builds the envelope for caller invoking method with args
func SignEnvelope(caller ed25519.PrivateKey, method string, args interface{}, opts SignOptions) (Envelope, error) {
	var env Envelope
	id, err := types.IdentityFromPublicKey(caller.Public().(ed25519.PublicKey))
	if err != nil {
		return env, err
	}
	payload, err := SigningPayload(method, opts.Nonce, args)
	if err != nil {
		return env, err
	}
	env.Caller = id
	env.Nonce = opts.Nonce
	env.Signature = common.EncodeBytesToBase58(ed25519.Sign(caller, payload))
	if opts.FeePayer != nil {
		payer, err := types.IdentityFromPublicKey(opts.FeePayer.Public().(ed25519.PublicKey))
		if err != nil {
			return env, err
		}
		env.FeePayer = payer.String()
		env.FeePayerSignature = common.EncodeBytesToBase58(ed25519.Sign(opts.FeePayer, payload))
	}
	if opts.TxSource != nil {
		env.TxSource = opts.TxSource.String()
	}
	return env, nil
}

// Call verifies the envelope signatures against method and args and returns the resulting
// call. The nonce is checked by ConsumeNonce inside the request's transaction.
func (e Envelope) Call(v host.Verifier, method string, args interface{}) (types.Call, error) {
	var call types.Call
	payload, err := SigningPayload(method, e.Nonce, args)
	if err != nil {
		return call, err
	}
	if e.Caller.IsZero() || !verifyBase58(v, e.Caller, payload, e.Signature) {
		return call, errors.ErrBadSignature
	}
	call = types.NewCall(e.Caller)

	if e.FeePayer != "" {
		payer, err := types.ParseIdentity(e.FeePayer)
		if err != nil {
			return call, fmt.Errorf("invalid fee payer: %w", err)
		}
		if payer != e.Caller {
			if !verifyBase58(v, payer, payload, e.FeePayerSignature) {
				return call, errors.ErrBadSignature
			}
		}
		call = call.WithFeePayer(payer)
	}

	if e.TxSource != "" {
		src, err := types.ParseIdentity(e.TxSource)
		if err != nil {
			return call, fmt.Errorf("invalid tx source: %w", err)
		}
		if !call.SignedBy(src) {
			return call, errors.ErrNotAuthorized
		}
		call = call.WithTxSource(src)
	}
	return call, nil
}

// ConsumeNonce advances the caller's request nonce in view, failing with ErrBadNonce
// unless the envelope carries the caller's next nonce.
func (e Envelope) ConsumeNonce(view db.DatabaseProvider) error {
	nonces, err := store.NewGenericNonceStore(view)
	if err != nil {
		return err
	}
	next, err := nonces.Next(e.Caller)
	if err != nil {
		return err
	}
	if e.Nonce != next {
		return errors.NewError(errors.ErrCodeBadNonce, fmt.Sprintf("nonce %d used, next is %d", e.Nonce, next))
	}
	if next == math.MaxUint64 {
		return errors.ErrOverflow
	}
	return nonces.SetNext(e.Caller, next+1)
}

func verifyBase58(v host.Verifier, signer types.Identity, payload []byte, sig string) bool {
	if sig == "" {
		return false
	}
	raw, err := common.DecodeBase58ToBytes(sig)
	if err != nil {
		return false
	}
	return v.Verify(signer, payload, raw)
}

// extractClientIPFromRequest identifies the client for rate limiting. X-Forwarded-For is
// honoured only when the connecting peer is a trusted proxy; the client is then the
// rightmost forwarded address that is not itself a trusted proxy.
func extractClientIPFromRequest(r *http.Request, trusted []*net.IPNet) string {
	peer := "unknown"
	if addr, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && net.ParseIP(addr) != nil {
		peer = addr
	}
	if len(trusted) == 0 || !isTrustedProxy(net.ParseIP(peer), trusted) {
		return peer
	}

	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		return peer
	}
	logx.Debug("RPC", "X-Forwarded-For:", xff)
	parts := strings.Split(xff, ",")
	for i := len(parts) - 1; i >= 0; i-- {
		ip := net.ParseIP(strings.TrimSpace(parts[i]))
		if ip == nil {
			break
		}
		if !isTrustedProxy(ip, trusted) {
			return ip.String()
		}
	}
	return peer
}

func isTrustedProxy(ip net.IP, trusted []*net.IPNet) bool {
	if ip == nil {
		return false
	}
	for _, n := range trusted {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// parseTrustedProxies accepts bare IPs and CIDR ranges
func parseTrustedProxies(proxies []string) ([]*net.IPNet, error) {
	out := make([]*net.IPNet, 0, len(proxies))
	for _, p := range proxies {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.Contains(p, "/") {
			ip := net.ParseIP(p)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted proxy %q", p)
			}
			bits := 8 * net.IPv6len
			if v4 := ip.To4(); v4 != nil {
				ip, bits = v4, 8*net.IPv4len
			}
			out = append(out, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, n, err := net.ParseCIDR(p)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", p, err)
		}
		out = append(out, n)
	}
	return out, nil
}
