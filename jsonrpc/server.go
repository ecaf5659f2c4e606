package jsonrpc

import (
	"context"
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/handler"
	"github.com/creachadair/jrpc2/jhttp"
	"github.com/mezonai/custody/asset"
	"github.com/mezonai/custody/common"
	"github.com/mezonai/custody/db"
	"github.com/mezonai/custody/errors"
	"github.com/mezonai/custody/exception"
	"github.com/mezonai/custody/host"
	"github.com/mezonai/custody/ledger"
	"github.com/mezonai/custody/logx"
	"github.com/mezonai/custody/monitoring"
	"github.com/mezonai/custody/ratelimit"
	"github.com/mezonai/custody/store"
	"github.com/mezonai/custody/types"
	"github.com/mezonai/custody/vault"
)

// Contract failures share one JSON-RPC code; the contract error code travels in data.
const (
	CodeContractError jrpc2.Code = -32000
	CodeBadEnvelope   jrpc2.Code = -32001
)

func toJRPC2Error(err error) error {
	if err == nil {
		return nil
	}
	var ce *errors.ContractError
	if stderrors.As(err, &ce) {
		code := CodeContractError
		if ce.Code == errors.ErrCodeBadSignature || ce.Code == errors.ErrCodeBadNonce {
			code = CodeBadEnvelope
		}
		return jrpc2.Errorf(code, "%s", ce.Message).WithData(ce)
	}
	return jrpc2.Errorf(jrpc2.InternalError, "%s", err.Error())
}

// --- Params/Results ---

type vaultInitializeArgs struct {
	Mint types.Identity `json:"mint"`
	Bump uint8          `json:"bump"`
}

type vaultInitializeParams struct {
	Auth Envelope            `json:"auth"`
	Args vaultInitializeArgs `json:"args"`
}

type vaultTransferArgs struct {
	Mint      types.Identity `json:"mint"`
	UserToken types.Identity `json:"user_token"`
	Custody   types.Identity `json:"custody"`
	Amount    uint64         `json:"amount"`
}

func (a vaultTransferArgs) accounts() vault.DepositAccounts {
	return vault.DepositAccounts{Mint: a.Mint, UserToken: a.UserToken, Custody: a.Custody}
}

type vaultTransferParams struct {
	Auth Envelope          `json:"auth"`
	Args vaultTransferArgs `json:"args"`
}

type vaultSetAdminArgs struct {
	Mint     types.Identity `json:"mint"`
	NewAdmin types.Identity `json:"new_admin"`
}

type vaultSetAdminParams struct {
	Auth Envelope          `json:"auth"`
	Args vaultSetAdminArgs `json:"args"`
}

type vaultExecArgs struct {
	Mint types.Identity `json:"mint"`
	Data string         `json:"data"` // hex
}

type vaultExecParams struct {
	Auth Envelope      `json:"auth"`
	Args vaultExecArgs `json:"args"`
}

type vaultExecResponse struct {
	Length int `json:"length"`
}

type mintRequest struct {
	Mint types.Identity `json:"mint"`
}

type ledgerInitArgs struct {
	Owner  types.Identity `json:"owner"`
	Admin  types.Identity `json:"admin"`
	Supply uint64         `json:"supply"`
}

type ledgerInitParams struct {
	Auth Envelope       `json:"auth"`
	Args ledgerInitArgs `json:"args"`
}

type whoRequest struct {
	Who types.Identity `json:"who"`
}

type allowanceRequest struct {
	Owner   types.Identity `json:"owner"`
	Spender types.Identity `json:"spender"`
}

type approveArgs struct {
	Owner   types.Identity `json:"owner"`
	Spender types.Identity `json:"spender"`
	Amount  uint64         `json:"amount"`
}

type approveParams struct {
	Auth Envelope    `json:"auth"`
	Args approveArgs `json:"args"`
}

type transferArgs struct {
	From   types.Identity `json:"from"`
	To     types.Identity `json:"to"`
	Amount uint64         `json:"amount"`
}

type transferParams struct {
	Auth Envelope     `json:"auth"`
	Args transferArgs `json:"args"`
}

type transferFromArgs struct {
	Spender types.Identity `json:"spender"`
	Owner   types.Identity `json:"owner"`
	To      types.Identity `json:"to"`
	Amount  uint64         `json:"amount"`
}

type transferFromParams struct {
	Auth Envelope         `json:"auth"`
	Args transferFromArgs `json:"args"`
}

type ledgerMintArgs struct {
	To     types.Identity `json:"to"`
	Amount uint64         `json:"amount"`
}

type ledgerMintParams struct {
	Auth Envelope       `json:"auth"`
	Args ledgerMintArgs `json:"args"`
}

type ledgerSetAdminArgs struct {
	NewAdmin types.Identity `json:"new_admin"`
}

type ledgerSetAdminParams struct {
	Auth Envelope           `json:"auth"`
	Args ledgerSetAdminArgs `json:"args"`
}

type permitArgs struct {
	Owner     types.Identity `json:"owner"`
	Spender   types.Identity `json:"spender"`
	Amount    uint64         `json:"amount"`
	Signature string         `json:"signature"` // base58
}

type permitParams struct {
	Auth Envelope   `json:"auth"`
	Args permitArgs `json:"args"`
}

type permitMessageResponse struct {
	Message string `json:"message"` // hex of the signed bytes
	Nonce   uint64 `json:"nonce"`
}

type accountRequest struct {
	Account types.Identity `json:"account"`
}

type okResponse struct {
	Ok bool `json:"ok"`
}

type amountResponse struct {
	Amount uint64 `json:"amount"`
}

type identityResponse struct {
	Identity types.Identity `json:"identity"`
}

type healthResponse struct {
	Status  string `json:"status"`
	Profile string `json:"profile"`
}

// --- Server ---

type Server struct {
	addr       string
	engine     *host.Engine
	vault      *vault.Vault
	ledger     *ledger.Ledger
	assets     *asset.Program
	verifier   host.Verifier
	profile    string
	corsConfig CORSConfig
	limiter    *ratelimit.RateLimiter
	proxies    []*net.IPNet
	httpServer *http.Server
	bridge     interface {
		http.Handler
		Close() error
	}
}

type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	MaxAge         int
}

// NewServer serves the programs hosted by engine; signed requests run as transactions on it
func NewServer(addr string, engine *host.Engine, v *vault.Vault, l *ledger.Ledger, assets *asset.Program, profile string) *Server {
	return &Server{
		addr:     addr,
		engine:   engine,
		vault:    v,
		ledger:   l,
		assets:   assets,
		verifier: host.Ed25519Verifier{},
		profile:  profile,
		corsConfig: CORSConfig{
			AllowedOrigins: []string{},
			AllowedMethods: []string{},
			AllowedHeaders: []string{},
			MaxAge:         0,
		},
	}
}

// Handler serves JSON-RPC on / and prometheus metrics on /metrics
func (s *Server) Handler() http.Handler {
	s.bridge = jhttp.NewBridge(s.buildMethodMap(), &jhttp.BridgeOptions{Server: &jrpc2.ServerOptions{}})

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.setCORSHeaders(w, r)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		ip := extractClientIPFromRequest(r, s.proxies)
		if s.limiter != nil && !s.limiter.Allow(ip) {
			monitoring.IncreaseRateLimited()
			logx.Warn("RPC", "Rate limit exceeded for", ip)
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		s.bridge.ServeHTTP(w, r)
	})

	mux := http.NewServeMux()
	monitoring.RegisterMetrics(mux)
	mux.Handle("/", h)
	return mux
}

// Start listens on the configured address and serves in the background
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logx.Info("RPC", "JSON-RPC server listening on", ln.Addr().String())
	exception.SafeGo("JSONRPCServer", func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			logx.Error("RPC", "JSON-RPC server stopped:", err)
		}
	})
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	err := s.httpServer.Shutdown(ctx)
	s.bridge.Close()
	if s.limiter != nil {
		s.limiter.Stop()
	}
	return err
}

// SetRateLimiter limits requests per client IP; nil disables limiting
func (s *Server) SetRateLimiter(rl *ratelimit.RateLimiter) {
	s.limiter = rl
}

// SetTrustedProxies sets the proxies (IPs or CIDRs) whose X-Forwarded-For header is honoured
// when identifying the client for rate limiting. With none set the header is ignored.
func (s *Server) SetTrustedProxies(proxies []string) error {
	nets, err := parseTrustedProxies(proxies)
	if err != nil {
		return err
	}
	s.proxies = nets
	return nil
}

// SetCORSConfig allows configuring CORS settings
func (s *Server) SetCORSConfig(config CORSConfig) {
	s.corsConfig = config
}

// Build jrpc2 method map
func (s *Server) buildMethodMap() handler.Map {
	return handler.Map{
		// Vault methods
		MethodVaultInitialize: handler.New(func(ctx context.Context, p vaultInitializeParams) (*okResponse, error) {
			return s.ok(s.signed(ctx, p.Auth, MethodVaultInitialize, p.Args, func(ctx context.Context, call types.Call) error {
				return s.vault.Initialize(ctx, call, p.Args.Mint, p.Args.Bump)
			}))
		}),
		MethodVaultDeposit: handler.New(func(ctx context.Context, p vaultTransferParams) (*okResponse, error) {
			return s.ok(s.signed(ctx, p.Auth, MethodVaultDeposit, p.Args, func(ctx context.Context, call types.Call) error {
				return s.vault.Deposit(ctx, call, p.Args.accounts(), p.Args.Amount)
			}))
		}),
		MethodVaultWithdraw: handler.New(func(ctx context.Context, p vaultTransferParams) (*okResponse, error) {
			return s.ok(s.signed(ctx, p.Auth, MethodVaultWithdraw, p.Args, func(ctx context.Context, call types.Call) error {
				return s.vault.Withdraw(ctx, call, p.Args.accounts(), p.Args.Amount)
			}))
		}),
		MethodVaultSetAdmin: handler.New(func(ctx context.Context, p vaultSetAdminParams) (*okResponse, error) {
			return s.ok(s.signed(ctx, p.Auth, MethodVaultSetAdmin, p.Args, func(ctx context.Context, call types.Call) error {
				return s.vault.SetAdmin(ctx, call, p.Args.Mint, p.Args.NewAdmin)
			}))
		}),
		MethodVaultExec: handler.New(func(ctx context.Context, p vaultExecParams) (*vaultExecResponse, error) {
			data, err := hex.DecodeString(strings.TrimPrefix(p.Args.Data, "0x"))
			if err != nil {
				return nil, jrpc2.Errorf(jrpc2.InvalidParams, "invalid exec data: %v", err)
			}
			var n int
			err = s.signed(ctx, p.Auth, MethodVaultExec, p.Args, func(ctx context.Context, call types.Call) error {
				var execErr error
				n, execErr = s.vault.Exec(ctx, call, p.Args.Mint, data)
				return execErr
			})
			if err != nil {
				return nil, toJRPC2Error(err)
			}
			return &vaultExecResponse{Length: n}, nil
		}),
		MethodVaultState: handler.New(func(ctx context.Context, p mintRequest) (*types.VaultState, error) {
			st, err := s.vault.State(ctx, p.Mint)
			if err != nil {
				return nil, toJRPC2Error(err)
			}
			return st, nil
		}),
		MethodVaultReconcile: handler.New(func(ctx context.Context, p mintRequest) (*vault.Reconciliation, error) {
			rec, err := s.vault.Reconcile(ctx, p.Mint)
			if err != nil {
				return nil, toJRPC2Error(err)
			}
			return rec, nil
		}),

		// Ledger methods
		MethodLedgerInit: handler.New(func(ctx context.Context, p ledgerInitParams) (*okResponse, error) {
			return s.ok(s.signed(ctx, p.Auth, MethodLedgerInit, p.Args, func(ctx context.Context, call types.Call) error {
				return s.ledger.Init(ctx, call, p.Args.Owner, p.Args.Admin, p.Args.Supply)
			}))
		}),
		MethodLedgerOwner: handler.New(func(ctx context.Context) (*identityResponse, error) {
			return s.identity(s.ledger.Owner(ctx))
		}),
		MethodLedgerAdmin: handler.New(func(ctx context.Context) (*identityResponse, error) {
			return s.identity(s.ledger.Admin(ctx))
		}),
		MethodLedgerTotalSupply: handler.New(func(ctx context.Context) (*amountResponse, error) {
			return s.amount(s.ledger.TotalSupply(ctx))
		}),
		MethodLedgerBalanceOf: handler.New(func(ctx context.Context, p whoRequest) (*amountResponse, error) {
			return s.amount(s.ledger.BalanceOf(ctx, p.Who))
		}),
		MethodLedgerAllowance: handler.New(func(ctx context.Context, p allowanceRequest) (*amountResponse, error) {
			return s.amount(s.ledger.Allowance(ctx, p.Owner, p.Spender))
		}),
		MethodLedgerNonce: handler.New(func(ctx context.Context, p whoRequest) (*amountResponse, error) {
			return s.amount(s.ledger.Nonce(ctx, p.Who))
		}),
		MethodLedgerApprove: handler.New(func(ctx context.Context, p approveParams) (*okResponse, error) {
			return s.ok(s.signed(ctx, p.Auth, MethodLedgerApprove, p.Args, func(ctx context.Context, call types.Call) error {
				return s.ledger.Approve(ctx, call, p.Args.Owner, p.Args.Spender, p.Args.Amount)
			}))
		}),
		MethodLedgerTransfer: handler.New(func(ctx context.Context, p transferParams) (*okResponse, error) {
			return s.ok(s.signed(ctx, p.Auth, MethodLedgerTransfer, p.Args, func(ctx context.Context, call types.Call) error {
				return s.ledger.Transfer(ctx, call, p.Args.From, p.Args.To, p.Args.Amount)
			}))
		}),
		MethodLedgerTransferFrom: handler.New(func(ctx context.Context, p transferFromParams) (*okResponse, error) {
			return s.ok(s.signed(ctx, p.Auth, MethodLedgerTransferFrom, p.Args, func(ctx context.Context, call types.Call) error {
				return s.ledger.TransferFrom(ctx, call, p.Args.Spender, p.Args.Owner, p.Args.To, p.Args.Amount)
			}))
		}),
		MethodLedgerMint: handler.New(func(ctx context.Context, p ledgerMintParams) (*okResponse, error) {
			return s.ok(s.signed(ctx, p.Auth, MethodLedgerMint, p.Args, func(ctx context.Context, call types.Call) error {
				return s.ledger.Mint(ctx, call, p.Args.To, p.Args.Amount)
			}))
		}),
		MethodLedgerSetAdmin: handler.New(func(ctx context.Context, p ledgerSetAdminParams) (*okResponse, error) {
			return s.ok(s.signed(ctx, p.Auth, MethodLedgerSetAdmin, p.Args, func(ctx context.Context, call types.Call) error {
				return s.ledger.SetAdmin(ctx, call, p.Args.NewAdmin)
			}))
		}),
		MethodLedgerPermit: handler.New(func(ctx context.Context, p permitParams) (*okResponse, error) {
			sig, err := common.DecodeBase58ToBytes(p.Args.Signature)
			if err != nil {
				return nil, jrpc2.Errorf(jrpc2.InvalidParams, "invalid permit signature: %v", err)
			}
			return s.ok(s.signed(ctx, p.Auth, MethodLedgerPermit, p.Args, func(ctx context.Context, call types.Call) error {
				return s.ledger.Permit(ctx, call, p.Args.Owner, p.Args.Spender, p.Args.Amount, sig)
			}))
		}),
		MethodLedgerPermitMessage: handler.New(func(ctx context.Context, p approveArgs) (*permitMessageResponse, error) {
			m, err := s.ledger.PermitMessage(ctx, p.Owner, p.Spender, p.Amount)
			if err != nil {
				return nil, toJRPC2Error(err)
			}
			return &permitMessageResponse{Message: hex.EncodeToString(m.Bytes()), Nonce: m.Nonce}, nil
		}),
		MethodLedgerAudit: handler.New(func(ctx context.Context) (*ledger.AuditReport, error) {
			report, err := s.ledger.Audit(ctx)
			if err != nil {
				return nil, toJRPC2Error(err)
			}
			return report, nil
		}),

		// Asset methods
		MethodAssetBalance: handler.New(func(ctx context.Context, p accountRequest) (*amountResponse, error) {
			return s.amount(s.assets.Balance(ctx, p.Account))
		}),

		// Envelope methods
		MethodAuthNonce: handler.New(func(ctx context.Context, p whoRequest) (*amountResponse, error) {
			return s.amount(s.nextNonce(ctx, p.Who))
		}),

		MethodHealthCheck: handler.New(func(ctx context.Context) (*healthResponse, error) {
			return &healthResponse{Status: "ok", Profile: s.profile}, nil
		}),
	}
}

// --- Helpers ---

// signed verifies auth for method and args, then runs op in one transaction that also
// consumes the caller's request nonce. A replayed envelope fails with bad_nonce; a failed
// op leaves the nonce unused.
func (s *Server) signed(ctx context.Context, auth Envelope, method string, args interface{}, op func(ctx context.Context, call types.Call) error) error {
	call, err := auth.Call(s.verifier, method, args)
	if err != nil {
		return err
	}
	return s.engine.Transaction(ctx, call, "rpc."+method, func(ctx context.Context, f *host.Frame) error {
		if err := auth.ConsumeNonce(f.Store()); err != nil {
			logx.Warn("RPC", fmt.Sprintf("Rejected %s | caller=%s | %v", method, auth.Caller, err))
			return err
		}
		return op(ctx, call)
	})
}

func (s *Server) nextNonce(ctx context.Context, who types.Identity) (uint64, error) {
	var next uint64
	err := s.engine.Query(ctx, func(view db.IterableProvider) error {
		nonces, err := store.NewGenericNonceStore(view)
		if err != nil {
			return err
		}
		next, err = nonces.Next(who)
		return err
	})
	return next, err
}

func (s *Server) ok(err error) (*okResponse, error) {
	if err != nil {
		return nil, toJRPC2Error(err)
	}
	return &okResponse{Ok: true}, nil
}

func (s *Server) amount(v uint64, err error) (*amountResponse, error) {
	if err != nil {
		return nil, toJRPC2Error(err)
	}
	return &amountResponse{Amount: v}, nil
}

func (s *Server) identity(id types.Identity, err error) (*identityResponse, error) {
	if err != nil {
		return nil, toJRPC2Error(err)
	}
	return &identityResponse{Identity: id}, nil
}

func (s *Server) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	// Set allowed origins
	if len(s.corsConfig.AllowedOrigins) > 0 {
		if s.corsConfig.AllowedOrigins[0] == "*" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			origin := r.Header.Get("Origin")
			for _, allowedOrigin := range s.corsConfig.AllowedOrigins {
				if origin == allowedOrigin {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
	}

	if len(s.corsConfig.AllowedMethods) > 0 {
		w.Header().Set("Access-Control-Allow-Methods", strings.Join(s.corsConfig.AllowedMethods, ", "))
	}

	if len(s.corsConfig.AllowedHeaders) > 0 {
		w.Header().Set("Access-Control-Allow-Headers", strings.Join(s.corsConfig.AllowedHeaders, ", "))
	}

	if s.corsConfig.MaxAge > 0 {
		w.Header().Set("Access-Control-Max-Age", fmt.Sprintf("%d", s.corsConfig.MaxAge))
	}
}

// --- Env helpers ---

// CORSFromEnv reads environment variables and constructs a CORSConfig.
// Returns (cfg, true) if any CORS-related env var is set; otherwise (zero, false).
//
// Env vars:
// - CORS_ALLOWED_ORIGINS: comma-separated list
// - CORS_ALLOWED_METHODS: comma-separated list
// - CORS_ALLOWED_HEADERS: comma-separated list
// - CORS_MAX_AGE: integer seconds
func CORSFromEnv() (CORSConfig, bool) {
	origins := os.Getenv("CORS_ALLOWED_ORIGINS")
	methods := os.Getenv("CORS_ALLOWED_METHODS")
	headers := os.Getenv("CORS_ALLOWED_HEADERS")
	maxAgeStr := os.Getenv("CORS_MAX_AGE")

	var maxAge int
	if maxAgeStr != "" {
		if v, err := strconv.Atoi(maxAgeStr); err == nil {
			maxAge = v
		}
	}

	var allowedOrigins, allowedMethods, allowedHeaders []string
	if origins != "" {
		allowedOrigins = splitAndTrim(origins)
	}
	if methods != "" {
		allowedMethods = splitAndTrim(methods)
	}
	if headers != "" {
		allowedHeaders = splitAndTrim(headers)
	}

	provided := len(allowedOrigins) > 0 || len(allowedMethods) > 0 || len(allowedHeaders) > 0 || maxAge > 0
	if !provided {
		return CORSConfig{}, false
	}

	return CORSConfig{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: allowedMethods,
		AllowedHeaders: allowedHeaders,
		MaxAge:         maxAge,
	}, true
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	var out []string
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
