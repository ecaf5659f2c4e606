package vault

import (
	"context"
	"fmt"
	"strconv"

	"github.com/mezonai/custody/asset"
	"github.com/mezonai/custody/auth"
	"github.com/mezonai/custody/db"
	"github.com/mezonai/custody/errors"
	"github.com/mezonai/custody/events"
	"github.com/mezonai/custody/host"
	"github.com/mezonai/custody/logx"
	"github.com/mezonai/custody/store"
	"github.com/mezonai/custody/types"
)

// ProgramID is the identity of the vault program
var ProgramID = types.ProgramID("vault")

var (
	seedState   = []byte("state")
	seedCustody = []byte("custody")
)

// StateAddress is where the VaultState for mint lives. It is also the authority of the
// custody account.
func StateAddress(mint types.Identity) types.Identity {
	return types.DeriveAddress(ProgramID, seedState, mint[:])
}

// CustodyAddress is the asset account holding the custodied funds of mint
func CustodyAddress(mint types.Identity) types.Identity {
	return types.DeriveAddress(ProgramID, seedCustody, mint[:])
}

func signerSeeds(mint types.Identity) [][]byte {
	return [][]byte{seedState, mint[:]}
}

// DepositAccounts are the accounts a deposit or withdraw operates on. The user is the invoker.
type DepositAccounts struct {
	Mint      types.Identity
	UserToken types.Identity
	Custody   types.Identity
}

type WithdrawAccounts = DepositAccounts

// Reconciliation compares the tracked counter with the funds actually in custody
type Reconciliation struct {
	TotalDeposits  uint64 `json:"total_deposits"`
	CustodyBalance uint64 `json:"custody_balance"`
	Balanced       bool   `json:"balanced"`
}

type Vault struct {
	engine *host.Engine
	assets *asset.Program
	guard  *auth.Guard
	allow  map[byte]struct{}
}

type Option func(*Vault)

// WithExecAllowList sets the selectors exec accepts under the hardened profile
func WithExecAllowList(selectors []byte) Option {
	return func(v *Vault) {
		for _, s := range selectors {
			v.allow[s] = struct{}{}
		}
	}
}

func New(engine *host.Engine, assets *asset.Program, guard *auth.Guard, opts ...Option) *Vault {
	v := &Vault{
		engine: engine,
		assets: assets,
		guard:  guard,
		allow:  make(map[byte]struct{}),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func loadState(f *host.Frame, mint types.Identity) (*store.GenericVaultStore, *types.VaultState, error) {
	vs, err := store.NewGenericVaultStore(f.Store())
	if err != nil {
		return nil, nil, err
	}
	st, err := vs.Get(StateAddress(mint))
	if err != nil {
		return nil, nil, err
	}
	if st == nil {
		return vs, nil, errors.ErrNotInitialized
	}
	return vs, st, nil
}

// Initialize creates the vault for mint with the invoker as admin, and its custody account.
func (v *Vault) Initialize(ctx context.Context, call types.Call, mint types.Identity, bump uint8) error {
	return v.engine.Execute(ctx, call, "vault.initialize", func(ctx context.Context, f *host.Frame) error {
		if v.guard.Hardened() {
			if _, err := auth.EffectiveCaller(call); err != nil {
				return err
			}
		}
		vs, err := store.NewGenericVaultStore(f.Store())
		if err != nil {
			return err
		}
		addr := StateAddress(mint)

		if v.guard.Hardened() {
			lifecycle, err := vs.Lifecycle(addr)
			if err != nil {
				return err
			}
			if lifecycle == types.LifecycleInitialized {
				return errors.ErrAlreadyInitialized
			}
			if err := vs.SetLifecycle(addr, types.LifecycleInitialized); err != nil {
				return err
			}
		}

		m, err := v.assets.Mint(ctx, mint)
		if err != nil {
			return err
		}
		if m == nil {
			return asset.ErrAccountNotFound
		}

		st := &types.VaultState{Admin: call.Invoker, Mint: mint, Bump: bump}
		existing, err := vs.Get(addr)
		if err != nil {
			return err
		}
		if existing != nil {
			st.TotalDeposits = existing.TotalDeposits
			logx.Warn("VAULT", fmt.Sprintf("Re-initializing vault | mint=%s | old_admin=%s | new_admin=%s", mint, existing.Admin, st.Admin))
		}
		if err := vs.Store(addr, st); err != nil {
			return err
		}

		custody := CustodyAddress(mint)
		acc, err := v.assets.Account(ctx, custody)
		if err != nil {
			return err
		}
		switch {
		case acc == nil:
			if err := v.assets.CreateAccount(ctx, call.ViaProgram(ProgramID), custody, mint, addr); err != nil {
				return fmt.Errorf("failed to create custody account: %w", err)
			}
		case acc.Mint != mint || acc.Owner != addr:
			return errors.ErrConstraintViolation
		}

		logx.Info("VAULT", fmt.Sprintf("Initialized vault | mint=%s | admin=%s | bump=%d", mint, st.Admin, bump))
		f.Publish(ctx, events.NewEvent(events.TopicInit, ProgramID, 0,
			"mint", mint.String(), "admin", st.Admin.String(), "bump", strconv.Itoa(int(bump))))
		return nil
	})
}

func (v *Vault) checkAccounts(ctx context.Context, st *types.VaultState, accts DepositAccounts, requireCustodyMint bool) error {
	if st.Mint != accts.Mint {
		return errors.ErrConstraintViolation
	}
	if v.guard.Hardened() && accts.Custody != CustodyAddress(accts.Mint) {
		return errors.ErrConstraintViolation
	}
	if !requireCustodyMint && !v.guard.Hardened() {
		return nil
	}
	custody, err := v.assets.Account(ctx, accts.Custody)
	if err != nil {
		return err
	}
	if custody == nil {
		return asset.ErrAccountNotFound
	}
	if custody.Mint != accts.Mint {
		return errors.ErrConstraintViolation
	}
	return nil
}

// Deposit moves amount from the invoker's asset account into custody and adds it to
// total_deposits
func (v *Vault) Deposit(ctx context.Context, call types.Call, accts DepositAccounts, amount uint64) error {
	return v.engine.Execute(ctx, call, "vault.deposit", func(ctx context.Context, f *host.Frame) error {
		if amount == 0 {
			return errors.ErrBadAmount
		}
		if v.guard.Hardened() {
			if _, err := auth.EffectiveCaller(call); err != nil {
				return err
			}
		}
		vs, st, err := loadState(f, accts.Mint)
		if err != nil {
			return err
		}
		if err := v.checkAccounts(ctx, st, accts, true); err != nil {
			return err
		}

		if err := v.assets.Transfer(ctx, call.ViaProgram(ProgramID), asset.TransferParams{
			From:      accts.UserToken,
			To:        accts.Custody,
			Authority: call.Invoker,
			Amount:    amount,
		}); err != nil {
			return err
		}

		if v.guard.Hardened() {
			// the transfer may have re-entered; account from the stored record
			if _, st, err = loadState(f, accts.Mint); err != nil {
				return err
			}
		}
		st.TotalDeposits = saturatingAdd(st.TotalDeposits, amount)
		if err := vs.Store(StateAddress(accts.Mint), st); err != nil {
			return err
		}

		logx.Info("VAULT", fmt.Sprintf("Deposit | mint=%s | user=%s | amount=%d | total_deposits=%d", accts.Mint, call.Invoker, amount, st.TotalDeposits))
		f.Publish(ctx, events.NewEvent(events.TopicDeposit, ProgramID, amount,
			"mint", accts.Mint.String(), "user", call.Invoker.String()))
		return nil
	})
}

// Withdraw moves amount out of custody to the invoker's asset account, signed by the
// vault's derived authority
func (v *Vault) Withdraw(ctx context.Context, call types.Call, accts WithdrawAccounts, amount uint64) error {
	return v.engine.Execute(ctx, call, "vault.withdraw", func(ctx context.Context, f *host.Frame) error {
		if amount == 0 {
			return errors.ErrBadAmount
		}
		if v.guard.Hardened() {
			if _, err := auth.EffectiveCaller(call); err != nil {
				return err
			}
		}
		vs, st, err := loadState(f, accts.Mint)
		if err != nil {
			return err
		}
		if err := v.checkAccounts(ctx, st, accts, false); err != nil {
			return err
		}
		addr := StateAddress(accts.Mint)

		if v.guard.Hardened() {
			if st.TotalDeposits < amount {
				return errors.ErrInsufficientBalance
			}
			st.TotalDeposits -= amount
			if err := vs.Store(addr, st); err != nil {
				return err
			}
		}

		if err := v.assets.Transfer(ctx, call.ViaProgram(ProgramID), asset.TransferParams{
			From:        accts.Custody,
			To:          accts.UserToken,
			Authority:   addr,
			Amount:      amount,
			SignerSeeds: signerSeeds(accts.Mint),
		}); err != nil {
			return err
		}

		if !v.guard.Hardened() {
			st.TotalDeposits = saturatingSub(st.TotalDeposits, amount)
			if err := vs.Store(addr, st); err != nil {
				return err
			}
		}

		logx.Info("VAULT", fmt.Sprintf("Withdraw | mint=%s | user=%s | amount=%d | total_deposits=%d", accts.Mint, call.Invoker, amount, st.TotalDeposits))
		f.Publish(ctx, events.NewEvent(events.TopicWithdraw, ProgramID, amount,
			"mint", accts.Mint.String(), "user", call.Invoker.String()))
		return nil
	})
}

// SetAdmin replaces the vault admin
func (v *Vault) SetAdmin(ctx context.Context, call types.Call, mint, newAdmin types.Identity) error {
	return v.engine.Execute(ctx, call, "vault.set_admin", func(ctx context.Context, f *host.Frame) error {
		vs, st, err := loadState(f, mint)
		if err != nil {
			return err
		}
		if err := v.guard.AuthorizeAdmin(auth.OpVaultSetAdmin, call, st.Admin); err != nil {
			return err
		}
		old := st.Admin
		st.Admin = newAdmin
		if err := vs.Store(StateAddress(mint), st); err != nil {
			return err
		}
		logx.Info("VAULT", fmt.Sprintf("Admin changed | mint=%s | old=%s | new=%s | fee_payer=%s", mint, old, newAdmin, call.FeePayer))
		f.Publish(ctx, events.NewEvent(events.TopicSetAdmin, ProgramID, 0,
			"mint", mint.String(), "admin", newAdmin.String()))
		return nil
	})
}

// Exec is a placeholder forwarding hook; it forwards nothing and returns the data length.
// Under the hardened profile only the admin may call it, with an allow-listed selector.
func (v *Vault) Exec(ctx context.Context, call types.Call, mint types.Identity, data []byte) (int, error) {
	err := v.engine.Execute(ctx, call, "vault.exec", func(ctx context.Context, f *host.Frame) error {
		_, st, err := loadState(f, mint)
		if err != nil {
			return err
		}
		if v.guard.Hardened() {
			if err := v.guard.Require("vault.exec", call, st.Admin); err != nil {
				return err
			}
			if len(data) == 0 {
				return errors.ErrForbiddenTarget
			}
			if _, ok := v.allow[data[0]]; !ok {
				logx.Warn("VAULT", fmt.Sprintf("Exec selector not allowed | mint=%s | selector=%d", mint, data[0]))
				return errors.ErrForbiddenTarget
			}
		}
		logx.Info("VAULT", fmt.Sprintf("exec len %d", len(data)))
		f.Publish(ctx, events.NewEvent(events.TopicExec, ProgramID, uint64(len(data)), "mint", mint.String()))
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(data), nil
}

// State reads the vault record of mint
func (v *Vault) State(ctx context.Context, mint types.Identity) (*types.VaultState, error) {
	var st *types.VaultState
	err := v.engine.Query(ctx, func(view db.IterableProvider) error {
		vs, err := store.NewGenericVaultStore(view)
		if err != nil {
			return err
		}
		st, err = vs.Get(StateAddress(mint))
		if err != nil {
			return err
		}
		if st == nil {
			return errors.ErrNotInitialized
		}
		return nil
	})
	return st, err
}

// Reconcile reports whether total_deposits matches the custody account balance
func (v *Vault) Reconcile(ctx context.Context, mint types.Identity) (*Reconciliation, error) {
	st, err := v.State(ctx, mint)
	if err != nil {
		return nil, err
	}
	balance, err := v.assets.Balance(ctx, CustodyAddress(mint))
	if err != nil {
		return nil, err
	}
	return &Reconciliation{
		TotalDeposits:  st.TotalDeposits,
		CustodyBalance: balance,
		Balanced:       st.TotalDeposits == balance,
	}, nil
}

func saturatingAdd(a, b uint64) uint64 {
	if a > ^uint64(0)-b {
		return ^uint64(0)
	}
	return a + b
}

func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}
