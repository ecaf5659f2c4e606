package ledger

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/mezonai/custody/auth"
	"github.com/mezonai/custody/db"
	"github.com/mezonai/custody/errors"
	"github.com/mezonai/custody/events"
	"github.com/mezonai/custody/host"
	"github.com/mezonai/custody/logx"
	"github.com/mezonai/custody/permit"
	"github.com/mezonai/custody/store"
	"github.com/mezonai/custody/types"
)

// ProgramID is the default ledger instance identity
var ProgramID = types.ProgramID("ledger")

// AuditReport compares the sum of all balances with the recorded supply
type AuditReport struct {
	TotalSupply uint64 `json:"total_supply"`
	BalanceSum  string `json:"balance_sum"`
	Accounts    int    `json:"accounts"`
	Conserved   bool   `json:"conserved"`
}

// Ledger is one fungible balance ledger instance, its records namespaced by id
type Ledger struct {
	engine *host.Engine
	guard  *auth.Guard
	id     types.Identity
}

func New(engine *host.Engine, guard *auth.Guard, id types.Identity) *Ledger {
	return &Ledger{engine: engine, guard: guard, id: id}
}

func (l *Ledger) ID() types.Identity {
	return l.id
}

func (l *Ledger) execute(ctx context.Context, call types.Call, op string, fn func(ctx context.Context, f *host.Frame, s store.LedgerStore) error) error {
	return l.engine.Execute(ctx, call, op, func(ctx context.Context, f *host.Frame) error {
		s, err := store.NewGenericLedgerStore(f.Store(), l.id)
		if err != nil {
			return err
		}
		return fn(ctx, f, s)
	})
}

func (l *Ledger) query(ctx context.Context, fn func(s store.LedgerStore) error) error {
	return l.engine.Query(ctx, func(view db.IterableProvider) error {
		s, err := store.NewGenericLedgerStore(view, l.id)
		if err != nil {
			return err
		}
		return fn(s)
	})
}

func (l *Ledger) event(topic events.Topic, amount uint64, kv ...string) events.Event {
	return events.NewEvent(topic, l.id, amount, kv...)
}

// Init records owner, admin and supply and credits the whole supply to owner
func (l *Ledger) Init(ctx context.Context, call types.Call, owner, admin types.Identity, supply uint64) error {
	return l.execute(ctx, call, "ledger.init", func(ctx context.Context, f *host.Frame, s store.LedgerStore) error {
		if l.guard.Hardened() {
			lifecycle, err := s.Lifecycle()
			if err != nil {
				return err
			}
			if lifecycle == types.LifecycleInitialized {
				return errors.ErrAlreadyInitialized
			}
			if err := s.SetLifecycle(types.LifecycleInitialized); err != nil {
				return err
			}
		}
		if err := s.SetOwner(owner); err != nil {
			return err
		}
		if err := s.SetAdmin(admin); err != nil {
			return err
		}
		if err := s.SetTotalSupply(supply); err != nil {
			return err
		}
		if err := s.SetBalance(owner, supply); err != nil {
			return err
		}
		logx.Info("LEDGER", fmt.Sprintf("Initialized ledger %s | owner=%s | admin=%s | supply=%d | invoker=%s", l.id, owner, admin, supply, call.Invoker))
		f.Publish(ctx, l.event(events.TopicInit, supply, "owner", owner.String(), "admin", admin.String()))
		return nil
	})
}

func (l *Ledger) Owner(ctx context.Context) (types.Identity, error) {
	return l.readIdentity(ctx, store.LedgerStore.Owner)
}

func (l *Ledger) Admin(ctx context.Context) (types.Identity, error) {
	return l.readIdentity(ctx, store.LedgerStore.Admin)
}

func (l *Ledger) readIdentity(ctx context.Context, read func(store.LedgerStore) (types.Identity, bool, error)) (types.Identity, error) {
	var id types.Identity
	err := l.query(ctx, func(s store.LedgerStore) error {
		v, ok, err := read(s)
		if err != nil {
			return err
		}
		if !ok {
			return errors.ErrNotInitialized
		}
		id = v
		return nil
	})
	return id, err
}

func (l *Ledger) TotalSupply(ctx context.Context) (uint64, error) {
	var v uint64
	err := l.query(ctx, func(s store.LedgerStore) (err error) {
		v, err = s.TotalSupply()
		return err
	})
	return v, err
}

func (l *Ledger) BalanceOf(ctx context.Context, who types.Identity) (uint64, error) {
	var v uint64
	err := l.query(ctx, func(s store.LedgerStore) (err error) {
		v, err = s.Balance(who)
		return err
	})
	return v, err
}

func (l *Ledger) Allowance(ctx context.Context, owner, spender types.Identity) (uint64, error) {
	var v uint64
	err := l.query(ctx, func(s store.LedgerStore) (err error) {
		v, err = s.Allowance(owner, spender)
		return err
	})
	return v, err
}

func (l *Ledger) Nonce(ctx context.Context, who types.Identity) (uint64, error) {
	var v uint64
	err := l.query(ctx, func(s store.LedgerStore) (err error) {
		v, err = s.Nonce(who)
		return err
	})
	return v, err
}

// Approve sets the allowance of spender over owner's balance
func (l *Ledger) Approve(ctx context.Context, call types.Call, owner, spender types.Identity, amount uint64) error {
	return l.execute(ctx, call, "ledger.approve", func(ctx context.Context, f *host.Frame, s store.LedgerStore) error {
		if l.guard.Hardened() {
			if err := l.guard.Require("ledger.approve", call, owner); err != nil {
				return err
			}
		}
		if err := s.SetAllowance(owner, spender, amount); err != nil {
			return err
		}
		logx.Debug("LEDGER", fmt.Sprintf("Approve | owner=%s | spender=%s | amount=%d | invoker=%s", owner, spender, amount, call.Invoker))
		f.Publish(ctx, l.event(events.TopicApprove, amount, "owner", owner.String(), "spender", spender.String()))
		return nil
	})
}

// Transfer moves amount from from to to
func (l *Ledger) Transfer(ctx context.Context, call types.Call, from, to types.Identity, amount uint64) error {
	return l.execute(ctx, call, "ledger.transfer", func(ctx context.Context, f *host.Frame, s store.LedgerStore) error {
		if l.guard.Hardened() {
			if err := l.guard.Require("ledger.transfer", call, from); err != nil {
				return err
			}
		}
		return l.transfer(ctx, f, s, from, to, amount)
	})
}

// transfer is shared by Transfer and TransferFrom. As built the event goes out before the
// balance check.
func (l *Ledger) transfer(ctx context.Context, f *host.Frame, s store.LedgerStore, from, to types.Identity, amount uint64) error {
	ev := l.event(events.TopicTransfer, amount, "from", from.String(), "to", to.String())
	if !l.guard.Hardened() {
		f.Publish(ctx, ev)
	}

	fromBal, err := s.Balance(from)
	if err != nil {
		return err
	}
	if fromBal < amount {
		return errors.ErrInsufficientBalance
	}
	if err := s.SetBalance(from, fromBal-amount); err != nil {
		return err
	}
	// read after the debit so a self-transfer nets to zero
	toBal, err := s.Balance(to)
	if err != nil {
		return err
	}
	if toBal > ^uint64(0)-amount {
		return errors.ErrOverflow
	}
	if err := s.SetBalance(to, toBal+amount); err != nil {
		return err
	}

	if l.guard.Hardened() {
		f.Publish(ctx, ev)
	}
	return nil
}

// TransferFrom moves amount from owner to to on spender's behalf, consuming allowance
// unless spender is owner
func (l *Ledger) TransferFrom(ctx context.Context, call types.Call, spender, owner, to types.Identity, amount uint64) error {
	return l.execute(ctx, call, "ledger.transfer_from", func(ctx context.Context, f *host.Frame, s store.LedgerStore) error {
		if l.guard.Hardened() {
			if err := l.guard.Require("ledger.transfer_from", call, spender); err != nil {
				return err
			}
		}
		if spender != owner {
			allowance, err := s.Allowance(owner, spender)
			if err != nil {
				return err
			}
			if allowance < amount {
				return errors.ErrInsufficientAllowance
			}
			if err := s.SetAllowance(owner, spender, allowance-amount); err != nil {
				return err
			}
		}
		return l.transfer(ctx, f, s, owner, to, amount)
	})
}

// Mint creates amount new units for to; the admin authorizes
func (l *Ledger) Mint(ctx context.Context, call types.Call, to types.Identity, amount uint64) error {
	return l.execute(ctx, call, "ledger.mint", func(ctx context.Context, f *host.Frame, s store.LedgerStore) error {
		admin, ok, err := s.Admin()
		if err != nil {
			return err
		}
		if !ok {
			return errors.ErrNotInitialized
		}
		if err := l.guard.AuthorizeAdmin(auth.OpLedgerMint, call, admin); err != nil {
			return err
		}

		supply, err := s.TotalSupply()
		if err != nil {
			return err
		}
		bal, err := s.Balance(to)
		if err != nil {
			return err
		}
		if l.guard.Hardened() {
			if supply > ^uint64(0)-amount || bal > ^uint64(0)-amount {
				return errors.ErrOverflow
			}
		}
		if err := s.SetTotalSupply(saturatingAdd(supply, amount)); err != nil {
			return err
		}
		if err := s.SetBalance(to, saturatingAdd(bal, amount)); err != nil {
			return err
		}
		logx.Info("LEDGER", fmt.Sprintf("Mint | to=%s | amount=%d | invoker=%s", to, amount, call.Invoker))
		f.Publish(ctx, l.event(events.TopicMint, amount, "to", to.String()))
		return nil
	})
}

// SetAdmin replaces the admin; the owner authorizes
func (l *Ledger) SetAdmin(ctx context.Context, call types.Call, newAdmin types.Identity) error {
	return l.execute(ctx, call, "ledger.set_admin", func(ctx context.Context, f *host.Frame, s store.LedgerStore) error {
		owner, ok, err := s.Owner()
		if err != nil {
			return err
		}
		if !ok {
			return errors.ErrNotInitialized
		}
		if err := l.guard.AuthorizeAdmin(auth.OpLedgerSetAdmin, call, owner); err != nil {
			return err
		}
		if err := s.SetAdmin(newAdmin); err != nil {
			return err
		}
		logx.Info("LEDGER", fmt.Sprintf("Admin changed | admin=%s | invoker=%s", newAdmin, call.Invoker))
		f.Publish(ctx, l.event(events.TopicSetAdmin, 0, "admin", newAdmin.String()))
		return nil
	})
}

// PermitMessage is the message owner must sign for a permit accepted right now
func (l *Ledger) PermitMessage(ctx context.Context, owner, spender types.Identity, amount uint64) (permit.Message, error) {
	nonce, err := l.Nonce(ctx, owner)
	if err != nil {
		return permit.Message{}, err
	}
	return l.permitMessage(owner, spender, amount, nonce), nil
}

func (l *Ledger) permitMessage(owner, spender types.Identity, amount, nonce uint64) permit.Message {
	m := permit.Message{Owner: owner, Spender: spender, Amount: amount, Nonce: nonce}
	if l.guard.Hardened() {
		id := l.id
		m.Ledger = &id
	}
	return m
}

// Permit sets an allowance authorized by owner's signature instead of owner's call
func (l *Ledger) Permit(ctx context.Context, call types.Call, owner, spender types.Identity, amount uint64, sig []byte) error {
	return l.execute(ctx, call, "ledger.permit", func(ctx context.Context, f *host.Frame, s store.LedgerStore) error {
		nonce, err := s.Nonce(owner)
		if err != nil {
			return err
		}
		if !permit.Verify(f, f, l.permitMessage(owner, spender, amount, nonce), sig) {
			return errors.ErrBadSignature
		}
		if err := s.SetAllowance(owner, spender, amount); err != nil {
			return err
		}
		if l.guard.Hardened() {
			if err := s.SetNonce(owner, nonce+1); err != nil {
				return err
			}
		}
		logx.Debug("LEDGER", fmt.Sprintf("Permit | owner=%s | spender=%s | amount=%d | nonce=%d", owner, spender, amount, nonce))
		f.Publish(ctx, l.event(events.TopicPermit, amount, "owner", owner.String(), "spender", spender.String()))
		return nil
	})
}

// Audit sums every balance in 256-bit arithmetic and compares with total supply
func (l *Ledger) Audit(ctx context.Context) (*AuditReport, error) {
	report := &AuditReport{}
	err := l.query(ctx, func(s store.LedgerStore) error {
		supply, err := s.TotalSupply()
		if err != nil {
			return err
		}
		sum := new(uint256.Int)
		err = s.IterateBalances(func(who types.Identity, balance uint64) bool {
			sum.Add(sum, uint256.NewInt(balance))
			report.Accounts++
			return true
		})
		if err != nil {
			return err
		}
		report.TotalSupply = supply
		report.BalanceSum = sum.Dec()
		report.Conserved = sum.Eq(uint256.NewInt(supply))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func saturatingAdd(a, b uint64) uint64 {
	if a > ^uint64(0)-b {
		return ^uint64(0)
	}
	return a + b
}
