package auth

import (
	"fmt"

	"github.com/mezonai/custody/config"
	"github.com/mezonai/custody/errors"
	"github.com/mezonai/custody/logx"
	"github.com/mezonai/custody/monitoring"
	"github.com/mezonai/custody/types"
)

// Predicate is an as-built authorization rule comparing a call to a stored principal
type Predicate func(call types.Call, principal types.Identity) bool

// Privileged operations and the as-built predicate each one uses
const (
	OpVaultSetAdmin  = "vault.set_admin"
	OpLedgerMint     = "ledger.mint"
	OpLedgerSetAdmin = "ledger.set_admin"
)

var asBuiltPredicates = map[string]namedPredicate{
	OpVaultSetAdmin:  {"fee_payer", FeePayerIs},
	OpLedgerMint:     {"invoker_or_tx_source", InvokerOrTxSource},
	OpLedgerSetAdmin: {"invoker_or_tx_source", InvokerOrTxSource},
}

type namedPredicate struct {
	name string
	fn   Predicate
}

// FeePayerIs authorizes when the fee paying identity equals principal
func FeePayerIs(call types.Call, principal types.Identity) bool {
	return call.FeePayer == principal
}

// InvokerOrTxSource authorizes when principal equals the invoker or the transaction source.
// A call without a transaction source compares principal with itself and passes.
func InvokerOrTxSource(call types.Call, principal types.Identity) bool {
	source := principal
	if call.TxSource != nil {
		source = *call.TxSource
	}
	return principal == call.Invoker || principal == source
}

// EffectiveCaller is the one identity authorization compares against: the invoker,
// provided the platform verified its signature on this call.
func EffectiveCaller(call types.Call) (types.Identity, error) {
	if call.Invoker.IsZero() || !call.SignedBy(call.Invoker) {
		return types.ZeroIdentity, errors.ErrNotAuthorized
	}
	return call.Invoker, nil
}

// Guard applies the configured profile to privileged operations
type Guard struct {
	profile config.Profile
}

func NewGuard(profile config.Profile) *Guard {
	return &Guard{profile: profile}
}

func (g *Guard) Profile() config.Profile {
	return g.profile
}

func (g *Guard) Hardened() bool {
	return g.profile.Hardened()
}

// Require fails unless the effective caller is principal
func (g *Guard) Require(op string, call types.Call, principal types.Identity) error {
	caller, err := EffectiveCaller(call)
	if err != nil {
		return g.deny(op, "effective_caller", "unsigned invoker "+call.Invoker.String())
	}
	if caller != principal {
		return g.deny(op, "effective_caller", fmt.Sprintf("caller %s is not %s", caller, principal))
	}
	return nil
}

// AuthorizeAdmin checks a privileged operation against its stored principal: the as-built
// predicate registered for op, or Require under the hardened profile.
func (g *Guard) AuthorizeAdmin(op string, call types.Call, principal types.Identity) error {
	if g.Hardened() {
		return g.Require(op, call, principal)
	}
	p, ok := asBuiltPredicates[op]
	if !ok {
		return fmt.Errorf("no authorization predicate registered for %s", op)
	}
	if !p.fn(call, principal) {
		return g.deny(op, p.name, "principal "+principal.String())
	}
	return nil
}

func (g *Guard) deny(op, predicate, detail string) error {
	monitoring.RecordDenied(op, predicate)
	logx.Warn("AUTH", fmt.Sprintf("Denied %s | predicate=%s | %s", op, predicate, detail))
	return errors.ErrNotAuthorized
}
