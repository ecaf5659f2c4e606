package asset

import (
	"context"
	"fmt"

	"github.com/mezonai/custody/db"
	"github.com/mezonai/custody/errors"
	"github.com/mezonai/custody/host"
	"github.com/mezonai/custody/logx"
	"github.com/mezonai/custody/store"
	"github.com/mezonai/custody/types"
)

// ProgramID is the identity of the asset program
var ProgramID = types.ProgramID("asset")

var (
	ErrInsufficientFunds = errors.NewError("insufficient_funds", "Asset account has insufficient funds")
	ErrMintMismatch      = errors.NewError("mint_mismatch", "Asset accounts belong to different mints")
	ErrAccountNotFound   = errors.NewError("account_not_found", "Asset account or mint not found")
	ErrMissingSignature  = errors.NewError("missing_signature", "Transfer authority did not sign")
	ErrAccountExists     = errors.NewError("account_exists", "Asset account already exists")
)

// TransferParams moves Amount from From to To. Authority must own From and either sign the
// call or be the address the invoking program derives from SignerSeeds.
type TransferParams struct {
	From        types.Identity
	To          types.Identity
	Authority   types.Identity
	Amount      uint64
	SignerSeeds [][]byte
}

// TransferHook runs inside a transfer after the balances moved, before it returns
type TransferHook func(ctx context.Context, call types.Call, params TransferParams) error

// Program holds fungible asset accounts. It is the external transfer primitive the vault
// calls into.
type Program struct {
	engine *host.Engine
	hooks  []TransferHook
}

func NewProgram(engine *host.Engine) *Program {
	return &Program{engine: engine}
}

// OnTransfer registers a hook run inside every transfer
func (p *Program) OnTransfer(hook TransferHook) {
	p.hooks = append(p.hooks, hook)
}

// AssociatedAddress is the default account address for owner's holdings of mint
func AssociatedAddress(mint, owner types.Identity) types.Identity {
	return types.DeriveAddress(ProgramID, []byte("account"), mint[:], owner[:])
}

func assetStore(f *host.Frame) (*store.GenericAssetStore, error) {
	return store.NewGenericAssetStore(f.Store())
}

// CreateMint registers a new asset type at addr
func (p *Program) CreateMint(ctx context.Context, call types.Call, addr, authority types.Identity) error {
	return p.engine.Execute(ctx, call, "asset.create_mint", func(ctx context.Context, f *host.Frame) error {
		s, err := assetStore(f)
		if err != nil {
			return err
		}
		existing, err := s.GetMint(addr)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrAccountExists
		}
		logx.Info("ASSET", fmt.Sprintf("Created mint | mint=%s | authority=%s", addr, authority))
		return s.StoreMint(&types.AssetMint{Address: addr, Authority: authority})
	})
}

// CreateAccount opens an empty account of mint at addr owned by owner
func (p *Program) CreateAccount(ctx context.Context, call types.Call, addr, mint, owner types.Identity) error {
	return p.engine.Execute(ctx, call, "asset.create_account", func(ctx context.Context, f *host.Frame) error {
		s, err := assetStore(f)
		if err != nil {
			return err
		}
		m, err := s.GetMint(mint)
		if err != nil {
			return err
		}
		if m == nil {
			return ErrAccountNotFound
		}
		exists, err := s.ExistsAccount(addr)
		if err != nil {
			return err
		}
		if exists {
			return ErrAccountExists
		}
		logx.Debug("ASSET", fmt.Sprintf("Created account | account=%s | mint=%s | owner=%s", addr, mint, owner))
		return s.StoreAccount(&types.AssetAccount{Address: addr, Mint: mint, Owner: owner})
	})
}

// MintTo creates amount new units into account; the mint authority must sign
func (p *Program) MintTo(ctx context.Context, call types.Call, mint, account types.Identity, amount uint64) error {
	return p.engine.Execute(ctx, call, "asset.mint_to", func(ctx context.Context, f *host.Frame) error {
		s, err := assetStore(f)
		if err != nil {
			return err
		}
		m, err := s.GetMint(mint)
		if err != nil {
			return err
		}
		acc, err := s.GetAccount(account)
		if err != nil {
			return err
		}
		if m == nil || acc == nil {
			return ErrAccountNotFound
		}
		if acc.Mint != mint {
			return ErrMintMismatch
		}
		if !call.SignedBy(m.Authority) {
			return ErrMissingSignature
		}
		if m.Supply > ^uint64(0)-amount || acc.Amount > ^uint64(0)-amount {
			return errors.ErrOverflow
		}
		m.Supply += amount
		acc.Amount += amount
		if err := s.StoreMint(m); err != nil {
			return err
		}
		return s.StoreAccount(acc)
	})
}

// Transfer moves funds between two accounts of the same mint, then runs the transfer hooks
// inside the same call.
func (p *Program) Transfer(ctx context.Context, call types.Call, params TransferParams) error {
	return p.engine.Execute(ctx, call, "asset.transfer", func(ctx context.Context, f *host.Frame) error {
		s, err := assetStore(f)
		if err != nil {
			return err
		}
		from, err := s.GetAccount(params.From)
		if err != nil {
			return err
		}
		to, err := s.GetAccount(params.To)
		if err != nil {
			return err
		}
		if from == nil || to == nil {
			return ErrAccountNotFound
		}
		if from.Mint != to.Mint {
			return ErrMintMismatch
		}
		if from.Owner != params.Authority || !authorized(call, params) {
			return ErrMissingSignature
		}
		if from.Amount < params.Amount {
			return ErrInsufficientFunds
		}
		if params.From != params.To {
			if to.Amount > ^uint64(0)-params.Amount {
				return errors.ErrOverflow
			}
			from.Amount -= params.Amount
			to.Amount += params.Amount
			if err := s.StoreAccounts([]*types.AssetAccount{from, to}); err != nil {
				return err
			}
		}
		logx.Debug("ASSET", fmt.Sprintf("Transfer | from=%s | to=%s | amount=%d", params.From, params.To, params.Amount))

		for _, hook := range p.hooks {
			if err := hook(ctx, call, params); err != nil {
				return fmt.Errorf("transfer hook: %w", err)
			}
		}
		return nil
	})
}

func authorized(call types.Call, params TransferParams) bool {
	if call.SignedBy(params.Authority) {
		return true
	}
	return len(params.SignerSeeds) > 0 && types.DeriveAddress(call.Invoker, params.SignerSeeds...) == params.Authority
}

// Account reads an asset account, nil if it does not exist
func (p *Program) Account(ctx context.Context, addr types.Identity) (*types.AssetAccount, error) {
	var acc *types.AssetAccount
	err := p.engine.Query(ctx, func(view db.IterableProvider) error {
		s, err := store.NewGenericAssetStore(view)
		if err != nil {
			return err
		}
		acc, err = s.GetAccount(addr)
		return err
	})
	return acc, err
}

// Balance is the amount held by addr; missing accounts fail with ErrAccountNotFound
func (p *Program) Balance(ctx context.Context, addr types.Identity) (uint64, error) {
	acc, err := p.Account(ctx, addr)
	if err != nil {
		return 0, err
	}
	if acc == nil {
		return 0, ErrAccountNotFound
	}
	return acc.Amount, nil
}

// Mint reads a mint, nil if it does not exist
func (p *Program) Mint(ctx context.Context, addr types.Identity) (*types.AssetMint, error) {
	var m *types.AssetMint
	err := p.engine.Query(ctx, func(view db.IterableProvider) error {
		s, err := store.NewGenericAssetStore(view)
		if err != nil {
			return err
		}
		m, err = s.GetMint(addr)
		return err
	})
	return m, err
}
