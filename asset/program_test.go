package asset

import (
	"context"
	"testing"

	"github.com/mezonai/custody/db"
	"github.com/mezonai/custody/errors"
	"github.com/mezonai/custody/host"
	"github.com/mezonai/custody/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	program   *Program
	mint      types.Identity
	authority types.Identity
	alice     types.Identity
	bob       types.Identity
	aliceAcc  types.Identity
	bobAcc    types.Identity
}

func setup(t *testing.T) *fixture {
	t.Helper()
	p, err := db.NewMemLevelDBProvider()
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	f := &fixture{
		program:   NewProgram(host.NewEngine(p)),
		mint:      types.ProgramID("test-mint"),
		authority: types.ProgramID("mint-authority"),
		alice:     types.ProgramID("alice"),
		bob:       types.ProgramID("bob"),
	}
	f.aliceAcc = AssociatedAddress(f.mint, f.alice)
	f.bobAcc = AssociatedAddress(f.mint, f.bob)

	ctx := context.Background()
	require.NoError(t, f.program.CreateMint(ctx, types.NewCall(f.authority), f.mint, f.authority))
	require.NoError(t, f.program.CreateAccount(ctx, types.NewCall(f.alice), f.aliceAcc, f.mint, f.alice))
	require.NoError(t, f.program.CreateAccount(ctx, types.NewCall(f.bob), f.bobAcc, f.mint, f.bob))
	require.NoError(t, f.program.MintTo(ctx, types.NewCall(f.authority), f.mint, f.aliceAcc, 100))
	return f
}

func (f *fixture) balance(t *testing.T, acc types.Identity) uint64 {
	t.Helper()
	b, err := f.program.Balance(context.Background(), acc)
	require.NoError(t, err)
	return b
}

func TestMintTo(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	assert.Equal(t, uint64(100), f.balance(t, f.aliceAcc))
	m, err := f.program.Mint(ctx, f.mint)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), m.Supply)

	err = f.program.MintTo(ctx, types.NewCall(f.alice), f.mint, f.aliceAcc, 1)
	assert.ErrorIs(t, err, ErrMissingSignature)
}

func TestCreateTwiceFails(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	assert.ErrorIs(t, f.program.CreateMint(ctx, types.NewCall(f.authority), f.mint, f.authority), ErrAccountExists)
	assert.ErrorIs(t, f.program.CreateAccount(ctx, types.NewCall(f.alice), f.aliceAcc, f.mint, f.alice), ErrAccountExists)
	assert.ErrorIs(t, f.program.CreateAccount(ctx, types.NewCall(f.alice), f.alice, types.ProgramID("nope"), f.alice), ErrAccountNotFound)
}

func TestTransferBySigner(t *testing.T) {
	f := setup(t)

	err := f.program.Transfer(context.Background(), types.NewCall(f.alice), TransferParams{
		From: f.aliceAcc, To: f.bobAcc, Authority: f.alice, Amount: 40,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(60), f.balance(t, f.aliceAcc))
	assert.Equal(t, uint64(40), f.balance(t, f.bobAcc))
}

func TestTransferFailures(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	err := f.program.Transfer(ctx, types.NewCall(f.bob), TransferParams{
		From: f.aliceAcc, To: f.bobAcc, Authority: f.alice, Amount: 1,
	})
	assert.ErrorIs(t, err, ErrMissingSignature)

	err = f.program.Transfer(ctx, types.NewCall(f.alice), TransferParams{
		From: f.aliceAcc, To: f.bobAcc, Authority: f.alice, Amount: 101,
	})
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	other := types.ProgramID("other-mint")
	require.NoError(t, f.program.CreateMint(ctx, types.NewCall(f.authority), other, f.authority))
	otherAcc := AssociatedAddress(other, f.bob)
	require.NoError(t, f.program.CreateAccount(ctx, types.NewCall(f.bob), otherAcc, other, f.bob))
	err = f.program.Transfer(ctx, types.NewCall(f.alice), TransferParams{
		From: f.aliceAcc, To: otherAcc, Authority: f.alice, Amount: 1,
	})
	assert.ErrorIs(t, err, ErrMintMismatch)

	assert.Equal(t, uint64(100), f.balance(t, f.aliceAcc))
}

func TestTransferByDerivedAuthority(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	program := types.ProgramID("custodian")
	seeds := [][]byte{[]byte("state"), f.mint[:]}
	pda := types.DeriveAddress(program, seeds...)
	custody := types.DeriveAddress(program, []byte("custody"))
	require.NoError(t, f.program.CreateAccount(ctx, types.NewCall(program), custody, f.mint, pda))
	require.NoError(t, f.program.MintTo(ctx, types.NewCall(f.authority), f.mint, custody, 10))

	params := TransferParams{From: custody, To: f.bobAcc, Authority: pda, Amount: 10, SignerSeeds: seeds}

	// only the deriving program can sign with the seeds
	err := f.program.Transfer(ctx, types.NewCall(f.alice).ViaProgram(types.ProgramID("impostor")), params)
	assert.ErrorIs(t, err, ErrMissingSignature)

	require.NoError(t, f.program.Transfer(ctx, types.NewCall(f.alice).ViaProgram(program), params))
	assert.Equal(t, uint64(10), f.balance(t, f.bobAcc))
}

func TestTransferHookRunsInsideCall(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	var seen uint64
	f.program.OnTransfer(func(ctx context.Context, call types.Call, params TransferParams) error {
		b, err := f.program.Balance(ctx, params.To)
		require.NoError(t, err)
		seen = b
		if params.Amount == 13 {
			return errors.ErrForbiddenTarget
		}
		return nil
	})

	require.NoError(t, f.program.Transfer(ctx, types.NewCall(f.alice), TransferParams{
		From: f.aliceAcc, To: f.bobAcc, Authority: f.alice, Amount: 5,
	}))
	assert.Equal(t, uint64(5), seen, "hook observes the moved balance")

	err := f.program.Transfer(ctx, types.NewCall(f.alice), TransferParams{
		From: f.aliceAcc, To: f.bobAcc, Authority: f.alice, Amount: 13,
	})
	assert.ErrorIs(t, err, errors.ErrForbiddenTarget)
	assert.Equal(t, uint64(5), f.balance(t, f.bobAcc), "failing hook aborts the transfer")
}
