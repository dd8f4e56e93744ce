package custody

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"couponledger/core/epoch"
	"couponledger/core/fixedpoint"
	"couponledger/core/pricing"
	"couponledger/core/rewards"
	"couponledger/core/solvency"
	"couponledger/services/rewardsd/storage"
)

func newTestVault(t *testing.T, collateral, initial uint64) (*Vault, *storage.Storage, *clockwork.FakeClock) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	store, err := storage.Open("sqlite", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	clock := clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0))
	return NewVault(store, uint256.NewInt(collateral), uint256.NewInt(initial), clock, nil), store, clock
}

func TestVaultRecordsInstructions(t *testing.T) {
	vault, store, _ := newTestVault(t, 0, 0)
	ctx := context.Background()
	distributor := common.HexToAddress("0xd1")
	treasury := common.HexToAddress("0xe1")
	holder := common.HexToAddress("0xa1")

	require.NoError(t, vault.PullCoupon(ctx, 3, distributor, uint256.NewInt(1000)))
	require.NoError(t, vault.WithdrawSkim(ctx, 3, treasury, uint256.NewInt(10)))
	require.NoError(t, vault.Mint(ctx, 3, holder, uint256.NewInt(990), rewards.MintReasonClaim))

	transfers, err := store.Transfers(ctx, 3)
	require.NoError(t, err)
	require.Len(t, transfers, 2)
	require.Equal(t, storage.TransferPull, transfers[0].Kind)
	require.Equal(t, strings.ToLower(distributor.Hex()), transfers[0].Counterparty)

	mints, err := store.Mints(ctx, 3)
	require.NoError(t, err)
	require.Len(t, mints, 1)
	require.Equal(t, "claim", mints[0].Reason)
	require.Equal(t, "990", mints[0].Amount)
}

func TestVaultSnapshotTracksMints(t *testing.T) {
	vault, _, clock := newTestVault(t, 2_000, 1_000)
	ctx := context.Background()

	snap, err := vault.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(20_000), snap.CollateralRatioBps)
	require.Equal(t, uint64(1_000), snap.Outstanding.Uint64())
	require.True(t, snap.ObservedAt.Equal(clock.Now()))

	require.NoError(t, vault.Mint(ctx, 1, common.HexToAddress("0xa1"), uint256.NewInt(1_000), rewards.MintReasonClaim))
	snap, err = vault.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(10_000), snap.CollateralRatioBps)
	require.Equal(t, uint64(2_000), snap.Outstanding.Uint64())

	// 110% minimum leaves room for 2000*10000/11000 = 1818 outstanding.
	policy := solvency.Policy{MinCollateralRatioBps: 11_000, MaxAge: time.Minute}
	require.ErrorIs(t, policy.Check(snap, uint256.NewInt(1), clock.Now()), solvency.ErrHeadroom)

	vault.SetCollateral(uint256.NewInt(4_000))
	snap, err = vault.Snapshot(ctx)
	require.NoError(t, err)
	require.NoError(t, policy.Check(snap, uint256.NewInt(1_000), clock.Now()))
}

func TestVaultSnapshotWithoutSupply(t *testing.T) {
	vault, _, _ := newTestVault(t, 5_000, 0)
	_, err := vault.Snapshot(context.Background())
	require.True(t, errors.Is(err, ErrNoSupply))
}

func TestVaultCollateralGoesStale(t *testing.T) {
	vault, _, clock := newTestVault(t, 2_000_000, 1_000_000)
	ctx := context.Background()
	start := uint64(clock.Now().Unix())
	const day = uint64(24 * 60 * 60)

	price, err := fixedpoint.ScaledFromInt(1)
	require.NoError(t, err)
	params := rewards.DefaultParams()
	params.SelfAddress = common.HexToAddress("0x1f")
	params.BreakageSink = common.HexToAddress("0x5111")
	params.Treasury = common.HexToAddress("0x7e45")
	params.Solvency = solvency.Policy{MinCollateralRatioBps: 10_000, MaxAge: time.Hour}
	ledger, err := rewards.New(params,
		rewards.WithClock(clock),
		rewards.WithPolicyFeed(&pricing.StaticFeed{Q: pricing.Quote{ConversionPrice: price, Status: pricing.PriceStatusOK}}),
		rewards.WithCustody(vault),
		rewards.WithMinter(vault),
		rewards.WithSolvency(vault),
	)
	require.NoError(t, err)

	holder := common.HexToAddress("0xa1")
	_, err = ledger.ConfigureEpoch(ctx, epoch.Window{
		StartTime:       start,
		CheckpointStart: start + 12*day,
		CheckpointEnd:   start + 16*day,
		EndTime:         start + 30*day,
	})
	require.NoError(t, err)
	require.NoError(t, ledger.OnBalanceChange(ctx, common.Address{}, holder, uint256.NewInt(1_000)))
	clock.Advance(30 * 24 * time.Hour)
	_, err = ledger.Distribute(ctx, common.HexToAddress("0xd1"), uint256.NewInt(30_000))
	require.NoError(t, err)

	snap, err := vault.Snapshot(ctx)
	require.NoError(t, err)
	require.True(t, snap.ObservedAt.Equal(time.Unix(int64(start), 0)), "observed when collateral was loaded")
	_, err = ledger.Claim(ctx, holder, holder)
	require.ErrorIs(t, err, rewards.ErrSolvencyStale)

	vault.SetCollateral(uint256.NewInt(2_000_000))
	claimed, err := ledger.Claim(ctx, holder, holder)
	require.NoError(t, err)
	require.Equal(t, "29999", claimed.Dec())
}
