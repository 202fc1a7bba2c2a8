package service

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/acrespo/splitledger/internal/ledger"
	"github.com/acrespo/splitledger/internal/models"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type testEnv struct {
	svc     Service
	repo    *fakeRepository
	groupID string
	alice   string // group owner
	bob     string
	carol   string
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	repo := newFakeRepository()
	svc := NewDefaultService(repo, "test-secret-key")

	alice, err := svc.SignUp(ctx, models.SignUpRequest{
		Email: "alice@example.com", Password: "password123", Name: "Alice",
	})
	assert.NoError(t, err)
	bob, err := svc.SignUp(ctx, models.SignUpRequest{
		Email: "bob@example.com", Password: "password123", Name: "Bob",
	})
	assert.NoError(t, err)
	carol, err := svc.SignUp(ctx, models.SignUpRequest{
		Email: "carol@example.com", Password: "password123", Name: "Carol",
	})
	assert.NoError(t, err)

	group, err := svc.CreateGroup(ctx, alice.UserID, models.CreateGroupRequest{
		Name: "Flat 4B", Currency: "GBP",
	})
	assert.NoError(t, err)

	_, err = svc.AddGroupMember(ctx, alice.UserID, group.Group.ID, models.AddMemberRequest{
		Email: "bob@example.com",
	})
	assert.NoError(t, err)
	_, err = svc.AddGroupMember(ctx, alice.UserID, group.Group.ID, models.AddMemberRequest{
		Email: "carol@example.com",
	})
	assert.NoError(t, err)

	return &testEnv{
		svc:     svc,
		repo:    repo,
		groupID: group.Group.ID,
		alice:   alice.UserID,
		bob:     bob.UserID,
		carol:   carol.UserID,
	}
}

func (e *testEnv) createExpense(t *testing.T, payer, amount string) *models.Transaction {
	t.Helper()
	resp, err := e.svc.CreateTransaction(context.Background(), payer, models.CreateTransactionRequest{
		GroupID:     e.groupID,
		Amount:      dec(amount),
		Currency:    "GBP",
		Description: "Groceries",
	})
	assert.NoError(t, err)
	return resp.Transaction
}

func (e *testEnv) balanceFor(t *testing.T, userID string) ledger.MemberBalance {
	t.Helper()
	resp, err := e.svc.ComputeBalances(context.Background(), e.alice, e.groupID)
	assert.NoError(t, err)
	for _, b := range resp.Balances {
		if b.UserID == userID {
			return b
		}
	}
	t.Fatalf("no balance for %s", userID)
	return ledger.MemberBalance{}
}

func TestApplySplitMarksPayerPaid(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	tx := env.createExpense(t, env.alice, "120.00")

	resp, err := env.svc.ApplySplit(ctx, env.alice, tx.ID, models.SplitTransactionRequest{
		Splits: []models.SplitShareRequest{
			{UserID: env.alice, Amount: dec("60.00")},
			{UserID: env.bob, Amount: dec("60.00")},
		},
	})
	assert.NoError(t, err)
	assert.Len(t, resp.Transaction.Splits, 2)

	for _, split := range resp.Transaction.Splits {
		if split.UserID == env.alice {
			assert.True(t, split.IsPaid, "payer's own share starts paid")
			assert.NotNil(t, split.PaidAt)
		} else {
			assert.False(t, split.IsPaid)
			assert.Nil(t, split.PaidAt)
		}
	}

	// Only bob gets a notification
	bobNotifs, err := env.svc.ListNotifications(ctx, env.bob)
	assert.NoError(t, err)
	assert.Len(t, bobNotifs.Notifications, 1)
	assert.Equal(t, "group_activity", bobNotifs.Notifications[0].Type)
	assert.Contains(t, bobNotifs.Notifications[0].Message, "Alice")

	aliceNotifs, err := env.svc.ListNotifications(ctx, env.alice)
	assert.NoError(t, err)
	assert.Empty(t, aliceNotifs.Notifications)
}

func TestApplySplitUpdatesBalances(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	tx := env.createExpense(t, env.alice, "120.00")

	_, err := env.svc.ApplySplit(ctx, env.alice, tx.ID, models.SplitTransactionRequest{
		Splits: []models.SplitShareRequest{
			{UserID: env.alice, Amount: dec("60.00")},
			{UserID: env.bob, Amount: dec("60.00")},
		},
	})
	assert.NoError(t, err)

	alice := env.balanceFor(t, env.alice)
	bob := env.balanceFor(t, env.bob)
	assert.True(t, alice.NetBalance.Equal(dec("60.00")))
	assert.True(t, bob.NetBalance.Equal(dec("-60.00")))
	assert.Len(t, bob.Owes, 1)
	assert.Equal(t, env.alice, bob.Owes[0].UserID)
}

func TestApplySplitIsIdempotent(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	tx := env.createExpense(t, env.alice, "120.00")

	req := models.SplitTransactionRequest{
		Splits: []models.SplitShareRequest{
			{UserID: env.alice, Amount: dec("60.00")},
			{UserID: env.bob, Amount: dec("60.00")},
		},
	}

	first, err := env.svc.ApplySplit(ctx, env.alice, tx.ID, req)
	assert.NoError(t, err)
	second, err := env.svc.ApplySplit(ctx, env.alice, tx.ID, req)
	assert.NoError(t, err)

	// The replacement does not accumulate splits
	assert.Len(t, first.Transaction.Splits, 2)
	assert.Len(t, second.Transaction.Splits, 2)

	bob := env.balanceFor(t, env.bob)
	assert.True(t, bob.NetBalance.Equal(dec("-60.00")))
}

func TestApplySplitReplacementClearsBalances(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	tx := env.createExpense(t, env.alice, "120.00")

	_, err := env.svc.ApplySplit(ctx, env.alice, tx.ID, models.SplitTransactionRequest{
		Splits: []models.SplitShareRequest{
			{UserID: env.alice, Amount: dec("60.00")},
			{UserID: env.bob, Amount: dec("60.00")},
		},
	})
	assert.NoError(t, err)

	// Re-split entirely onto the payer: bob's debt disappears
	_, err = env.svc.ApplySplit(ctx, env.alice, tx.ID, models.SplitTransactionRequest{
		Splits: []models.SplitShareRequest{
			{UserID: env.alice, Amount: dec("120.00")},
		},
	})
	assert.NoError(t, err)

	alice := env.balanceFor(t, env.alice)
	bob := env.balanceFor(t, env.bob)
	assert.True(t, alice.NetBalance.IsZero())
	assert.True(t, bob.NetBalance.IsZero())
	assert.Empty(t, bob.Owes)
}

func TestApplySplitValidation(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	tx := env.createExpense(t, env.alice, "120.00")

	// Duplicate member
	_, err := env.svc.ApplySplit(ctx, env.alice, tx.ID, models.SplitTransactionRequest{
		Splits: []models.SplitShareRequest{
			{UserID: env.alice, Amount: dec("50")},
			{UserID: env.bob, Amount: dec("50")},
			{UserID: env.bob, Amount: dec("20")},
		},
	})
	assert.ErrorIs(t, err, ledger.ErrValidation)

	// Sum mismatch (90 != 120)
	_, err = env.svc.ApplySplit(ctx, env.alice, tx.ID, models.SplitTransactionRequest{
		Splits: []models.SplitShareRequest{
			{UserID: env.alice, Amount: dec("40")},
			{UserID: env.bob, Amount: dec("50")},
		},
	})
	assert.ErrorIs(t, err, ledger.ErrValidation)

	// Only the payer may split
	_, err = env.svc.ApplySplit(ctx, env.bob, tx.ID, models.SplitTransactionRequest{
		Splits: []models.SplitShareRequest{
			{UserID: env.bob, Amount: dec("120.00")},
		},
	})
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)

	// Unknown transaction
	_, err = env.svc.ApplySplit(ctx, env.alice, "missing", models.SplitTransactionRequest{
		Splits: []models.SplitShareRequest{
			{UserID: env.alice, Amount: dec("120.00")},
		},
	})
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestSettlementLifecycle(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	created, err := env.svc.CreateSettlement(ctx, env.bob, env.groupID, models.CreateSettlementRequest{
		FromUserID: env.bob,
		ToUserID:   env.alice,
		Amount:     dec("60.00"),
		Currency:   "GBP",
		Notes:      "rent share",
	})
	assert.NoError(t, err)
	assert.Equal(t, models.SettlementPending, created.Settlement.Status)
	assert.Nil(t, created.Settlement.PaidAt)

	paid, err := env.svc.MarkSettlementPaid(ctx, env.bob, created.Settlement.ID)
	assert.NoError(t, err)
	assert.Equal(t, models.SettlementPaid, paid.Settlement.Status)
	assert.NotNil(t, paid.Settlement.PaidAt)

	// paid is terminal
	_, err = env.svc.MarkSettlementPaid(ctx, env.bob, created.Settlement.ID)
	assert.ErrorIs(t, err, ledger.ErrInvalidStateTransition)
	_, err = env.svc.CancelSettlement(ctx, env.bob, created.Settlement.ID)
	assert.ErrorIs(t, err, ledger.ErrInvalidStateTransition)
}

func TestSettlementCancel(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	created, err := env.svc.CreateSettlement(ctx, env.bob, env.groupID, models.CreateSettlementRequest{
		FromUserID: env.bob,
		ToUserID:   env.alice,
		Amount:     dec("10.00"),
		Currency:   "GBP",
	})
	assert.NoError(t, err)

	cancelled, err := env.svc.CancelSettlement(ctx, env.alice, created.Settlement.ID)
	assert.NoError(t, err)
	assert.Equal(t, models.SettlementCancelled, cancelled.Settlement.Status)

	_, err = env.svc.MarkSettlementPaid(ctx, env.bob, created.Settlement.ID)
	assert.ErrorIs(t, err, ledger.ErrInvalidStateTransition)
}

func TestSettlementValidation(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	// Settling with yourself
	_, err := env.svc.CreateSettlement(ctx, env.bob, env.groupID, models.CreateSettlementRequest{
		FromUserID: env.bob, ToUserID: env.bob, Amount: dec("10"), Currency: "GBP",
	})
	assert.ErrorIs(t, err, ledger.ErrValidation)

	// Non-positive amount
	_, err = env.svc.CreateSettlement(ctx, env.bob, env.groupID, models.CreateSettlementRequest{
		FromUserID: env.bob, ToUserID: env.alice, Amount: dec("0"), Currency: "GBP",
	})
	assert.ErrorIs(t, err, ledger.ErrValidation)

	// Unknown group
	_, err = env.svc.CreateSettlement(ctx, env.bob, "missing", models.CreateSettlementRequest{
		FromUserID: env.bob, ToUserID: env.alice, Amount: dec("10"), Currency: "GBP",
	})
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestSettlementDoesNotTouchSplits(t *testing.T) {
	// Settlements and split paid-flags are tracked independently
	env := setupTestEnv(t)
	ctx := context.Background()
	tx := env.createExpense(t, env.alice, "120.00")

	_, err := env.svc.ApplySplit(ctx, env.alice, tx.ID, models.SplitTransactionRequest{
		Splits: []models.SplitShareRequest{
			{UserID: env.alice, Amount: dec("60.00")},
			{UserID: env.bob, Amount: dec("60.00")},
		},
	})
	assert.NoError(t, err)

	created, err := env.svc.CreateSettlement(ctx, env.bob, env.groupID, models.CreateSettlementRequest{
		FromUserID: env.bob, ToUserID: env.alice, Amount: dec("60.00"), Currency: "GBP",
	})
	assert.NoError(t, err)
	_, err = env.svc.MarkSettlementPaid(ctx, env.bob, created.Settlement.ID)
	assert.NoError(t, err)

	bob := env.balanceFor(t, env.bob)
	assert.True(t, bob.NetBalance.Equal(dec("-60.00")), "split stays unpaid until flipped explicitly")
}

func TestConcurrentSettlementTransitions(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	created, err := env.svc.CreateSettlement(ctx, env.bob, env.groupID, models.CreateSettlementRequest{
		FromUserID: env.bob, ToUserID: env.alice, Amount: dec("25.00"), Currency: "GBP",
	})
	assert.NoError(t, err)

	const attempts = 10
	var wg sync.WaitGroup
	errs := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.MarkSettlementPaid(ctx, env.bob, created.Settlement.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var succeeded, lost int
	for err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ledger.ErrInvalidStateTransition)
			lost++
		}
	}

	assert.Equal(t, 1, succeeded, "exactly one transition wins")
	assert.Equal(t, attempts-1, lost)
}

func TestListSettlements(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	first, err := env.svc.CreateSettlement(ctx, env.bob, env.groupID, models.CreateSettlementRequest{
		FromUserID: env.bob, ToUserID: env.alice, Amount: dec("10"), Currency: "GBP",
	})
	assert.NoError(t, err)
	_, err = env.svc.CreateSettlement(ctx, env.carol, env.groupID, models.CreateSettlementRequest{
		FromUserID: env.carol, ToUserID: env.alice, Amount: dec("20"), Currency: "GBP",
	})
	assert.NoError(t, err)

	_, err = env.svc.MarkSettlementPaid(ctx, env.bob, first.Settlement.ID)
	assert.NoError(t, err)

	all, err := env.svc.ListSettlements(ctx, env.alice, env.groupID, "")
	assert.NoError(t, err)
	assert.Len(t, all.Settlements, 2)

	pending, err := env.svc.ListSettlements(ctx, env.alice, env.groupID, models.SettlementPending)
	assert.NoError(t, err)
	assert.Len(t, pending.Settlements, 1)
	assert.Equal(t, env.carol, pending.Settlements[0].FromUserID)

	_, err = env.svc.ListSettlements(ctx, env.alice, env.groupID, "refunded")
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestMembershipEnforcement(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	outsider, err := env.svc.SignUp(ctx, models.SignUpRequest{
		Email: "mallory@example.com", Password: "password123", Name: "Mallory",
	})
	assert.NoError(t, err)

	_, err = env.svc.ComputeBalances(ctx, outsider.UserID, env.groupID)
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)

	_, err = env.svc.ComputeBalances(ctx, env.alice, "missing-group")
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	// Non-members cannot be split targets
	tx := env.createExpense(t, env.alice, "50.00")
	_, err = env.svc.ApplySplit(ctx, env.alice, tx.ID, models.SplitTransactionRequest{
		Splits: []models.SplitShareRequest{
			{UserID: outsider.UserID, Amount: dec("50.00")},
		},
	})
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestComputeBalancesEmptyGroupThroughService(t *testing.T) {
	env := setupTestEnv(t)

	resp, err := env.svc.ComputeBalances(context.Background(), env.alice, env.groupID)
	assert.NoError(t, err)
	assert.Equal(t, "GBP", resp.Currency)
	assert.Len(t, resp.Balances, 3)
	for _, b := range resp.Balances {
		assert.True(t, b.NetBalance.IsZero())
	}
}
