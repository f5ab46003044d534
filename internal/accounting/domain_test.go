package accounting

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/shared"
)

var postingTime = time.Date(2025, time.March, 3, 10, 0, 0, 0, time.UTC)

func amount(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func balancedDraft(t *testing.T) *JournalEntry {
	t.Helper()
	entry, err := NewDraft(DraftInput{Date: postingTime, Description: "Office supplies", SourceType: SourceManual})
	require.NoError(t, err)
	require.NoError(t, entry.AddLine(10, amount("150.2500"), decimal.Zero, "supplies", nil))
	require.NoError(t, entry.AddLine(20, decimal.Zero, amount("150.25"), "cash", nil))
	return entry
}

func TestNewDraftRequiresDescription(t *testing.T) {
	_, err := NewDraft(DraftInput{Date: postingTime, Description: "   "})
	require.ErrorIs(t, err, ErrDescriptionRequired)

	entry, err := NewDraft(DraftInput{Date: postingTime, Description: "Rent"})
	require.NoError(t, err)
	require.Equal(t, JournalStatusDraft, entry.Status)
	require.Len(t, entry.DraftCode, len(draftCodePrefix)+8)
}

func TestValidateCollectsEveryRule(t *testing.T) {
	entry, err := NewDraft(DraftInput{Date: postingTime, Description: "Broken"})
	require.NoError(t, err)
	require.NoError(t, entry.AddLine(10, amount("100"), amount("5"), "", nil))
	require.NoError(t, entry.AddLine(20, decimal.Zero, decimal.Zero, "", nil))
	require.NoError(t, entry.AddLine(30, amount("-1"), decimal.Zero, "", nil))

	err = entry.Validate()
	require.ErrorIs(t, err, ErrBothSides)
	require.ErrorIs(t, err, ErrZeroLine)
	require.ErrorIs(t, err, ErrNegativeAmount)
	require.ErrorIs(t, err, ErrUnbalanced)
	require.Equal(t, shared.KindValidation, shared.KindOf(err))
}

func TestValidateRequiresTwoLines(t *testing.T) {
	entry, err := NewDraft(DraftInput{Date: postingTime, Description: "Single"})
	require.NoError(t, err)
	require.NoError(t, entry.AddLine(10, amount("1"), decimal.Zero, "", nil))
	require.ErrorIs(t, entry.Validate(), ErrTooFewLines)
}

func TestBalanceIsExact(t *testing.T) {
	entry := balancedDraft(t)
	require.NoError(t, entry.Validate())

	entry.Lines[1].Credit = amount("150.2499")
	require.ErrorIs(t, entry.Validate(), ErrUnbalanced)
}

func TestPostTransitionsOnce(t *testing.T) {
	entry := balancedDraft(t)
	require.ErrorIs(t, entry.Post("", "clerk", postingTime), ErrNumberRequired)
	require.ErrorIs(t, entry.Post("JV-2025-0001", "", postingTime), ErrActorRequired)

	require.NoError(t, entry.Post("JV-2025-0001", "clerk", postingTime))
	require.Equal(t, JournalStatusPosted, entry.Status)
	require.Equal(t, "JV-2025-0001", entry.Number)

	err := entry.Post("JV-2025-0002", "clerk", postingTime)
	require.ErrorIs(t, err, ErrInvalidStatus)
	require.Equal(t, shared.KindInvariant, shared.KindOf(err))

	err = entry.AddLine(10, amount("1"), decimal.Zero, "", nil)
	require.ErrorIs(t, err, ErrInvalidStatus)
	require.ErrorIs(t, entry.Delete("clerk", postingTime), ErrInvalidStatus)
}

func TestCreateReversalSwapsSides(t *testing.T) {
	entry := balancedDraft(t)
	_, err := entry.CreateReversal(postingTime, "wrong account", 1, 3)
	require.ErrorIs(t, err, ErrInvalidStatus)

	require.NoError(t, entry.Post("JV-2025-0001", "clerk", postingTime))
	entry.ID = 7

	_, err = entry.CreateReversal(postingTime, " ", 1, 3)
	require.ErrorIs(t, err, ErrReasonRequired)

	later := postingTime.AddDate(0, 1, 0)
	rev, err := entry.CreateReversal(later, "wrong account", 1, 4)
	require.NoError(t, err)
	require.Equal(t, JournalStatusDraft, rev.Status)
	require.Equal(t, later, rev.Date)
	require.Equal(t, int64(4), rev.PeriodID)
	require.Equal(t, int64(7), *rev.ReversalOfID)
	require.Len(t, rev.Lines, 2)
	for i, line := range rev.Lines {
		require.True(t, line.Debit.Equal(entry.Lines[i].Credit))
		require.True(t, line.Credit.Equal(entry.Lines[i].Debit))
	}
	require.NoError(t, rev.Validate())

	require.NoError(t, entry.MarkReversed(8))
	require.Equal(t, JournalStatusReversed, entry.Status)
	require.ErrorIs(t, entry.MarkReversed(9), ErrAlreadyReversed)
	_, err = entry.CreateReversal(later, "again", 1, 4)
	require.ErrorIs(t, err, ErrAlreadyReversed)
}

func TestDeleteDraft(t *testing.T) {
	entry := balancedDraft(t)
	require.NoError(t, entry.Delete("clerk", postingTime))
	require.True(t, entry.IsDeleted)
	require.Equal(t, "clerk", entry.DeletedBy)
}

func TestAccountCanReceivePostings(t *testing.T) {
	acc := Account{IsActive: true, IsLeaf: true, AllowPosting: true}
	require.True(t, acc.CanReceivePostings())

	inactive := acc
	inactive.IsActive = false
	require.False(t, inactive.CanReceivePostings())

	deleted := acc
	deleted.IsDeleted = true
	require.False(t, deleted.CanReceivePostings())

	parent := acc
	parent.IsLeaf = false
	require.False(t, parent.CanReceivePostings())
}

func TestClosingLinesNetIncomeStatement(t *testing.T) {
	totals := []AccountTotal{
		{AccountID: 1, Code: "1121", Type: AccountTypeAsset, Debit: amount("1150")},
		{AccountID: 2, Code: "4111", Type: AccountTypeRevenue, Credit: amount("1000")},
		{AccountID: 3, Code: "5111", Type: AccountTypeCOGS, Debit: amount("600")},
		{AccountID: 4, Code: "6100", Type: AccountTypeExpense, Debit: amount("50"), Credit: amount("50")},
	}
	lines := ClosingLines(totals, 99)
	require.Len(t, lines, 3)

	require.Equal(t, int64(2), lines[0].AccountID)
	require.True(t, lines[0].Debit.Equal(amount("1000")))
	require.Equal(t, int64(3), lines[1].AccountID)
	require.True(t, lines[1].Credit.Equal(amount("600")))
	require.Equal(t, int64(99), lines[2].AccountID)
	require.True(t, lines[2].Credit.Equal(amount("400")))

	require.Nil(t, ClosingLines(totals[:1], 99))
}

func TestClosingLinesNetLoss(t *testing.T) {
	lines := ClosingLines([]AccountTotal{
		{AccountID: 2, Type: AccountTypeRevenue, Credit: amount("100")},
		{AccountID: 3, Type: AccountTypeExpense, Debit: amount("250")},
	}, 99)
	require.Len(t, lines, 3)
	require.True(t, lines[2].Debit.Equal(amount("150")))
}
