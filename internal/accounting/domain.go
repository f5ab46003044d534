package accounting

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/shared"
)

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset        AccountType = "ASSET"
	AccountTypeLiability    AccountType = "LIABILITY"
	AccountTypeEquity       AccountType = "EQUITY"
	AccountTypeRevenue      AccountType = "REVENUE"
	AccountTypeCOGS         AccountType = "COGS"
	AccountTypeExpense      AccountType = "EXPENSE"
	AccountTypeOtherIncome  AccountType = "OTHER_INCOME"
	AccountTypeOtherExpense AccountType = "OTHER_EXPENSE"
)

// IsIncomeStatement reports whether balances of this type are closed to retained earnings at year end.
func (t AccountType) IsIncomeStatement() bool {
	switch t {
	case AccountTypeRevenue, AccountTypeCOGS, AccountTypeExpense, AccountTypeOtherIncome, AccountTypeOtherExpense:
		return true
	}
	return false
}

// JournalStatus enumerates journal lifecycle values.
type JournalStatus string

const (
	JournalStatusDraft    JournalStatus = "DRAFT"
	JournalStatusPosted   JournalStatus = "POSTED"
	JournalStatusReversed JournalStatus = "REVERSED"
)

// SourceType names the business document behind a journal entry.
type SourceType string

const (
	SourceManual          SourceType = "MANUAL"
	SourcePurchaseInvoice SourceType = "PURCHASE_INVOICE"
	SourceSalesInvoice    SourceType = "SALES_INVOICE"
	SourcePurchaseReturn  SourceType = "PURCHASE_RETURN"
	SourceSalesReturn     SourceType = "SALES_RETURN"
	SourceCashReceipt     SourceType = "CASH_RECEIPT"
	SourceCashPayment     SourceType = "CASH_PAYMENT"
	SourceCashTransfer    SourceType = "CASH_TRANSFER"
	SourceClosing         SourceType = "CLOSING"
	SourceAdjustment      SourceType = "INVENTORY_ADJUSTMENT"
)

// StandaloneReversible reports whether entries of this source may be reversed
// directly instead of through the document that produced them. Manual and
// closing entries carry no stock or settlement effects.
func (s SourceType) StandaloneReversible() bool {
	return s == SourceManual || s == SourceClosing
}

const draftCodePrefix = "DRF-"

// Account models a chart of accounts node.
type Account struct {
	shared.Identity
	shared.CompanyScope
	shared.SoftDelete
	Code         string
	Name         string
	Type         AccountType
	ParentID     *int64
	Level        int
	IsLeaf       bool
	AllowPosting bool
	IsActive     bool
	IsSystem     bool
	HasPostings  bool
}

// CanReceivePostings reports whether journal lines may reference the account.
func (a Account) CanReceivePostings() bool {
	return a.IsActive && a.IsLeaf && a.AllowPosting && !a.IsDeleted
}

// JournalEntry is a general ledger voucher.
type JournalEntry struct {
	shared.Identity
	shared.AuditInfo
	shared.SoftDelete
	shared.CompanyScope
	shared.Versioned
	Number         string
	DraftCode      string
	Date           time.Time
	PostedAt       *time.Time
	Description    string
	Reference      string
	Status         JournalStatus
	SourceType     SourceType
	SourceID       *int64
	FiscalYearID   int64
	PeriodID       int64
	ReversalOfID   *int64
	ReversedByID   *int64
	ReversalReason string
	PostedBy       string
	Lines          []JournalLine
}

// JournalLine stores debit or credit amount for an account.
type JournalLine struct {
	ID             int64
	JournalID      int64
	LineNumber     int
	AccountID      int64
	Debit          decimal.Decimal
	Credit         decimal.Decimal
	Description    string
	DimWarehouseID *int64
}

// DraftInput groups the header of a new journal draft.
type DraftInput struct {
	Date         time.Time
	Description  string
	Reference    string
	SourceType   SourceType
	SourceID     *int64
	FiscalYearID int64
	PeriodID     int64
}

var (
	// ErrUnbalanced indicates debit != credit.
	ErrUnbalanced = shared.NewError(shared.KindValidation, "accounting: journal lines must balance")
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = shared.NewError(shared.KindValidation, "accounting: journal requires at least two lines")
	// ErrDescriptionRequired indicates a missing memo.
	ErrDescriptionRequired = shared.NewError(shared.KindValidation, "accounting: description is required")
	// ErrNegativeAmount indicates a negative debit or credit.
	ErrNegativeAmount = shared.NewError(shared.KindValidation, "accounting: negative amounts are not allowed")
	// ErrBothSides indicates a line carrying debit and credit.
	ErrBothSides = shared.NewError(shared.KindValidation, "accounting: line cannot be both debit and credit")
	// ErrZeroLine indicates a line with neither debit nor credit.
	ErrZeroLine = shared.NewError(shared.KindValidation, "accounting: line must carry a debit or a credit")
	// ErrMissingAccount indicates a line without account.
	ErrMissingAccount = shared.NewError(shared.KindValidation, "accounting: line missing account")
	// ErrAccountNotFound indicates an unknown account.
	ErrAccountNotFound = shared.NewError(shared.KindNotFound, "accounting: account not found")
	// ErrAccountNotLeaf indicates a posting to a parent account.
	ErrAccountNotLeaf = shared.NewError(shared.KindValidation, "accounting: account is not a leaf")
	// ErrAccountNotPostable indicates an inactive or non-posting account.
	ErrAccountNotPostable = shared.NewError(shared.KindValidation, "accounting: account does not accept postings")
	// ErrJournalNotFound indicates missing entry.
	ErrJournalNotFound = shared.NewError(shared.KindNotFound, "accounting: journal entry not found")
	// ErrInvalidStatus indicates action can't proceed.
	ErrInvalidStatus = shared.NewError(shared.KindInvariant, "accounting: invalid status transition")
	// ErrAlreadyReversed indicates a second reversal attempt.
	ErrAlreadyReversed = shared.NewError(shared.KindInvariant, "accounting: journal entry already reversed")
	// ErrReasonRequired indicates a reversal without reason.
	ErrReasonRequired = shared.NewError(shared.KindValidation, "accounting: reversal reason is required")
	// ErrNumberRequired indicates posting without journal number.
	ErrNumberRequired = shared.NewError(shared.KindValidation, "accounting: journal number is required")
	// ErrActorRequired indicates posting without user.
	ErrActorRequired = shared.NewError(shared.KindValidation, "accounting: posting user is required")
	// ErrDuplicateNumber indicates a journal number collision.
	ErrDuplicateNumber = shared.NewError(shared.KindConcurrency, "accounting: journal number already used")
	// ErrClosingExists indicates the year already has a posted closing entry.
	ErrClosingExists = shared.NewError(shared.KindInvariant, "accounting: closing entry already posted for this year")
)

// NewDraft starts a journal entry in Draft status.
func NewDraft(in DraftInput) (*JournalEntry, error) {
	desc := strings.TrimSpace(in.Description)
	if desc == "" {
		return nil, ErrDescriptionRequired
	}
	return &JournalEntry{
		CompanyScope: shared.CompanyScope{CompanyID: shared.DefaultCompanyID},
		DraftCode:    draftCodePrefix + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8]),
		Date:         in.Date,
		Description:  desc,
		Reference:    strings.TrimSpace(in.Reference),
		Status:       JournalStatusDraft,
		SourceType:   in.SourceType,
		SourceID:     in.SourceID,
		FiscalYearID: in.FiscalYearID,
		PeriodID:     in.PeriodID,
	}, nil
}

func (e *JournalEntry) ensureDraft() error {
	if e.Status != JournalStatusDraft {
		return fmt.Errorf("%w: journal entry is %s", ErrInvalidStatus, e.Status)
	}
	return nil
}

// AddLine appends a line to a draft.
func (e *JournalEntry) AddLine(accountID int64, debit, credit decimal.Decimal, description string, warehouseID *int64) error {
	if err := e.ensureDraft(); err != nil {
		return err
	}
	e.Lines = append(e.Lines, JournalLine{
		LineNumber:     len(e.Lines) + 1,
		AccountID:      accountID,
		Debit:          debit,
		Credit:         credit,
		Description:    strings.TrimSpace(description),
		DimWarehouseID: warehouseID,
	})
	return nil
}

// Totals sums the debit and credit columns.
func (e *JournalEntry) Totals() (debit, credit decimal.Decimal) {
	for _, line := range e.Lines {
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	return debit, credit
}

// Validate returns every rule the entry breaks, joined.
func (e *JournalEntry) Validate() error {
	var errs []error
	if strings.TrimSpace(e.Description) == "" {
		errs = append(errs, ErrDescriptionRequired)
	}
	if len(e.Lines) < 2 {
		errs = append(errs, ErrTooFewLines)
	}
	for _, line := range e.Lines {
		switch {
		case line.AccountID == 0:
			errs = append(errs, fmt.Errorf("line %d: %w", line.LineNumber, ErrMissingAccount))
		case line.Debit.IsNegative() || line.Credit.IsNegative():
			errs = append(errs, fmt.Errorf("line %d: %w", line.LineNumber, ErrNegativeAmount))
		case line.Debit.IsPositive() && line.Credit.IsPositive():
			errs = append(errs, fmt.Errorf("line %d: %w", line.LineNumber, ErrBothSides))
		case line.Debit.IsZero() && line.Credit.IsZero():
			errs = append(errs, fmt.Errorf("line %d: %w", line.LineNumber, ErrZeroLine))
		}
	}
	debit, credit := e.Totals()
	if !debit.Equal(credit) {
		errs = append(errs, fmt.Errorf("%w: debit %s, credit %s", ErrUnbalanced,
			shared.FormatAmount(debit), shared.FormatAmount(credit)))
	}
	return errors.Join(errs...)
}

// Post moves a valid draft to Posted under number.
func (e *JournalEntry) Post(number, by string, at time.Time) error {
	if err := e.ensureDraft(); err != nil {
		return err
	}
	if strings.TrimSpace(number) == "" {
		return ErrNumberRequired
	}
	if strings.TrimSpace(by) == "" {
		return ErrActorRequired
	}
	if err := e.Validate(); err != nil {
		return err
	}
	e.Status = JournalStatusPosted
	e.Number = strings.TrimSpace(number)
	e.PostedAt = &at
	e.PostedBy = strings.TrimSpace(by)
	return nil
}

// CreateReversal builds the draft that mirrors a posted entry with debit and
// credit swapped. The original is left untouched until MarkReversed.
func (e *JournalEntry) CreateReversal(date time.Time, reason string, fiscalYearID, periodID int64) (*JournalEntry, error) {
	if e.Status == JournalStatusReversed || e.ReversedByID != nil {
		return nil, ErrAlreadyReversed
	}
	if e.Status != JournalStatusPosted {
		return nil, fmt.Errorf("%w: only posted entries can be reversed", ErrInvalidStatus)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrReasonRequired
	}
	rev, err := NewDraft(DraftInput{
		Date:         date,
		Description:  "Reversal: " + e.Description,
		Reference:    e.Reference,
		SourceType:   e.SourceType,
		SourceID:     e.SourceID,
		FiscalYearID: fiscalYearID,
		PeriodID:     periodID,
	})
	if err != nil {
		return nil, err
	}
	originalID := e.ID
	rev.ReversalOfID = &originalID
	rev.ReversalReason = reason
	for _, line := range e.Lines {
		desc := "Reversal"
		if line.Description != "" {
			desc += ": " + line.Description
		}
		if err := rev.AddLine(line.AccountID, line.Credit, line.Debit, desc, line.DimWarehouseID); err != nil {
			return nil, err
		}
	}
	return rev, nil
}

// MarkReversed flags a posted entry as reversed by reversalID.
func (e *JournalEntry) MarkReversed(reversalID int64) error {
	if e.Status == JournalStatusReversed {
		return ErrAlreadyReversed
	}
	if e.Status != JournalStatusPosted {
		return fmt.Errorf("%w: only posted entries can be reversed", ErrInvalidStatus)
	}
	e.ReversedByID = &reversalID
	e.Status = JournalStatusReversed
	return nil
}

// Delete soft-deletes a draft. Posted entries can only be reversed.
func (e *JournalEntry) Delete(by string, at time.Time) error {
	if err := e.ensureDraft(); err != nil {
		return err
	}
	e.MarkDeleted(by, at)
	return nil
}

// AccountIDs returns the distinct accounts referenced by the entry in line order.
func (e *JournalEntry) AccountIDs() []int64 {
	seen := make(map[int64]struct{}, len(e.Lines))
	ids := make([]int64, 0, len(e.Lines))
	for _, line := range e.Lines {
		if _, ok := seen[line.AccountID]; ok {
			continue
		}
		seen[line.AccountID] = struct{}{}
		ids = append(ids, line.AccountID)
	}
	return ids
}
