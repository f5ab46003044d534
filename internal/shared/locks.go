package shared

import "fmt"

// LedgerLockKey builds the redis key guarding background scans of one fiscal year's ledger.
func LedgerLockKey(fiscalYearID int64) string {
	return fmt.Sprintf("ledger:year:%d:lock", fiscalYearID)
}
