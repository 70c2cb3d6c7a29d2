package migrations

import (
	"fmt"

	"gorm.io/gorm"
)

// backfillAmountKind tags rows created before amount_kind existed with the
// amount column that is authoritative for them. Native wins over fiat.
func backfillAmountKind(db *gorm.DB) error {
	steps := []struct {
		kind  string
		where string
	}{
		{"token", "side = 'sell'"},
		{"native", "side = 'buy' AND sol_amount IS NOT NULL AND sol_amount > 0"},
		{"fiat", "side = 'buy' AND usd_amount IS NOT NULL AND usd_amount > 0 AND (sol_amount IS NULL OR sol_amount <= 0)"},
	}

	for _, s := range steps {
		err := db.Exec(
			fmt.Sprintf("UPDATE orders SET amount_kind = ? WHERE (amount_kind IS NULL OR amount_kind = '') AND %s", s.where),
			s.kind,
		).Error
		if err != nil {
			return fmt.Errorf("backfill amount_kind=%s: %w", s.kind, err)
		}
	}

	return nil
}

// backfillUpdatedAt copies created_at into updated_at for rows that predate
// the column.
func backfillUpdatedAt(db *gorm.DB) error {
	return db.Exec("UPDATE orders SET updated_at = created_at WHERE updated_at IS NULL").Error
}
