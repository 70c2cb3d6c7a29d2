package migrations

import (
	"fmt"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// legacyOrderColumns maps column names written by the first on-disk format
// of the orders table to their current names.
var legacyOrderColumns = []struct {
	Old string
	New string
}{
	{"tokenAddress", "token_address"},
	{"type", "side"},
	{"usdAmount", "usd_amount"},
	{"solAmount", "sol_amount"},
	{"targetPrice", "target_price"},
	{"createdAt", "created_at"},
	{"executedAt", "executed_at"},
	{"txSignature", "tx_signature"},
}

// PrepareLegacyOrderColumns renames camelCase columns of an existing orders
// table so that AutoMigrate finds the data under the current names instead
// of adding empty columns next to it. Nothing is dropped.
func PrepareLegacyOrderColumns(db *gorm.DB) error {
	if db == nil {
		return nil
	}

	m := db.Migrator()
	if !m.HasTable("orders") {
		return nil
	}

	for _, col := range legacyOrderColumns {
		if !hasColumnExact(db, "orders", col.Old) || hasColumnExact(db, "orders", col.New) {
			continue
		}

		logger.WithFields(map[string]interface{}{
			"table": "orders",
			"from":  col.Old,
			"to":    col.New,
		}).Info("Renaming legacy column")

		if err := m.RenameColumn("orders", col.Old, col.New); err != nil {
			return fmt.Errorf("rename orders.%s to %s: %w", col.Old, col.New, err)
		}
	}

	return nil
}

// hasColumnExact checks the column list returned by the driver. Some
// dialects match names case-insensitively in HasColumn, which would confuse
// tokenAddress with tokenaddress.
func hasColumnExact(db *gorm.DB, table, column string) bool {
	types, err := db.Migrator().ColumnTypes(table)
	if err != nil {
		return false
	}
	for _, ct := range types {
		if ct.Name() == column {
			return true
		}
	}
	return false
}
