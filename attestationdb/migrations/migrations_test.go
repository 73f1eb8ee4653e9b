package migrations

import (
	"context"
	"path"
	"testing"

	"github.com/pwang200/xbridge-witness/db"
	"github.com/stretchr/testify/require"
)

func Test001(t *testing.T) {
	dbPath := path.Join(t.TempDir(), "attestationdbTest001.sqlite")

	err := RunMigrations(dbPath)
	require.NoError(t, err)
	db, err := db.NewSQLiteDB(dbPath)
	require.NoError(t, err)

	ctx := context.Background()
	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)

	_, err = tx.Exec(`
		INSERT INTO claim_locking_to_issuing (
			claim_id,
			tx_id,
			ledger_seq,
			success,
			delivered_amt,
			bridge,
			sending_account,
			reward_account,
			other_chain_account,
			public_key,
			signature
		) VALUES (7, '0xabc', 1000, 1, X'00', X'01', X'02', X'03', X'', X'04', X'05');

		INSERT INTO create_account_issuing (
			create_count,
			tx_id,
			ledger_seq,
			success,
			delivered_amt,
			reward_amt,
			bridge,
			sending_account,
			reward_account,
			destination,
			public_key,
			signature
		) VALUES (3, '0xdef', 1001, 1, X'00', X'01', X'02', X'03', X'04', X'05', X'06', X'07');
	`)
	require.NoError(t, err)
	err = tx.Commit()
	require.NoError(t, err)
}
