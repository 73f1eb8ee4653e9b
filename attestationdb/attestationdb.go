package attestationdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pwang200/xbridge-witness/attestationdb/migrations"
	"github.com/pwang200/xbridge-witness/db"
	"github.com/pwang200/xbridge-witness/log"
	"github.com/pwang200/xbridge-witness/xchain"
	"github.com/russross/meddler"
)

var (
	// ErrAlreadyStored is returned on a primary key collision; the first
	// stored attestation wins.
	ErrAlreadyStored = errors.New("attestation already stored")
	// ErrNotFound re-exports the shared sentinel for callers of this package.
	ErrNotFound = db.ErrNotFound
)

// ClaimRow is one stored claim attestation. Amounts, the bridge and the key
// material are kept as canonical serialized blobs so rows survive
// schema-unaware upgrades of the chain's field definitions.
type ClaimRow struct {
	ClaimID           uint64           `meddler:"claim_id"`
	TxID              string           `meddler:"tx_id"`
	LedgerSeq         uint32           `meddler:"ledger_seq"`
	Success           bool             `meddler:"success"`
	DeliveredAmt      []byte           `meddler:"delivered_amt,optblob"`
	Bridge            []byte           `meddler:"bridge"`
	SendingAccount    xchain.AccountID `meddler:"sending_account,accountid"`
	RewardAccount     xchain.AccountID `meddler:"reward_account,accountid"`
	OtherChainAccount []byte           `meddler:"other_chain_account,optblob"`
	PublicKey         []byte           `meddler:"public_key"`
	Signature         []byte           `meddler:"signature,optblob"`
}

// CreateAccountRow is one stored account-create attestation.
type CreateAccountRow struct {
	CreateCount    uint64           `meddler:"create_count"`
	TxID           string           `meddler:"tx_id"`
	LedgerSeq      uint32           `meddler:"ledger_seq"`
	Success        bool             `meddler:"success"`
	DeliveredAmt   []byte           `meddler:"delivered_amt,optblob"`
	RewardAmt      []byte           `meddler:"reward_amt"`
	Bridge         []byte           `meddler:"bridge"`
	SendingAccount xchain.AccountID `meddler:"sending_account,accountid"`
	RewardAccount  xchain.AccountID `meddler:"reward_account,accountid"`
	Destination    []byte           `meddler:"destination"`
	PublicKey      []byte           `meddler:"public_key"`
	Signature      []byte           `meddler:"signature,optblob"`
}

// ClaimQuery is the tuple a counterparty quotes back when asking for its
// signature.
type ClaimQuery struct {
	ClaimID           uint64
	DeliveredAmt      []byte
	Bridge            []byte
	SendingAccount    xchain.AccountID
	OtherChainAccount []byte
}

// CreateAccountQuery is the account-create analogue of ClaimQuery.
type CreateAccountQuery struct {
	CreateCount    uint64
	DeliveredAmt   []byte
	RewardAmt      []byte
	Bridge         []byte
	SendingAccount xchain.AccountID
	Destination    []byte
}

// Store is the durable attestation table set: one table per
// (direction x kind), all in a single SQLite file.
type Store struct {
	logger *log.Logger
	db     *sql.DB
}

// NewStore runs migrations and opens the attestation database.
func NewStore(logger *log.Logger, dbPath string) (*Store, error) {
	if err := migrations.RunMigrations(dbPath); err != nil {
		return nil, err
	}
	database, err := db.NewSQLiteDB(dbPath)
	if err != nil {
		return nil, err
	}
	return &Store{
		logger: logger,
		db:     database,
	}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func claimTable(dir xchain.Direction) string {
	if dir == xchain.LockingToIssuing {
		return "claim_locking_to_issuing"
	}
	return "claim_issuing_to_locking"
}

func createAccountTable(dir xchain.Direction) string {
	if dir == xchain.LockingToIssuing {
		return "create_account_locking"
	}
	return "create_account_issuing"
}

// InsertClaim stores a claim attestation. Inserting a claim id that already
// has a row returns ErrAlreadyStored and leaves the first row in place.
func (s *Store) InsertClaim(ctx context.Context, dir xchain.Direction, row *ClaimRow) error {
	if err := meddler.Insert(s.db, claimTable(dir), row); err != nil {
		if sqliteErr, ok := db.SQLiteErr(err); ok && sqliteErr.ExtendedCode == db.UniqueConstrain {
			return ErrAlreadyStored
		}
		return fmt.Errorf("inserting claim %d into %s: %w", row.ClaimID, claimTable(dir), err)
	}
	s.logger.Debugf("stored claim attestation: dir %s claimID %d tx %s", dir, row.ClaimID, row.TxID)
	return nil
}

// InsertCreateAccount stores an account-create attestation, first writer
// wins on the create count.
func (s *Store) InsertCreateAccount(ctx context.Context, dir xchain.Direction, row *CreateAccountRow) error {
	if err := meddler.Insert(s.db, createAccountTable(dir), row); err != nil {
		if sqliteErr, ok := db.SQLiteErr(err); ok && sqliteErr.ExtendedCode == db.UniqueConstrain {
			return ErrAlreadyStored
		}
		return fmt.Errorf("inserting create count %d into %s: %w",
			row.CreateCount, createAccountTable(dir), err)
	}
	s.logger.Debugf("stored create account attestation: dir %s createCount %d tx %s",
		dir, row.CreateCount, row.TxID)
	return nil
}

// HasClaimTx reports whether a claim row for the given source transaction
// hash already exists, for replay checks before signing.
func (s *Store) HasClaimTx(ctx context.Context, dir xchain.Direction, txID string) (bool, error) {
	return hasTx(s.db, claimTable(dir), txID)
}

// HasCreateAccountTx is the account-create analogue of HasClaimTx.
func (s *Store) HasCreateAccountTx(ctx context.Context, dir xchain.Direction, txID string) (bool, error) {
	return hasTx(s.db, createAccountTable(dir), txID)
}

// hasTx counts rows for a source tx hash using the provided querier, so it
// also runs inside transactions.
func hasTx(q db.Querier, table, txID string) (bool, error) {
	var count int
	row := q.QueryRow("SELECT count(*) FROM "+table+" WHERE tx_id = $1;", txID)
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("counting tx %s in %s: %w", txID, table, err)
	}
	return count > 0, nil
}

// GetClaim looks up a successful claim attestation by the counterparty
// tuple.
func (s *Store) GetClaim(ctx context.Context, dir xchain.Direction, q ClaimQuery) (ClaimRow, error) {
	var row ClaimRow
	err := meddler.QueryRow(s.db, &row,
		"SELECT * FROM "+claimTable(dir)+`
		 WHERE claim_id = $1 AND
		       success = 1 AND
		       delivered_amt = $2 AND
		       bridge = $3 AND
		       sending_account = $4 AND
		       other_chain_account = $5;`,
		q.ClaimID, q.DeliveredAmt, q.Bridge, q.SendingAccount.Bytes(), emptyIfNil(q.OtherChainAccount))
	if err != nil {
		return ClaimRow{}, db.ReturnErrNotFound(err)
	}
	return row, nil
}

// GetCreateAccount looks up a successful account-create attestation by the
// counterparty tuple.
func (s *Store) GetCreateAccount(
	ctx context.Context, dir xchain.Direction, q CreateAccountQuery,
) (CreateAccountRow, error) {
	var row CreateAccountRow
	err := meddler.QueryRow(s.db, &row,
		"SELECT * FROM "+createAccountTable(dir)+`
		 WHERE create_count = $1 AND
		       success = 1 AND
		       delivered_amt = $2 AND
		       reward_amt = $3 AND
		       bridge = $4 AND
		       sending_account = $5 AND
		       destination = $6;`,
		q.CreateCount, q.DeliveredAmt, q.RewardAmt, q.Bridge, q.SendingAccount.Bytes(), q.Destination)
	if err != nil {
		return CreateAccountRow{}, db.ReturnErrNotFound(err)
	}
	return row, nil
}

// GetClaimByID fetches a claim row by its sequence identifier alone.
func (s *Store) GetClaimByID(ctx context.Context, dir xchain.Direction, claimID uint64) (ClaimRow, error) {
	var row ClaimRow
	err := meddler.QueryRow(s.db, &row,
		"SELECT * FROM "+claimTable(dir)+" WHERE claim_id = $1;", claimID)
	if err != nil {
		return ClaimRow{}, db.ReturnErrNotFound(err)
	}
	return row, nil
}

// DeleteClaim purges a completed claim attestation. Returns ErrNotFound if
// no row exists for the claim id.
func (s *Store) DeleteClaim(ctx context.Context, dir xchain.Direction, claimID uint64) error {
	tx, err := db.NewTx(ctx, s.db)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if errRllbck := tx.Rollback(); errRllbck != nil {
				s.logger.Errorf("error while rolling back tx: %v", errRllbck)
			}
		}
	}()

	res, err := tx.Exec("DELETE FROM "+claimTable(dir)+" WHERE claim_id = $1;", claimID)
	if err != nil {
		return fmt.Errorf("deleting claim %d from %s: %w", claimID, claimTable(dir), err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		err = ErrNotFound
		return err
	}
	return tx.Commit()
}

func emptyIfNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
