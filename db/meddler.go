package db

import (
	"errors"
	"fmt"

	sqlite "github.com/mattn/go-sqlite3"
	"github.com/pwang200/xbridge-witness/xchain"
	"github.com/russross/meddler"
)

// init registers tags to be used to read/write from SQL DBs using meddler
func init() {
	meddler.Default = meddler.SQLite
	meddler.Register("accountid", AccountIDMeddler{})
	meddler.Register("optblob", OptBlobMeddler{})
}

func SQLiteErr(err error) (*sqlite.Error, bool) {
	sqliteErr := &sqlite.Error{}
	if ok := errors.As(err, sqliteErr); ok {
		return sqliteErr, true
	}
	if driverErr, ok := meddler.DriverErr(err); ok {
		return sqliteErr, errors.As(driverErr, sqliteErr)
	}
	return sqliteErr, false
}

// AccountIDMeddler encodes or decodes an account id to or from its raw
// 20-byte blob form
type AccountIDMeddler struct{}

// PreRead is called before a Scan operation for fields that have the AccountIDMeddler
func (a AccountIDMeddler) PreRead(fieldAddr interface{}) (scanTarget interface{}, err error) {
	return new([]byte), nil
}

// PostRead is called after a Scan operation for fields that have the AccountIDMeddler
func (a AccountIDMeddler) PostRead(fieldPtr, scanTarget interface{}) error {
	ptr, ok := scanTarget.(*[]byte)
	if !ok {
		return errors.New("scanTarget is not *[]byte")
	}
	field, ok := fieldPtr.(*xchain.AccountID)
	if !ok {
		return errors.New("fieldPtr is not xchain.AccountID")
	}
	acct, err := xchain.AccountIDFromBytes(*ptr)
	if err != nil {
		return fmt.Errorf("AccountIDMeddler.PostRead: %w", err)
	}
	*field = acct
	return nil
}

// PreWrite is called before an Insert or Update operation for fields that have the AccountIDMeddler
func (a AccountIDMeddler) PreWrite(fieldPtr interface{}) (saveValue interface{}, err error) {
	field, ok := fieldPtr.(xchain.AccountID)
	if !ok {
		return nil, errors.New("fieldPtr is not xchain.AccountID")
	}
	return field.Bytes(), nil
}

// OptBlobMeddler maps a nil byte slice to an empty blob and back, for
// optional blob columns
type OptBlobMeddler struct{}

// PreRead is called before a Scan operation for fields that have the OptBlobMeddler
func (o OptBlobMeddler) PreRead(fieldAddr interface{}) (scanTarget interface{}, err error) {
	return new([]byte), nil
}

// PostRead is called after a Scan operation for fields that have the OptBlobMeddler
func (o OptBlobMeddler) PostRead(fieldPtr, scanTarget interface{}) error {
	ptr, ok := scanTarget.(*[]byte)
	if !ok {
		return errors.New("scanTarget is not *[]byte")
	}
	field, ok := fieldPtr.(*[]byte)
	if !ok {
		return errors.New("fieldPtr is not *[]byte")
	}
	if len(*ptr) == 0 {
		*field = nil
		return nil
	}
	*field = append([]byte(nil), *ptr...)
	return nil
}

// PreWrite is called before an Insert or Update operation for fields that have the OptBlobMeddler
func (o OptBlobMeddler) PreWrite(fieldPtr interface{}) (saveValue interface{}, err error) {
	field, ok := fieldPtr.([]byte)
	if !ok {
		return nil, errors.New("fieldPtr is not []byte")
	}
	if field == nil {
		return []byte{}, nil
	}
	return field, nil
}
