package id

import (
	"crypto/rand"
	"encoding/hex"
	"io"
)

// NewID32 returns a random 128-bit identifier as 32 lowercase hex characters.
// Every externally visible ledger row (pool, deposit, loan, repayment,
// application, allocation) carries one as its public id; numeric primary keys
// stay internal.
func NewID32() string {
	var b [16]byte
	if _, err := io.ReadFull(rand.Reader, b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}
