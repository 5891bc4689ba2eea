package repository

import "context"

// Tx is an opaque transaction handle. Repositories accept it alongside ctx
// and must gracefully accept NoTX (non-transactional path). The concrete
// type is infra-defined (pgx.Tx for Postgres, nil for in-memory repos).
type Tx interface{}

// NoTX marks a non-transactional call.
var NoTX Tx

// TransactionManager executes a function within one storage transaction,
// passing the handle to the callback. Use-case code stays free of driver
// types; in-memory test implementations simply invoke fn with NoTX.
type TransactionManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
