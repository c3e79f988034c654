package persistence

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Minimal fake Querier to exercise the store's transaction, exec, and
// scan paths without a server.

type call struct {
	sql  string
	args []any
}

type fakeDB struct {
	beginErr  error
	commitErr error

	// Statements run inside a transaction, in order. failTxExecAt is a
	// 1-based index of the tx exec call -> error.
	txExecs      []call
	failTxExecAt map[int]error

	commitCount   int
	rollbackCount int

	// Statements run outside transactions.
	execs      []call
	failExecAt map[int]error
	execTagAt  map[int]pgconn.CommandTag

	// Scripted results, consumed in call order.
	queries      []call
	queryErr     error
	queryResults [][][]any
	rowCalls     []call
	rowResults   []fakeRow
}

func (f *fakeDB) Begin(ctx context.Context) (pgx.Tx, error) {
	if f.beginErr != nil {
		return nil, f.beginErr
	}
	return &fakeTx{db: f}, nil
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, call{sql: sql, args: args})
	idx := len(f.execs)
	if err, ok := f.failExecAt[idx]; ok {
		return pgconn.CommandTag{}, err
	}
	if tag, ok := f.execTagAt[idx]; ok {
		return tag, nil
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	f.queries = append(f.queries, call{sql: sql, args: args})
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	var rows [][]any
	if len(f.queryResults) > 0 {
		rows = f.queryResults[0]
		f.queryResults = f.queryResults[1:]
	}
	return &fakeRows{rows: rows}, nil
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	f.rowCalls = append(f.rowCalls, call{sql: sql, args: args})
	if len(f.rowResults) == 0 {
		return fakeRow{err: errors.New("no scripted row result")}
	}
	row := f.rowResults[0]
	f.rowResults = f.rowResults[1:]
	return row
}

type fakeTx struct {
	db     *fakeDB
	closed bool
}

func (t *fakeTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }

func (t *fakeTx) Commit(ctx context.Context) error {
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.closed = true
	t.db.commitCount++
	return t.db.commitErr
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.closed = true
	t.db.rollbackCount++
	return nil
}

func (t *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	t.db.txExecs = append(t.db.txExecs, call{sql: sql, args: args})
	idx := len(t.db.txExecs)
	if err, ok := t.db.failTxExecAt[idx]; ok {
		return pgconn.CommandTag{}, err
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (t *fakeTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not supported")
}

func (t *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return fakeRow{err: errors.New("not supported")}
}

func (t *fakeTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, errors.New("not supported")
}

func (t *fakeTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }

func (t *fakeTx) LargeObjects() pgx.LargeObjects { return pgx.LargeObjects{} }

func (t *fakeTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, errors.New("not supported")
}

func (t *fakeTx) Conn() *pgx.Conn { return nil }

type fakeRow struct {
	vals []any
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return assign(dest, r.vals)
}

type fakeRows struct {
	rows [][]any
	idx  int
	err  error
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return nil, errors.New("not supported") }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.idx < len(r.rows) {
		r.idx++
		return true
	}
	return false
}

func (r *fakeRows) Scan(dest ...any) error {
	return assign(dest, r.rows[r.idx-1])
}

// assign copies scripted values into scan destinations. A nil value sets
// the destination to its zero value, which for pointer destinations means
// SQL NULL.
func assign(dests []any, vals []any) error {
	if len(dests) != len(vals) {
		return fmt.Errorf("scan: %d destinations, %d values", len(dests), len(vals))
	}
	for i, d := range dests {
		dv := reflect.ValueOf(d)
		if dv.Kind() != reflect.Pointer || dv.IsNil() {
			return fmt.Errorf("scan destination %d is not a pointer", i)
		}
		elem := dv.Elem()
		if vals[i] == nil {
			elem.Set(reflect.Zero(elem.Type()))
			continue
		}
		sv := reflect.ValueOf(vals[i])
		if elem.Kind() == reflect.Pointer {
			p := reflect.New(elem.Type().Elem())
			p.Elem().Set(sv.Convert(elem.Type().Elem()))
			elem.Set(p)
			continue
		}
		elem.Set(sv.Convert(elem.Type()))
	}
	return nil
}
