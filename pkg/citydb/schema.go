package citydb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	entsql "entgo.io/ent/dialect/sql"
)

type colKind int

const (
	colText colKind = iota
	colInt
	colFloat
	colTime
)

type columnSpec struct {
	Name string
	Kind colKind
	// Type is the fallback type name reported when the driver gives none.
	Type string
}

type tableSpec struct {
	Name    string
	Columns []columnSpec
	Key     string
	Indexes [][]string
}

func (t tableSpec) columnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

func (t tableSpec) csvFile() string { return t.Name + ".csv" }

var cityTables = []tableSpec{
	{
		Name: "residents",
		Key:  "id",
		Columns: []columnSpec{
			{"id", colInt, "integer"},
			{"name", colText, "text"},
			{"age", colInt, "integer"},
			{"district", colText, "text"},
			{"occupation", colText, "text"},
			{"income", colInt, "integer"},
			{"family_size", colInt, "integer"},
		},
		Indexes: [][]string{{"district"}, {"age"}},
	},
	{
		Name: "tenant",
		Key:  "id",
		Columns: []columnSpec{
			{"id", colInt, "integer"},
			{"name", colText, "text"},
			{"type", colText, "text"},
			{"district", colText, "text"},
			{"revenue", colInt, "integer"},
			{"employees", colInt, "integer"},
			{"established_year", colInt, "integer"},
		},
		Indexes: [][]string{{"district"}, {"type"}},
	},
	{
		Name: "traffic",
		Columns: []columnSpec{
			{"datetime", colTime, "timestamp"},
			{"location", colText, "text"},
			{"vehicle_count", colInt, "integer"},
			{"avg_speed", colFloat, "double"},
			{"traffic_level", colText, "text"},
			{"weather", colText, "text"},
		},
		Indexes: [][]string{{"datetime"}, {"location"}},
	},
}

// TableNames lists the city tables in provisioning order.
func TableNames() []string {
	out := make([]string, len(cityTables))
	for i, t := range cityTables {
		out[i] = t.Name
	}
	return out
}

func lookupTable(name string) (tableSpec, bool) {
	for _, t := range cityTables {
		if t.Name == name {
			return t, true
		}
	}
	return tableSpec{}, false
}

// tableDDL returns the statements that drop and recreate t with its indexes.
func (d *DB) tableDDL(t tableSpec) []string {
	cols := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		def := quoteIdent(c.Name) + " " + d.columnType(c.Kind)
		if c.Name == t.Key {
			def += " PRIMARY KEY"
		}
		cols = append(cols, def)
	}
	stmts := []string{
		"DROP TABLE IF EXISTS " + quoteIdent(t.Name),
		"CREATE TABLE " + quoteIdent(t.Name) + " (" + strings.Join(cols, ", ") + ")",
	}
	for _, idx := range t.Indexes {
		quoted := make([]string, len(idx))
		for i, c := range idx {
			quoted[i] = quoteIdent(c)
		}
		name := "idx_" + t.Name + "_" + strings.Join(idx, "_")
		stmts = append(stmts, "CREATE INDEX "+quoteIdent(name)+" ON "+quoteIdent(t.Name)+" ("+strings.Join(quoted, ", ")+")")
	}
	return stmts
}

func quoteIdent(s string) string { return `"` + strings.ReplaceAll(s, `"`, `""`) + `"` }

func (d *DB) columnType(k colKind) string {
	pg := d.dialect == "postgres"
	switch k {
	case colInt:
		if pg {
			return "BIGINT"
		}
		return "INTEGER"
	case colFloat:
		if pg {
			return "DOUBLE PRECISION"
		}
		return "REAL"
	case colTime:
		if pg {
			return "TIMESTAMP"
		}
		return "TEXT"
	default:
		return "TEXT"
	}
}

const metaTable = "citybridge_meta"

// ProvisionReport summarizes a Provision run.
type ProvisionReport struct {
	Hash    string           `json:"hash"`
	Skipped bool             `json:"skipped"`
	Rows    map[string]int64 `json:"rows"`
}

// Provision (re)creates the city tables from <table>.csv files in dir. It is
// idempotent: when the CSV contents are unchanged since the last run the
// database is left alone unless force is set. Each run drops and recreates
// the tables, indexes and rows inside one transaction.
func (d *DB) Provision(ctx context.Context, dir string, force bool) (*ProvisionReport, error) {
	hash, err := dataHash(dir)
	if err != nil {
		return nil, err
	}
	rep := &ProvisionReport{Hash: hash, Rows: map[string]int64{}}
	if !force && d.storedHash(ctx) == hash {
		rep.Skipped = true
		for _, t := range cityTables {
			var n int64
			q, args := entsql.Dialect(d.dialect).Select(entsql.Count("*")).From(entsql.Table(t.Name)).Query()
			if err := d.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
				rep.Skipped = false
				break
			}
			rep.Rows[t.Name] = n
		}
		if rep.Skipped {
			return rep, nil
		}
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %v", ErrUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, t := range cityTables {
		n, err := d.loadTable(ctx, tx, t, filepath.Join(dir, t.csvFile()))
		if err != nil {
			return nil, fmt.Errorf("provision %s: %w", t.Name, err)
		}
		rep.Rows[t.Name] = n
	}
	if err := d.storeHash(ctx, tx, hash); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return rep, nil
}

func (d *DB) loadTable(ctx context.Context, tx *sql.Tx, t tableSpec, path string) (int64, error) {
	b := entsql.Dialect(d.dialect)
	for _, stmt := range d.tableDDL(t) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return 0, err
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()
	r := csv.NewReader(f)
	r.ReuseRecord = true
	header, err := r.Read()
	if err != nil {
		return 0, fmt.Errorf("read header: %w", err)
	}
	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}

	const batch = 200
	var (
		total   int64
		pending int
		ins     = b.Insert(t.Name).Columns(t.columnNames()...)
	)
	flush := func() error {
		if pending == 0 {
			return nil
		}
		q, args := ins.Query()
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return err
		}
		total += int64(pending)
		pending = 0
		ins = b.Insert(t.Name).Columns(t.columnNames()...)
		return nil
	}
	line := 1
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return 0, fmt.Errorf("line %d: %w", line, err)
		}
		vals := make([]any, len(t.Columns))
		for i, c := range t.Columns {
			j, ok := pos[c.Name]
			if !ok || j >= len(rec) {
				continue
			}
			v, err := convert(c.Kind, rec[j])
			if err != nil {
				return 0, fmt.Errorf("line %d column %s: %w", line, c.Name, err)
			}
			vals[i] = v
		}
		ins.Values(vals...)
		pending++
		if pending == batch {
			if err := flush(); err != nil {
				return 0, err
			}
		}
	}
	if err := flush(); err != nil {
		return 0, err
	}
	return total, nil
}

func convert(k colKind, s string) (any, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	switch k {
	case colInt:
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, nil
		}
		// Exports sometimes write integers as "42.0".
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, err
		}
		if f != math.Trunc(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("%q is not an integer", s)
		}
		return int64(f), nil
	case colFloat:
		return strconv.ParseFloat(s, 64)
	default:
		return s, nil
	}
}

func (d *DB) storedHash(ctx context.Context) string {
	q, args := entsql.Dialect(d.dialect).
		Select("value").
		From(entsql.Table(metaTable)).
		Where(entsql.EQ("key", "data_hash")).
		Query()
	var h string
	if err := d.db.QueryRowContext(ctx, q, args...).Scan(&h); err != nil {
		return ""
	}
	return h
}

func (d *DB) storeHash(ctx context.Context, tx *sql.Tx, hash string) error {
	b := entsql.Dialect(d.dialect)
	ddl := "CREATE TABLE IF NOT EXISTS " + quoteIdent(metaTable) + " (" +
		quoteIdent("key") + " TEXT PRIMARY KEY, " + quoteIdent("value") + " TEXT)"
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create %s: %w", metaTable, err)
	}
	q, args := b.Delete(metaTable).Where(entsql.EQ("key", "data_hash")).Query()
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return err
	}
	q, args = b.Insert(metaTable).Columns("key", "value").Values("data_hash", hash).Query()
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return err
	}
	return nil
}

// dataHash fingerprints the CSV inputs so unchanged data is not reloaded.
func dataHash(dir string) (string, error) {
	h := sha256.New()
	for _, t := range cityTables {
		f, err := os.Open(filepath.Join(dir, t.csvFile()))
		if err != nil {
			return "", fmt.Errorf("open %s: %w", t.csvFile(), err)
		}
		_, err = io.Copy(h, f)
		_ = f.Close()
		if err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
