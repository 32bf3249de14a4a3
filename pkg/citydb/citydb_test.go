package citydb

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	residentsCSV = "id,name,age,district,occupation,income,family_size\n" +
		"1,Aoi Tanaka,34,Central Plaza,Engineer,5200000,3\n" +
		"2,Ren Sato,61,Tech Park,Retired,2100000,2\n" +
		"3,Yui Suzuki,27,West Park,Designer,3900000,1\n"
	tenantCSV = "id,name,type,district,revenue,employees,established_year\n" +
		"1,Sakura Cafe,restaurant,Central Plaza,42000000,12,2015\n" +
		"2,Byte Labs,it,Tech Park,310000000,85,2009\n"
	trafficCSV = "datetime,location,vehicle_count,avg_speed,traffic_level,weather\n" +
		"2024-05-01 08:00:00,Central Plaza,420,18.5,high,sunny\n" +
		"2024-05-01 09:00:00,Tech Park,130,35,low,cloudy\n"
)

func writeCSVs(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range map[string]string{"residents.csv": residentsCSV, "tenant.csv": tenantCSV, "traffic.csv": trafficCSV} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func openSQLite(t *testing.T) *DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := Open(context.Background(), "sqlite:file:"+name+"?mode=memory&cache=shared&_pragma=busy_timeout(5000)")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func provisioned(t *testing.T) *DB {
	t.Helper()
	db := openSQLite(t)
	_, err := db.Provision(context.Background(), writeCSVs(t), false)
	require.NoError(t, err)
	return db
}

func TestOpenRejectsUnknownDSN(t *testing.T) {
	_, err := Open(context.Background(), "")
	assert.Error(t, err)
	_, err = Open(context.Background(), "mysql://root@localhost/city")
	assert.Error(t, err)
	_, err = Open(context.Background(), "just words")
	assert.Error(t, err)
}

func TestProvisionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	dir := writeCSVs(t)

	rep, err := db.Provision(ctx, dir, false)
	require.NoError(t, err)
	assert.False(t, rep.Skipped)
	assert.Equal(t, map[string]int64{"residents": 3, "tenant": 2, "traffic": 2}, rep.Rows)

	rep, err = db.Provision(ctx, dir, false)
	require.NoError(t, err)
	assert.True(t, rep.Skipped)
	assert.Equal(t, int64(3), rep.Rows["residents"])

	rep, err = db.Provision(ctx, dir, true)
	require.NoError(t, err)
	assert.False(t, rep.Skipped)
	assert.Equal(t, int64(3), rep.Rows["residents"])
}

func TestProvisionReloadsChangedData(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	dir := writeCSVs(t)
	_, err := db.Provision(ctx, dir, false)
	require.NoError(t, err)

	more := residentsCSV + "4,Haru Ito,45,South Residential,Teacher,4100000,4\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "residents.csv"), []byte(more), 0o644))
	rep, err := db.Provision(ctx, dir, false)
	require.NoError(t, err)
	assert.False(t, rep.Skipped)
	assert.Equal(t, int64(4), rep.Rows["residents"])
}

func TestProvisionMissingFile(t *testing.T) {
	db := openSQLite(t)
	dir := writeCSVs(t)
	require.NoError(t, os.Remove(filepath.Join(dir, "traffic.csv")))
	_, err := db.Provision(context.Background(), dir, false)
	assert.Error(t, err)
}

func TestTableDDL(t *testing.T) {
	spec, ok := lookupTable("traffic")
	require.True(t, ok)

	lite := (&DB{dialect: "sqlite3"}).tableDDL(spec)
	require.GreaterOrEqual(t, len(lite), 3)
	assert.Equal(t, `DROP TABLE IF EXISTS "traffic"`, lite[0])
	assert.True(t, strings.HasPrefix(lite[1], `CREATE TABLE "traffic" (`), lite[1])
	assert.Contains(t, lite[1], `"vehicle_count" INTEGER`)
	for _, stmt := range lite[2:] {
		assert.True(t, strings.HasPrefix(stmt, `CREATE INDEX "idx_traffic_`), stmt)
		assert.Contains(t, stmt, `ON "traffic" (`)
	}

	residents, _ := lookupTable("residents")
	pg := (&DB{dialect: "postgres"}).tableDDL(residents)
	assert.Contains(t, pg[1], `"id" BIGINT PRIMARY KEY`)
	assert.Contains(t, pg[1], `"income" `)
}

func TestProvisionCreatesIndexes(t *testing.T) {
	db := provisioned(t)
	tbl, err := db.Query(context.Background(), "SELECT name FROM sqlite_master WHERE type = 'index' AND name LIKE 'idx_%' ORDER BY name")
	require.NoError(t, err)
	assert.NotZero(t, tbl.RowCount)

	tbl, err = db.Query(context.Background(), `SELECT "value" FROM citybridge_meta WHERE "key" = 'data_hash'`)
	require.NoError(t, err)
	assert.Equal(t, 1, tbl.RowCount)
}

func TestConvertIntegers(t *testing.T) {
	v, err := convert(colInt, "42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	v, err = convert(colInt, "42.0")
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	_, err = convert(colInt, "3.7")
	assert.Error(t, err)
	_, err = convert(colInt, "many")
	assert.Error(t, err)

	v, err = convert(colInt, " ")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestProvisionRejectsFractionalInteger(t *testing.T) {
	db := openSQLite(t)
	dir := writeCSVs(t)
	bad := strings.Replace(residentsCSV, "Aoi Tanaka,34,", "Aoi Tanaka,34.5,", 1)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "residents.csv"), []byte(bad), 0o644))
	_, err := db.Provision(context.Background(), dir, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "age")
}

func TestQuery(t *testing.T) {
	db := provisioned(t)
	tbl, err := db.Query(context.Background(), "SELECT district, COUNT(*) AS n FROM residents GROUP BY district ORDER BY district")
	require.NoError(t, err)
	assert.Equal(t, []string{"district", "n"}, tbl.Columns)
	assert.Equal(t, 3, tbl.RowCount)
	assert.Equal(t, "Central Plaza", tbl.Rows[0]["district"])
	assert.EqualValues(t, 1, tbl.Rows[0]["n"])
}

func TestQueryRejectsWrites(t *testing.T) {
	db := provisioned(t)
	for _, q := range []string{
		"DELETE FROM residents",
		"SELECT 1; DROP TABLE residents",
		"WITH x AS (DELETE FROM residents RETURNING *) SELECT * FROM x",
		"",
	} {
		_, err := db.Query(context.Background(), q)
		assert.ErrorIs(t, err, ErrNotReadOnly, q)
	}
	tbl, err := db.Query(context.Background(), "SELECT COUNT(*) AS n FROM residents")
	require.NoError(t, err)
	assert.EqualValues(t, 3, tbl.Rows[0]["n"])
}

func TestQueryEngineError(t *testing.T) {
	db := provisioned(t)
	_, err := db.Query(context.Background(), "SELECT * FROM no_such_table")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrUnavailable))
	assert.False(t, errors.Is(err, ErrNotReadOnly))
}

func TestSample(t *testing.T) {
	db := provisioned(t)
	tbl, err := db.Sample(context.Background(), "traffic", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, tbl.RowCount)
	assert.Equal(t, []string{"datetime", "location", "vehicle_count", "avg_speed", "traffic_level", "weather"}, tbl.Columns)

	tbl, err = db.Sample(context.Background(), "residents", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, tbl.RowCount)

	tbl, err = db.Sample(context.Background(), "residents", 5000)
	require.NoError(t, err)
	assert.Equal(t, 3, tbl.RowCount)

	_, err = db.Sample(context.Background(), "users", 10)
	assert.ErrorIs(t, err, ErrUnknownTable)
}

func TestDescribe(t *testing.T) {
	db := provisioned(t)
	infos, err := db.Describe(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, 3)
	assert.Equal(t, "residents", infos[0].Name)
	assert.Equal(t, int64(3), infos[0].RowCount)
	assert.Len(t, infos[0].Columns, 7)
	assert.Equal(t, "id", infos[0].Columns[0].Name)
	assert.Equal(t, TableNames(), []string{infos[0].Name, infos[1].Name, infos[2].Name})
}

func TestPing(t *testing.T) {
	db := openSQLite(t)
	assert.NoError(t, db.Ping(context.Background()))
	require.NoError(t, db.Close())
	assert.ErrorIs(t, db.Ping(context.Background()), ErrUnavailable)
}

func TestCheckReadOnly(t *testing.T) {
	ok := []string{
		"select * from residents",
		"  -- leading comment\nSELECT 1",
		"SELECT 'a;b' AS s;",
		"WITH d AS (SELECT district FROM residents) SELECT * FROM d",
		"EXPLAIN SELECT 1",
		"SELECT name FROM tenant WHERE name = 'DROP'",
	}
	for _, q := range ok {
		assert.NoError(t, CheckReadOnly(q), q)
	}
	bad := []string{
		"INSERT INTO residents VALUES (1)",
		"update residents set age = 1",
		"SELECT 1; SELECT 2",
		"/* x */ DROP TABLE residents",
		"PRAGMA writable_schema = 1",
		"   ",
	}
	for _, q := range bad {
		assert.ErrorIs(t, CheckReadOnly(q), ErrNotReadOnly, q)
	}
}
