package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/coopportal/coopsearch/pkg/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDB opens an in-memory sqlite database loaded with testdata
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open(SQLiteDriver, ":memory:")
	require.NoError(t, err)
	// every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	for _, file := range []string{"testdata/schema.sql", "testdata/seed.sql"} {
		data, err := os.ReadFile(file)
		require.NoError(t, err)
		_, err = db.Exec(string(data))
		require.NoError(t, err, file)
	}
	return db
}

func ids(recs []gateway.Record) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.String("id"))
	}
	return out
}

func TestStore_FindMatchAndTenant(t *testing.T) {
	store := New(setupTestDB(t), DialectSQLite)

	recs, err := store.Find(context.Background(), gateway.Query{
		Table:   "cooperatives",
		Columns: []string{"id", "name", "registration_number"},
		Match:   &gateway.Match{Term: "  NYERI dairy ", Fields: []string{"name", "registration_number"}},
		Filters: []gateway.Filter{gateway.Eq("tenant_id", "county-42")},
		Limit:   5,
	})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, gateway.Record{"id": "coop-1", "name": "Nyeri Dairy Farmers", "registration_number": "CS/2019/0042"}, recs[0])
}

func TestStore_MatchesAnyField(t *testing.T) {
	store := New(setupTestDB(t), DialectSQLite)

	recs, err := store.Find(context.Background(), gateway.Query{
		Table:   "cooperatives",
		Columns: []string{"id"},
		Match:   &gateway.Match{Term: "cs/2015", Fields: []string{"name", "registration_number"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"coop-3"}, ids(recs))
}

func TestStore_WildcardsAreLiteral(t *testing.T) {
	store := New(setupTestDB(t), DialectSQLite)
	ctx := context.Background()

	for _, term := range []string{"%", "_", "100%"} {
		n, err := store.Count(ctx, gateway.Query{
			Table: "cooperatives",
			Match: &gateway.Match{Term: term, Fields: []string{"name"}},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, n, "term %q", term)
	}
}

func TestStore_MatchFoldsNonASCII(t *testing.T) {
	db := setupTestDB(t)
	_, err := db.Exec(`INSERT INTO cooperatives (id, name, registration_number, tenant_id, status, cooperative_type)
		VALUES ('coop-5', 'Ölmühle Genossenschaft', 'CS/2022/0001', 'county-42', 'active', 'oilseed')`)
	require.NoError(t, err)
	store := New(db, DialectSQLite)

	for _, term := range []string{"Ölmühle", "ölmühle", "ÖLMÜHLE"} {
		recs, err := store.Find(context.Background(), gateway.Query{
			Table:   "cooperatives",
			Columns: []string{"id"},
			Match:   &gateway.Match{Term: term, Fields: []string{"name"}},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"coop-5"}, ids(recs), "term %q", term)
	}
}

func TestStore_MatchSkipsNullColumns(t *testing.T) {
	store := New(setupTestDB(t), DialectSQLite)

	n, err := store.Count(context.Background(), gateway.Query{
		Table: "cooperative_applications",
		Match: &gateway.Match{Term: "nyeri", Fields: []string{"proposed_name", "cooperative_id"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestUnicodeLower(t *testing.T) {
	assert.Equal(t, "ölmühle", unicodeLower("ÖLMÜHLE"))
	assert.Equal(t, []byte("abc"), unicodeLower([]byte("ABC")))
	assert.Nil(t, unicodeLower(nil))
	assert.Equal(t, int64(7), unicodeLower(int64(7)))
}

func TestStore_InFilters(t *testing.T) {
	store := New(setupTestDB(t), DialectSQLite)
	ctx := context.Background()

	recs, err := store.Find(ctx, gateway.Query{
		Table:   "cooperatives",
		Columns: []string{"id"},
		Filters: []gateway.Filter{gateway.In("id", []string{"coop-1", "coop-3"})},
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"coop-1", "coop-3"}, ids(recs))

	recs, err = store.Find(ctx, gateway.Query{
		Table:   "cooperatives",
		Filters: []gateway.Filter{gateway.In("id", []string{})},
	})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestStore_SubqueryScopesByTenant(t *testing.T) {
	store := New(setupTestDB(t), DialectSQLite)

	tenantCoops := gateway.Query{
		Table:   "cooperatives",
		Columns: []string{"id"},
		Filters: []gateway.Filter{gateway.Eq("tenant_id", "county-42")},
	}
	recs, err := store.Find(context.Background(), gateway.Query{
		Table:   "complaints",
		Columns: []string{"id", "subject"},
		Match:   &gateway.Match{Term: "nyeri", Fields: []string{"complaint_number", "subject"}},
		Filters: []gateway.Filter{gateway.InSubquery("cooperative_id", tenantCoops)},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"cmp-1"}, ids(recs))
}

func TestStore_LimitAndCount(t *testing.T) {
	store := New(setupTestDB(t), DialectSQLite)
	ctx := context.Background()
	q := gateway.Query{
		Table: "cooperatives",
		Match: &gateway.Match{Term: "r", Fields: []string{"name"}},
		Limit: 2,
	}

	recs, err := store.Find(ctx, q)
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	n, err := store.Count(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 4, n, "count ignores the limit")
}

func TestStore_NullsAndAllColumns(t *testing.T) {
	store := New(setupTestDB(t), DialectSQLite)

	recs, err := store.Find(context.Background(), gateway.Query{
		Table:   "cooperative_applications",
		Filters: []gateway.Filter{gateway.Eq("id", "app-1")},
	})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Nil(t, recs[0]["cooperative_id"])
	assert.Equal(t, "", recs[0].String("cooperative_id"))
	assert.Equal(t, "Nyeri Dairy Youth", recs[0].String("proposed_name"))
	assert.Contains(t, recs[0], "applicant_id")
}

func TestStore_RejectsUnknownIdentifiers(t *testing.T) {
	store := New(setupTestDB(t), DialectSQLite)
	ctx := context.Background()

	_, err := store.Find(ctx, gateway.Query{Table: "payments"})
	assert.ErrorIs(t, err, gateway.ErrUnknownTable)

	_, err = store.Find(ctx, gateway.Query{Table: "profiles", Columns: []string{"password_hash"}})
	assert.ErrorIs(t, err, gateway.ErrUnknownColumn)

	_, err = store.Find(ctx, gateway.Query{
		Table: "profiles",
		Match: &gateway.Match{Term: "x", Fields: []string{"name; DROP TABLE profiles"}},
	})
	assert.ErrorIs(t, err, gateway.ErrUnknownColumn)

	_, err = store.Find(ctx, gateway.Query{
		Table:   "complaints",
		Filters: []gateway.Filter{gateway.InSubquery("cooperative_id", gateway.Query{Table: "secrets", Columns: []string{"id"}})},
	})
	assert.ErrorIs(t, err, gateway.ErrUnknownTable)

	_, err = store.Count(ctx, gateway.Query{Table: "profiles", Limit: -1})
	assert.ErrorIs(t, err, gateway.ErrInvalidQuery)
}

func TestStore_WithSchema(t *testing.T) {
	store := New(setupTestDB(t), DialectSQLite, WithSchema(Schema{"trainers": {"id", "full_name"}}))

	_, err := store.Find(context.Background(), gateway.Query{Table: "auditors"})
	assert.ErrorIs(t, err, gateway.ErrUnknownTable)

	recs, err := store.Find(context.Background(), gateway.Query{Table: "trainers", Columns: []string{"id"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"trn-1"}, ids(recs))
}

func TestStore_PostgresPlaceholders(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := New(db, DialectPostgres)

	mock.ExpectQuery(`SELECT id, subject FROM complaints WHERE \(LOWER\(complaint_number\) LIKE \$1 ESCAPE '\\' OR LOWER\(subject\) LIKE \$2 ESCAPE '\\'\) AND cooperative_id IN \(SELECT id FROM cooperatives WHERE tenant_id = \$3\) LIMIT 5`).
		WithArgs("%nyeri%", "%nyeri%", "county-42").
		WillReturnRows(sqlmock.NewRows([]string{"id", "subject"}).AddRow("cmp-1", []byte("Nyeri Dairy late payments")))

	recs, err := store.Find(context.Background(), gateway.Query{
		Table:   "complaints",
		Columns: []string{"id", "subject"},
		Match:   &gateway.Match{Term: "Nyeri", Fields: []string{"complaint_number", "subject"}},
		Filters: []gateway.Filter{gateway.InSubquery("cooperative_id", gateway.Query{
			Table:   "cooperatives",
			Columns: []string{"id"},
			Filters: []gateway.Filter{gateway.Eq("tenant_id", "county-42")},
		})},
		Limit: 5,
	})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Nyeri Dairy late payments", recs[0]["subject"], "byte slices are converted to strings")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_QueryErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := New(db, DialectPostgres)
	ctx := context.Background()

	mock.ExpectQuery("SELECT id FROM trainers").WillReturnError(errors.New("connection reset by peer"))
	_, err = store.Find(ctx, gateway.Query{Table: "trainers", Columns: []string{"id"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to query trainers")

	mock.ExpectQuery("SELECT COUNT").WillReturnError(sql.ErrConnDone)
	_, err = store.Count(ctx, gateway.Query{Table: "trainers"})
	assert.ErrorIs(t, err, sql.ErrConnDone)

	mock.ExpectQuery("SELECT id FROM auditors").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("a1").RowError(0, errors.New("bad row")))
	_, err = store.Find(ctx, gateway.Query{Table: "auditors", Columns: []string{"id"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read auditors rows")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `100\%`, escapeLike("100%"))
	assert.Equal(t, `a\_b`, escapeLike("a_b"))
	assert.Equal(t, `c:\\dir`, escapeLike(`c:\dir`))
	assert.Equal(t, "plain", escapeLike("plain"))
}

func TestParseDialect(t *testing.T) {
	d, err := ParseDialect("sqlite")
	require.NoError(t, err)
	assert.Equal(t, DialectSQLite, d)

	d, err = ParseDialect("PostgreSQL")
	require.NoError(t, err)
	assert.Equal(t, DialectPostgres, d)

	_, err = ParseDialect("mysql")
	assert.Error(t, err)
}
