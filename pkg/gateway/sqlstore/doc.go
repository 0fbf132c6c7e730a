// Package sqlstore implements gateway.Gateway over database/sql.
//
// Queries are built with squirrel. Every table and column a query names must appear in
// the store's Schema, so identifiers never come from user input. Free-text matching is
// a case-insensitive LIKE with the term's wildcard characters escaped. SQLite
// connections opened through SQLiteDriver get a Unicode-aware lower() for this.
//
// Reads go to a Pool: a primary connection plus optional read replicas selected
// round-robin, falling back to the primary when no replica is healthy.
//
//	store, err := sqlstore.Open(ctx, sqlstore.PoolConfig{
//		Dialect:     sqlstore.DialectPostgres,
//		PrimaryURL:  "postgres://...",
//		ReplicaURLs: sqlstore.ParseReplicaURLs(os.Getenv("REPLICAS")),
//	}, logger)
//
// Tests use the sqlite3 dialect against an in-memory database.
package sqlstore
