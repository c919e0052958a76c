package sql

import "context"

// UpsertOptions configures Builder.Upsert.
type UpsertOptions struct {
	// Rows to insert. Every row must carry the same columns.
	Rows []Row
	// UniqueBy names the columns of the unique key that conflicts are
	// detected on. MySQL ignores it and uses every unique key.
	UniqueBy []string
	// Update lists the columns that take the inserted value on conflict.
	// When empty, and UpdateExprs is empty too, the table columns are read
	// and every inserted column outside UniqueBy is updated.
	Update []string
	// UpdateExprs assigns raw SQL expressions on conflict.
	UpdateExprs map[string]string
	// Ignore leaves conflicting rows untouched.
	Ignore bool
}

// Upsert inserts rows, updating or skipping those that conflict with an
// existing unique key. It returns the number of affected rows as reported
// by the driver.
func (b *Builder) Upsert(ctx context.Context, opts UpsertOptions) (int64, error) {
	query, args, err := b.UpsertSQL(ctx, opts)
	if err != nil {
		return 0, err
	}
	return b.exec(ctx, "upsert", query, args)
}

// UpsertSQL compiles the statement run by Upsert. It may query the database
// to detect the server version or the table columns.
func (b *Builder) UpsertSQL(ctx context.Context, opts UpsertOptions) (string, []any, error) {
	if err := b.Err(); err != nil {
		return "", nil, err
	}
	columns, args, err := b.insertValues(opts.Rows)
	if err != nil {
		return "", nil, err
	}
	u := &UpsertStatement{
		Table:       b.table,
		Columns:     columns,
		Rows:        len(opts.Rows),
		UniqueBy:    opts.UniqueBy,
		Update:      opts.Update,
		UpdateExprs: opts.UpdateExprs,
		Ignore:      opts.Ignore,
	}
	if !u.Ignore && len(u.Update) == 0 && len(u.UpdateExprs) == 0 {
		if u.Update, err = b.updatable(ctx, columns, opts.UniqueBy); err != nil {
			return "", nil, err
		}
	}
	if err := b.detectVersion(ctx); err != nil {
		return "", nil, err
	}
	query, err := b.grammar.Upsert(u)
	if err != nil {
		return "", nil, err
	}
	return query, args, nil
}

// updatable returns the inserted columns that exist in the table and are
// not part of the conflict target, in table order.
func (b *Builder) updatable(ctx context.Context, inserted, unique []string) ([]string, error) {
	columns, err := b.Columns(ctx)
	if err != nil {
		return nil, err
	}
	var update []string
	for _, c := range columns {
		if contains(inserted, c) && !contains(unique, c) {
			update = append(update, c)
		}
	}
	if len(update) == 0 {
		return nil, NewConfigError("upsert", b.table, "no columns to update on conflict")
	}
	return update, nil
}

// detectVersion reads the SQLite server version once per grammar.
func (b *Builder) detectVersion(ctx context.Context) error {
	g, ok := b.grammar.(*SQLiteGrammar)
	if !ok || g.Version() != "" || b.ex == nil {
		return nil
	}
	vs, err := b.scanStrings(ctx, "introspect", g.VersionQuery(), nil)
	if err != nil {
		return err
	}
	if len(vs) > 0 {
		g.SetVersion(vs[0])
	}
	return nil
}
