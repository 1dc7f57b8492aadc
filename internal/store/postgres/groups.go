package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/jw6ventures/contactd/internal/store"
)

func (t *pgTx) InsertGroup(ctx context.Context, g *store.Group) (int64, error) {
	name, typ := accountCols(g.Account)
	err := t.tx.QueryRow(ctx,
		`INSERT INTO groups (account_name, account_type, title, auto_add, favorites)
VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		name, typ, g.Title, g.AutoAdd, g.Favorites).Scan(&g.ID)
	return g.ID, mapErr(err)
}

func (t *pgTx) GetGroup(ctx context.Context, id int64) (*store.Group, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT id, account_name, account_type, title, auto_add, favorites FROM groups WHERE id=$1`, id)
	return scanGroup(row)
}

func (t *pgTx) UpdateGroup(ctx context.Context, g *store.Group) error {
	name, typ := accountCols(g.Account)
	tag, err := t.tx.Exec(ctx,
		`UPDATE groups SET account_name=$2, account_type=$3, title=$4, auto_add=$5, favorites=$6 WHERE id=$1`,
		g.ID, name, typ, g.Title, g.AutoAdd, g.Favorites)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *pgTx) DeleteGroup(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM groups WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *pgTx) ListGroups(ctx context.Context) ([]*store.Group, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT id, account_name, account_type, title, auto_add, favorites FROM groups ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*store.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func scanGroup(row pgx.Row) (*store.Group, error) {
	var (
		g         store.Group
		name, typ *string
	)
	err := row.Scan(&g.ID, &name, &typ, &g.Title, &g.AutoAdd, &g.Favorites)
	if err != nil {
		return nil, mapErr(err)
	}
	g.Account = accountFromCols(name, typ)
	return &g, nil
}
