package orders

import (
	"context"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	CreateForUser(ctx context.Context, userID string, o Order) (Order, error)
	ListForUser(ctx context.Context, userID string, f Filter) ([]Order, error)
	DeleteForUser(ctx context.Context, userID string, w Where) (int64, error)
}

type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) CreateForUser(ctx context.Context, userID string, o Order) (Order, error) {
	o.UserID = userID
	_, err := r.DB.Exec(ctx, `
		INSERT INTO orders(id, user_id, full_name, total, placed_at, products)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, o.OrderID, o.UserID, o.FullName, o.Total, o.Date, o.Products)
	if err != nil {
		return Order{}, err
	}
	return o, nil
}

func (r *Repo) ListForUser(ctx context.Context, userID string, f Filter) ([]Order, error) {
	q := `SELECT id, user_id, full_name, total, placed_at, products
	      FROM orders WHERE user_id=$1 ORDER BY placed_at DESC, id`
	args := []any{userID}
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += " LIMIT $" + strconv.Itoa(len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		q += " OFFSET $" + strconv.Itoa(len(args))
	}

	rows, err := r.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Order, error) {
		var o Order
		err := row.Scan(&o.OrderID, &o.UserID, &o.FullName, &o.Total, &o.Date, &o.Products)
		return o, err
	})
}

func (r *Repo) DeleteForUser(ctx context.Context, userID string, w Where) (int64, error) {
	conds := []string{"user_id=$1"}
	args := []any{userID}
	if w.OrderID != "" {
		args = append(args, w.OrderID)
		conds = append(conds, "id=$"+strconv.Itoa(len(args)))
	}
	if !w.Before.IsZero() {
		args = append(args, w.Before)
		conds = append(conds, "placed_at<$"+strconv.Itoa(len(args)))
	}

	ct, err := r.DB.Exec(ctx, `DELETE FROM orders WHERE `+strings.Join(conds, " AND "), args...)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}
