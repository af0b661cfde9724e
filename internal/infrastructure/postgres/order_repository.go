package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
)

const orderColumns = `id, user_id, lines, shipping, payment_method, payment_ref, subtotal::text, tax::text,
	total::text, payment_status, state, stock_committed, restocked_lines, failure_reason, transitions,
	idempotency_key, created_at, updated_at, version`

type lineRow struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	LineTotal string `json:"line_total"`
}

type addressRow struct {
	FullName   string `json:"full_name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

type transitionRow struct {
	From   string    `json:"from"`
	To     string    `json:"to"`
	At     time.Time `json:"at"`
	Actor  string    `json:"actor"`
	Reason string    `json:"reason,omitempty"`
}

type OrderRepository struct{ DB *pgxpool.Pool }

func NewOrderRepository(db *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{DB: db}
}

func (r *OrderRepository) Insert(ctx context.Context, o *domain.Order) error {
	lines, shipping, transitions, err := encodeOrder(o)
	if err != nil {
		return fmt.Errorf("order repository: insert %s: %w", o.ID, err)
	}
	_, err = r.DB.Exec(ctx, `
		INSERT INTO orders (id, user_id, lines, shipping, payment_method, payment_ref, subtotal, tax, total,
			payment_status, state, stock_committed, restocked_lines, failure_reason, transitions,
			idempotency_key, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8::numeric, $9::numeric, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19)`,
		o.ID, o.UserID, lines, shipping, string(o.PaymentMethod), o.PaymentRef,
		o.Subtotal.String(), o.Tax.String(), o.Total.String(),
		string(o.PaymentStatus), string(o.State), o.StockCommitted, o.RestockedLines, o.FailureReason, transitions,
		o.IdempotencyKey, o.CreatedAt, o.UpdatedAt, o.Version,
	)
	if isUniqueViolation(err) {
		return domain.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("order repository: insert %s: %w", o.ID, err)
	}
	return nil
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
	if err != nil {
		return nil, fmt.Errorf("order repository: get %s: %w", id, err)
	}
	return o, nil
}

// Update rewrites the mutable lifecycle columns when the stored version matches.
// Lines and totals are fixed at placement.
func (r *OrderRepository) Update(ctx context.Context, o *domain.Order) error {
	_, _, transitions, err := encodeOrder(o)
	if err != nil {
		return fmt.Errorf("order repository: update %s: %w", o.ID, err)
	}
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET payment_ref=$3, payment_status=$4, state=$5, stock_committed=$6,
			restocked_lines=$7, failure_reason=$8, transitions=$9, updated_at=$10, version=version+1
		WHERE id=$1 AND version=$2`,
		o.ID, o.Version, o.PaymentRef, string(o.PaymentStatus), string(o.State), o.StockCommitted,
		o.RestockedLines, o.FailureReason, transitions, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("order repository: update %s: %w", o.ID, err)
	}
	if ct.RowsAffected() == 0 {
		return missOrStale(ctx, r.DB, "orders", o.ID, domain.ErrNotFound, domain.ErrStale)
	}
	o.Version++
	return nil
}

func (r *OrderRepository) List(ctx context.Context, filter domain.ListFilter) ([]*domain.Order, error) {
	var (
		where []string
		args  []any
	)
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		where = append(where, fmt.Sprintf("user_id=$%d", len(args)))
	}
	if filter.State != "" {
		args = append(args, string(filter.State))
		where = append(where, fmt.Sprintf("state=$%d", len(args)))
	}
	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("order repository: list: %w", err)
	}
	defer rows.Close()

	var out []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("order repository: list: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func encodeOrder(o *domain.Order) (lines, shipping, transitions []byte, err error) {
	lr := make([]lineRow, 0, len(o.Lines))
	for _, l := range o.Lines {
		lr = append(lr, lineRow{
			ProductID: l.ProductID,
			Name:      l.Name,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice.String(),
			LineTotal: l.LineTotal.String(),
		})
	}
	tr := make([]transitionRow, 0, len(o.Transitions))
	for _, t := range o.Transitions {
		tr = append(tr, transitionRow{From: string(t.From), To: string(t.To), At: t.At, Actor: t.Actor, Reason: t.Reason})
	}
	s := o.Shipping
	ar := addressRow{s.FullName, s.Line1, s.Line2, s.City, s.PostalCode, s.Country, s.Phone}

	if lines, err = json.Marshal(lr); err != nil {
		return nil, nil, nil, err
	}
	if shipping, err = json.Marshal(ar); err != nil {
		return nil, nil, nil, err
	}
	if transitions, err = json.Marshal(tr); err != nil {
		return nil, nil, nil, err
	}
	return lines, shipping, transitions, nil
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		o                            domain.Order
		lines, shipping, transitions []byte
		method, payStatus, state     string
		subtotal, tax, total         string
	)
	err := row.Scan(&o.ID, &o.UserID, &lines, &shipping, &method, &o.PaymentRef, &subtotal, &tax,
		&total, &payStatus, &state, &o.StockCommitted, &o.RestockedLines, &o.FailureReason, &transitions,
		&o.IdempotencyKey, &o.CreatedAt, &o.UpdatedAt, &o.Version)
	if isNoRows(err) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	o.PaymentMethod = domain.PaymentMethod(method)
	o.PaymentStatus = domain.PaymentStatus(payStatus)
	o.State = domain.State(state)

	if o.Subtotal, err = parseDecimal(subtotal); err != nil {
		return nil, err
	}
	if o.Tax, err = parseDecimal(tax); err != nil {
		return nil, err
	}
	if o.Total, err = parseDecimal(total); err != nil {
		return nil, err
	}
	if err := decodeOrderJSON(&o, lines, shipping, transitions); err != nil {
		return nil, err
	}
	return &o, nil
}

func decodeOrderJSON(o *domain.Order, lines, shipping, transitions []byte) error {
	var (
		lr []lineRow
		ar addressRow
		tr []transitionRow
	)
	if err := json.Unmarshal(lines, &lr); err != nil {
		return fmt.Errorf("decode lines: %w", err)
	}
	if err := json.Unmarshal(shipping, &ar); err != nil {
		return fmt.Errorf("decode shipping: %w", err)
	}
	if err := json.Unmarshal(transitions, &tr); err != nil {
		return fmt.Errorf("decode transitions: %w", err)
	}

	o.Lines = make([]domain.Line, 0, len(lr))
	for _, l := range lr {
		unit, err := parseDecimal(l.UnitPrice)
		if err != nil {
			return err
		}
		lineTotal, err := parseDecimal(l.LineTotal)
		if err != nil {
			return err
		}
		o.Lines = append(o.Lines, domain.Line{
			ProductID: l.ProductID,
			Name:      l.Name,
			Quantity:  l.Quantity,
			UnitPrice: unit,
			LineTotal: lineTotal,
		})
	}
	o.Shipping = domain.Address{
		FullName:   ar.FullName,
		Line1:      ar.Line1,
		Line2:      ar.Line2,
		City:       ar.City,
		PostalCode: ar.PostalCode,
		Country:    ar.Country,
		Phone:      ar.Phone,
	}
	o.Transitions = make([]domain.Transition, 0, len(tr))
	for _, t := range tr {
		o.Transitions = append(o.Transitions, domain.Transition{
			From:   domain.State(t.From),
			To:     domain.State(t.To),
			At:     t.At,
			Actor:  t.Actor,
			Reason: t.Reason,
		})
	}
	return nil
}
