package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/sale"
)

const saleColumns = `id, product_id, quantity, unit_price::text, total_amount::text, status, restocked,
	created_at, updated_at, version`

type SaleRepository struct{ DB *pgxpool.Pool }

func NewSaleRepository(db *pgxpool.Pool) *SaleRepository {
	return &SaleRepository{DB: db}
}

func (r *SaleRepository) Insert(ctx context.Context, s *domain.Sale) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO sales (id, product_id, quantity, unit_price, total_amount, status, restocked,
			created_at, updated_at, version)
		VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6, $7, $8, $9, $10)`,
		s.ID, s.ProductID, s.Quantity, s.UnitPrice.String(), s.TotalAmount.String(),
		string(s.Status), s.Restocked, s.CreatedAt, s.UpdatedAt, s.Version,
	)
	if isUniqueViolation(err) {
		return domain.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("sale repository: insert %s: %w", s.ID, err)
	}
	return nil
}

func (r *SaleRepository) Get(ctx context.Context, id string) (*domain.Sale, error) {
	s, err := scanSale(r.DB.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id=$1`, id))
	if err != nil {
		return nil, fmt.Errorf("sale repository: get %s: %w", id, err)
	}
	return s, nil
}

func (r *SaleRepository) Update(ctx context.Context, s *domain.Sale) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE sales SET status=$3, restocked=$4, updated_at=$5, version=version+1
		WHERE id=$1 AND version=$2`,
		s.ID, s.Version, string(s.Status), s.Restocked, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("sale repository: update %s: %w", s.ID, err)
	}
	if ct.RowsAffected() == 0 {
		return missOrStale(ctx, r.DB, "sales", s.ID, domain.ErrNotFound, domain.ErrStale)
	}
	s.Version++
	return nil
}

func (r *SaleRepository) List(ctx context.Context) ([]*domain.Sale, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+saleColumns+` FROM sales ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("sale repository: list: %w", err)
	}
	defer rows.Close()

	var out []*domain.Sale
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			return nil, fmt.Errorf("sale repository: list: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanSale(row pgx.Row) (*domain.Sale, error) {
	var (
		s            domain.Sale
		status       string
		unit, amount string
	)
	err := row.Scan(&s.ID, &s.ProductID, &s.Quantity, &unit, &amount, &status, &s.Restocked,
		&s.CreatedAt, &s.UpdatedAt, &s.Version)
	if isNoRows(err) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	s.Status = domain.Status(status)
	if s.UnitPrice, err = parseDecimal(unit); err != nil {
		return nil, err
	}
	if s.TotalAmount, err = parseDecimal(amount); err != nil {
		return nil, err
	}
	return &s, nil
}
