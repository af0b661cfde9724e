package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/inventory"
)

const productColumns = `id, name, category, classification, cost_price::text, selling_price::text,
	discount_rate::text, stock, version, created_at, updated_at`

type ProductRepository struct{ DB *pgxpool.Pool }

func NewProductRepository(db *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{DB: db}
}

func (r *ProductRepository) Get(ctx context.Context, productID string) (*domain.Product, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, productID)
	p, err := scanProduct(row)
	if err != nil {
		return nil, fmt.Errorf("product repository: get %s: %w", productID, err)
	}
	return p, nil
}

func (r *ProductRepository) List(ctx context.Context) ([]*domain.Product, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("product repository: list: %w", err)
	}
	defer rows.Close()

	var out []*domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("product repository: list: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *ProductRepository) Insert(ctx context.Context, p *domain.Product) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO products (id, name, category, classification, cost_price, selling_price,
			discount_rate, stock, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric, $8, $9, $10, $11)`,
		p.ID, p.Name, p.Category, p.Classification,
		p.CostPrice.String(), p.SellingPrice.String(), p.DiscountRate.String(),
		p.Stock, max(p.Version, 1), p.CreatedAt, p.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("product repository: insert %s: %w", p.ID, err)
	}
	return nil
}

func (r *ProductRepository) Update(ctx context.Context, p *domain.Product) (*domain.Product, error) {
	row := r.DB.QueryRow(ctx, `
		UPDATE products SET name=$2, category=$3, classification=$4, cost_price=$5::numeric,
			selling_price=$6::numeric, discount_rate=$7::numeric, version=version+1, updated_at=$8
		WHERE id=$1
		RETURNING `+productColumns,
		p.ID, p.Name, p.Category, p.Classification,
		p.CostPrice.String(), p.SellingPrice.String(), p.DiscountRate.String(), time.Now().UTC(),
	)
	out, err := scanProduct(row)
	if err != nil {
		return nil, fmt.Errorf("product repository: update %s: %w", p.ID, err)
	}
	return out, nil
}

// Mutate locks the row with SELECT ... FOR UPDATE for the duration of fn.
func (r *ProductRepository) Mutate(ctx context.Context, productID string, fn func(*domain.Product) error) (*domain.Product, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("product repository: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1 FOR UPDATE`, productID)
	p, err := scanProduct(row)
	if err != nil {
		return nil, fmt.Errorf("product repository: lock %s: %w", productID, err)
	}
	if err := fn(p); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `UPDATE products SET stock=$2, version=$3, updated_at=$4 WHERE id=$1`,
		p.ID, p.Stock, p.Version, p.UpdatedAt); err != nil {
		return nil, fmt.Errorf("product repository: mutate %s: %w", productID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("product repository: commit %s: %w", productID, err)
	}
	return p, nil
}

func scanProduct(row pgx.Row) (*domain.Product, error) {
	var (
		p                       domain.Product
		cost, selling, discount string
	)
	err := row.Scan(&p.ID, &p.Name, &p.Category, &p.Classification, &cost, &selling,
		&discount, &p.Stock, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if isNoRows(err) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if p.CostPrice, err = parseDecimal(cost); err != nil {
		return nil, err
	}
	if p.SellingPrice, err = parseDecimal(selling); err != nil {
		return nil, err
	}
	if p.DiscountRate, err = parseDecimal(discount); err != nil {
		return nil, err
	}
	return &p, nil
}
