package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"catalog-svc/models"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound = errors.New("product not found")
	// ErrInvalidData wraps statements the database rejected because of the
	// values they carried, not because the database is unhealthy.
	ErrInvalidData = errors.New("invalid product data")
)

// classify marks PostgreSQL data exceptions (class 22) and check violations
// with ErrInvalidData. Other errors pass through unchanged.
func classify(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	if pqErr.Code.Class() == "22" || pqErr.Code == "23514" {
		return fmt.Errorf("%w: %w", ErrInvalidData, err)
	}
	return err
}

// DefaultSortBy is used when a list query names no sortable column.
const DefaultSortBy = "createdAt"

// sortColumns maps accepted sortBy values to columns. Anything else falls
// back to DefaultSortBy.
var sortColumns = map[string]string{
	"id":          "id",
	"name":        "name",
	"description": "description",
	"price":       "price",
	"image":       "image",
	"createdAt":   "created_at",
	"created_at":  "created_at",
	"updatedAt":   "updated_at",
	"updated_at":  "updated_at",
}

// SortColumn resolves a sortBy value to its column.
func SortColumn(sortBy string) (string, bool) {
	col, ok := sortColumns[sortBy]
	return col, ok
}

type ProductRepository interface {
	List(ctx context.Context, q models.ListQuery) ([]models.Product, int64, error)
	FindByID(ctx context.Context, id int) (*models.Product, error)
	Create(ctx context.Context, p *models.Product) error
	Update(ctx context.Context, p *models.Product) error
	Delete(ctx context.Context, id int) error
	Ping(ctx context.Context) error
}

type GormProductRepository struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) *GormProductRepository {
	return &GormProductRepository{db: db}
}

// List counts and fetches against the same predicate. The two statements are
// not run in one transaction.
func (r *GormProductRepository) List(ctx context.Context, q models.ListQuery) ([]models.Product, int64, error) {
	var total int64
	if err := r.filtered(ctx, q.Search).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", classify(err))
	}

	col, ok := SortColumn(q.SortBy)
	if !ok {
		col, _ = SortColumn(DefaultSortBy)
	}
	desc := !strings.EqualFold(q.SortOrder, models.SortAsc)

	products := make([]models.Product, 0, q.Limit)
	err := r.filtered(ctx, q.Search).
		Order(clause.OrderByColumn{Column: clause.Column{Name: col}, Desc: desc}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: desc}).
		Offset(q.Offset()).
		Limit(q.Limit).
		Find(&products).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch products: %w", classify(err))
	}

	return products, total, nil
}

func (r *GormProductRepository) filtered(ctx context.Context, search string) *gorm.DB {
	tx := r.db.WithContext(ctx).Model(&models.Product{})
	if search == "" {
		return tx
	}
	pattern := "%" + escapeLike(search) + "%"
	return tx.Where("name ILIKE ? OR description ILIKE ?", pattern, pattern)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes s match literally inside an ILIKE pattern.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func (r *GormProductRepository) FindByID(ctx context.Context, id int) (*models.Product, error) {
	var p models.Product
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch product %d: %w", id, classify(err))
	}
	return &p, nil
}

func (r *GormProductRepository) Create(ctx context.Context, p *models.Product) error {
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("failed to create product: %w", classify(err))
	}
	return nil
}

// Update rewrites every mutable column of p.ID in a single
// UPDATE ... RETURNING statement and loads the stored row back into p.
// updated_at never moves backwards, even if p.UpdatedAt is behind the stored
// value.
func (r *GormProductRepository) Update(ctx context.Context, p *models.Product) error {
	updatedAt := p.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC().Truncate(time.Microsecond)
	}

	var updated []models.Product
	result := r.db.WithContext(ctx).
		Model(&updated).
		Clauses(clause.Returning{}).
		Where("id = ?", p.ID).
		Updates(map[string]interface{}{
			"name":        p.Name,
			"description": p.Description,
			"price":       p.Price,
			"image":       p.Image,
			"updated_at":  gorm.Expr("GREATEST(?, updated_at + INTERVAL '1 microsecond')", updatedAt),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update product %d: %w", p.ID, classify(result.Error))
	}
	if result.RowsAffected == 0 || len(updated) == 0 {
		return ErrNotFound
	}

	*p = updated[0]
	return nil
}

func (r *GormProductRepository) Delete(ctx context.Context, id int) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Product{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete product %d: %w", id, classify(result.Error))
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormProductRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
