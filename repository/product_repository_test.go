package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"catalog-svc/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var productColumns = []string{"id", "name", "description", "price", "image", "created_at", "updated_at"}

func setupRepositoryTest(t *testing.T) (*GormProductRepository, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("Failed to open gorm: %v", err)
	}

	return NewProductRepository(db), mock
}

func TestProductRepository_List_Search(t *testing.T) {
	repo, mock := setupRepositoryTest(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT count\(\*\) FROM "products" WHERE name ILIKE \$1 OR description ILIKE \$2`).
		WithArgs("%cotton%", "%cotton%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	mock.ExpectQuery(`SELECT \* FROM "products" WHERE name ILIKE \$1 OR description ILIKE \$2 ORDER BY "price","id" LIMIT`).
		WillReturnRows(sqlmock.NewRows(productColumns).
			AddRow(1, "Tee", "Cotton tee", 9.99, nil, now, now).
			AddRow(2, "Hoodie", "Cotton fleece", 49.99, "https://img/h.png", now, now))

	products, total, err := repo.List(context.Background(), models.ListQuery{
		Search: "cotton", Page: 1, Limit: 12, SortBy: "price", SortOrder: "asc",
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if total != 2 {
		t.Errorf("Expected total 2, got %d", total)
	}
	if len(products) != 2 {
		t.Fatalf("Expected 2 products, got %d", len(products))
	}
	if products[0].Image != nil {
		t.Errorf("Expected nil image, got %v", *products[0].Image)
	}
	if products[1].Image == nil || *products[1].Image != "https://img/h.png" {
		t.Errorf("Expected image to be scanned, got %v", products[1].Image)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestProductRepository_List_UnknownSortFallsBack(t *testing.T) {
	repo, mock := setupRepositoryTest(t)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "products"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`SELECT \* FROM "products" ORDER BY "created_at" DESC,"id" DESC`).
		WillReturnRows(sqlmock.NewRows(productColumns))

	products, total, err := repo.List(context.Background(), models.ListQuery{
		Page: 1, Limit: 12, SortBy: "password; DROP TABLE products", SortOrder: "sideways",
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if total != 0 {
		t.Errorf("Expected total 0, got %d", total)
	}
	if products == nil || len(products) != 0 {
		t.Errorf("Expected empty non-nil slice, got %v", products)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestProductRepository_List_CountError(t *testing.T) {
	repo, mock := setupRepositoryTest(t)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "products"`).
		WillReturnError(errors.New("connection reset"))

	if _, _, err := repo.List(context.Background(), models.ListQuery{Page: 1, Limit: 12}); err == nil {
		t.Error("Expected an error, got nil")
	}
}

func TestEscapeLike(t *testing.T) {
	tests := map[string]string{
		"tee":      "tee",
		"100%":     `100\%`,
		"a_b":      `a\_b`,
		`back\sl`: `back\\sl`,
	}
	for in, expected := range tests {
		if got := escapeLike(in); got != expected {
			t.Errorf("escapeLike(%q): expected %q, got %q", in, expected, got)
		}
	}
}

func TestProductRepository_FindByID(t *testing.T) {
	repo, mock := setupRepositoryTest(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT \* FROM "products" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows(productColumns).AddRow(7, "Tee", "Cotton tee", 29.99, nil, now, now))

	p, err := repo.FindByID(context.Background(), 7)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if p.ID != 7 || p.Name != "Tee" {
		t.Errorf("Unexpected product: %+v", p)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestProductRepository_FindByID_NotFound(t *testing.T) {
	repo, mock := setupRepositoryTest(t)

	mock.ExpectQuery(`SELECT \* FROM "products" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows(productColumns))

	_, err := repo.FindByID(context.Background(), 999)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestProductRepository_Create(t *testing.T) {
	repo, mock := setupRepositoryTest(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`INSERT INTO "products" \("name","description","price","image","created_at","updated_at"\)`).
		WithArgs("Tee", "Cotton tee", 29.99, nil, now, now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

	p := &models.Product{Name: "Tee", Description: "Cotton tee", Price: 29.99, CreatedAt: now, UpdatedAt: now}
	if err := repo.Create(context.Background(), p); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if p.ID != 42 {
		t.Errorf("Expected id 42, got %d", p.ID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestProductRepository_Update(t *testing.T) {
	repo, mock := setupRepositoryTest(t)
	created := time.Now().UTC().Add(-time.Hour)
	updated := time.Now().UTC()

	mock.ExpectQuery(`UPDATE "products" SET .* WHERE id = \$6 RETURNING \*`).
		WillReturnRows(sqlmock.NewRows(productColumns).AddRow(1, "Tee V2", "Cotton tee", 24.99, nil, created, updated))

	p := &models.Product{ID: 1, Name: "Tee V2", Description: "Cotton tee", Price: 24.99, UpdatedAt: updated}
	if err := repo.Update(context.Background(), p); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !p.CreatedAt.Equal(created) {
		t.Errorf("Expected createdAt %v from the stored row, got %v", created, p.CreatedAt)
	}
	if p.Price != 24.99 {
		t.Errorf("Expected price 24.99, got %v", p.Price)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestProductRepository_Update_NotFound(t *testing.T) {
	repo, mock := setupRepositoryTest(t)

	mock.ExpectQuery(`UPDATE "products" SET`).
		WillReturnRows(sqlmock.NewRows(productColumns))

	p := &models.Product{ID: 999, Name: "Tee", Description: "Cotton tee", Price: 1}
	if err := repo.Update(context.Background(), p); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestProductRepository_Delete(t *testing.T) {
	repo, mock := setupRepositoryTest(t)

	mock.ExpectExec(`DELETE FROM "products" WHERE id = \$1`).
		WithArgs(1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Delete(context.Background(), 1); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestProductRepository_Delete_NotFound(t *testing.T) {
	repo, mock := setupRepositoryTest(t)

	mock.ExpectExec(`DELETE FROM "products" WHERE id = \$1`).
		WithArgs(999).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.Delete(context.Background(), 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestProductRepository_Create_DataException(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		invalid bool
	}{
		{"string too long", &pq.Error{Code: "22001", Message: "value too long for type character varying(255)"}, true},
		{"numeric overflow", &pq.Error{Code: "22003", Message: "numeric field overflow"}, true},
		{"check violation", &pq.Error{Code: "23514", Message: "violates check constraint"}, true},
		{"connection failure", &pq.Error{Code: "08006", Message: "connection failure"}, false},
		{"driver error", errors.New("bad connection"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := setupRepositoryTest(t)
			mock.ExpectQuery(`INSERT INTO "products"`).WillReturnError(tt.err)

			p := &models.Product{Name: "Tee", Description: "Cotton tee", Price: 29.99}
			err := repo.Create(context.Background(), p)
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if got := errors.Is(err, ErrInvalidData); got != tt.invalid {
				t.Errorf("Expected errors.Is(err, ErrInvalidData) = %v, got %v (%v)", tt.invalid, got, err)
			}
			if !errors.Is(err, tt.err) {
				t.Errorf("Expected the driver error to stay wrapped, got %v", err)
			}
		})
	}
}
