package models

import "time"

type Product struct {
	ID          int       `json:"id" gorm:"primaryKey;autoIncrement"`
	Name        string    `json:"name" gorm:"size:255;not null;index"`
	Description string    `json:"description" gorm:"type:text;not null"`
	Price       float64   `json:"price" gorm:"type:numeric(10,2);not null"`
	Image       *string   `json:"image" gorm:"type:text"`
	CreatedAt   time.Time `json:"createdAt" gorm:"not null;index"`
	UpdatedAt   time.Time `json:"updatedAt" gorm:"not null"`
}

func (Product) TableName() string {
	return "products"
}

// ProductInput is the body of create and update requests. Pointer fields let
// validation tell a missing value apart from a zero value.
type ProductInput struct {
	Name        string   `json:"name" validate:"required,max=255"`
	Description string   `json:"description" validate:"required"`
	Price       *float64 `json:"price" validate:"required,gte=0,lte=99999999.99"`
	Image       *string  `json:"image"`
}

// Sort orders accepted by ListQuery.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

type ListQuery struct {
	Search    string `json:"search"`
	Page      int    `json:"page"`
	Limit     int    `json:"limit"`
	SortBy    string `json:"sortBy"`
	SortOrder string `json:"sortOrder"`
}

// Offset is the number of matching rows skipped before the requested page.
func (q ListQuery) Offset() int {
	return (q.Page - 1) * q.Limit
}

type ProductPage struct {
	Products   []Product  `json:"data"`
	Pagination Pagination `json:"pagination"`
}
