package database

import (
	"context"
	"fmt"
	"time"

	"catalog-svc/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type seedProduct struct {
	name        string
	description string
	price       float64
	image       string
}

var sampleProducts = []seedProduct{
	{"Classic White T-Shirt", "Premium cotton t-shirt with a comfortable fit. Perfect for everyday casual wear. Made from 100% organic cotton with a soft touch finish.", 29.99, "https://images.unsplash.com/photo-1521572163474-6864f9cf17ab?w=800"},
	{"Slim Fit Denim Jeans", "Modern slim fit jeans made from stretch denim for maximum comfort. Features a classic 5-pocket design with a contemporary fit.", 79.99, "https://images.unsplash.com/photo-1542272604-787c3835535d?w=800"},
	{"Leather Biker Jacket", "Genuine leather jacket with a timeless biker design. Features asymmetric zipper, multiple pockets, and quilted lining.", 299.99, "https://images.unsplash.com/photo-1551028719-00167b16eac5?w=800"},
	{"Floral Summer Dress", "Light and flowy summer dress with beautiful floral patterns. Perfect for beach days and casual outings.", 59.99, "https://images.unsplash.com/photo-1572804013309-59a88b7e92f1?w=800"},
	{"Wool Blend Overcoat", "Elegant overcoat crafted from a premium wool blend. Features classic lapels, two-button closure, and satin lining.", 249.99, "https://images.unsplash.com/photo-1539533018447-63fcce2678e3?w=800"},
	{"Athletic Running Shorts", "Lightweight performance shorts with moisture-wicking fabric. Features elastic waistband and built-in brief liner.", 34.99, "https://images.unsplash.com/photo-1591195853828-11db59a44f6b?w=800"},
	{"Cashmere Blend Sweater", "Luxuriously soft sweater made from premium cashmere blend. Features ribbed cuffs and hem with a relaxed fit.", 149.99, "https://images.unsplash.com/photo-1576566588028-4147f3842f27?w=800"},
	{"Vintage Hoodie", "Comfortable vintage-style hoodie with distressed graphics. Made from heavyweight cotton fleece for extra warmth.", 69.99, "https://images.unsplash.com/photo-1556821840-3a63f95609a7?w=800"},
	{"Striped Linen Shirt", "Breathable linen shirt with classic stripes. Perfect for summer days with its relaxed fit and natural fabric.", 54.99, "https://images.unsplash.com/photo-1596755094514-f87e34085b2c?w=800"},
	{"High-Waist Yoga Pants", "Stretchy yoga pants with high-waist design for extra support. Features 4-way stretch fabric and hidden pocket.", 44.99, "https://images.unsplash.com/photo-1506629082955-511b1aa562c8?w=800"},
	{"Silk Evening Blouse", "Elegant silk blouse perfect for formal occasions. Features delicate draping and pearl button details.", 89.99, "https://images.unsplash.com/photo-1485968579580-b6d095142e6e?w=800"},
	{"Cargo Utility Pants", "Functional cargo pants with multiple pockets. Made from durable cotton twill with a relaxed fit.", 74.99, "https://images.unsplash.com/photo-1473966968600-fa801b869a1a?w=800"},
}

// SampleProducts returns the seed catalog with creation times one second apart,
// oldest first.
func SampleProducts(now time.Time) []models.Product {
	products := make([]models.Product, 0, len(sampleProducts))
	start := now.Add(-time.Duration(len(sampleProducts)) * time.Second)
	for i, s := range sampleProducts {
		image := s.image
		ts := start.Add(time.Duration(i) * time.Second)
		products = append(products, models.Product{
			Name:        s.name,
			Description: s.description,
			Price:       s.price,
			Image:       &image,
			CreatedAt:   ts,
			UpdatedAt:   ts,
		})
	}
	return products
}

// Seed replaces the whole catalog with the sample products.
func Seed(ctx context.Context, db *gorm.DB, logger *zap.Logger) (int, error) {
	products := SampleProducts(time.Now().UTC().Truncate(time.Microsecond))

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.Product{}).Error; err != nil {
			return fmt.Errorf("failed to clear products: %w", err)
		}
		logger.Info("Cleared existing products")

		if err := tx.Create(&products).Error; err != nil {
			return fmt.Errorf("failed to insert sample products: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	logger.Info("Seeding complete", zap.Int("products", len(products)))
	return len(products), nil
}
