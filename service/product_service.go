package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"catalog-svc/cache"
	"catalog-svc/circuitbreaker"
	"catalog-svc/models"
	"catalog-svc/repository"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	DefaultPage     = 1
	DefaultLimit    = 12
	DefaultMaxLimit = 100

	// MaxProductID is the largest id the products.id column can hold.
	MaxProductID = math.MaxInt32
	// maxPage keeps ListQuery.Offset within int range.
	maxPage = math.MaxInt32
)

type Cache interface {
	GetProduct(ctx context.Context, id int) (*models.Product, error)
	SetProduct(ctx context.Context, p *models.Product) error
	DeleteProduct(ctx context.Context, id int) error
	GetList(ctx context.Context, q models.ListQuery) (*models.ProductPage, error)
	SetList(ctx context.Context, q models.ListQuery, page *models.ProductPage) error
	InvalidateLists(ctx context.Context) error
}

type EventPublisher interface {
	Publish(ctx context.Context, event models.ProductEvent) error
}

var validate = validator.New(validator.WithRequiredStructEnabled())

type ProductService struct {
	repo     repository.ProductRepository
	cache    Cache
	events   EventPublisher
	breaker  *circuitbreaker.CircuitBreaker
	logger   *zap.Logger
	maxLimit int
	now      func() time.Time
}

type Option func(*ProductService)

func WithCache(c Cache) Option {
	return func(s *ProductService) { s.cache = c }
}

func WithPublisher(p EventPublisher) Option {
	return func(s *ProductService) { s.events = p }
}

func WithMaxLimit(n int) Option {
	return func(s *ProductService) {
		if n > 0 {
			s.maxLimit = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *ProductService) { s.now = now }
}

func NewProductService(repo repository.ProductRepository, logger *zap.Logger, opts ...Option) *ProductService {
	s := &ProductService{
		repo:   repo,
		logger: logger,
		breaker: circuitbreaker.NewCircuitBreaker(5, 30*time.Second,
			circuitbreaker.WithFailurePredicate(func(err error) bool {
				return !errors.Is(err, repository.ErrNotFound) &&
					!errors.Is(err, repository.ErrInvalidData) &&
					!errors.Is(err, context.Canceled)
			}),
		),
		maxLimit: DefaultMaxLimit,
		now: func() time.Time {
			return time.Now().UTC().Truncate(time.Microsecond)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func tracer() trace.Tracer {
	return otel.Tracer("catalog-service")
}

// NormalizeListQuery applies the list defaults: page 1, limit 12 capped at
// maxLimit, sortBy createdAt, sortOrder desc. Page and limit are bounded so
// the row offset cannot overflow.
func NormalizeListQuery(q models.ListQuery, maxLimit int) models.ListQuery {
	q.Search = strings.TrimSpace(q.Search)
	if q.Page < 1 {
		q.Page = DefaultPage
	}
	if q.Page > maxPage {
		q.Page = maxPage
	}
	if q.Limit < 1 {
		q.Limit = DefaultLimit
	}
	if maxLimit < 1 || maxLimit > math.MaxInt32 {
		maxLimit = math.MaxInt32
	}
	if q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	if _, ok := repository.SortColumn(q.SortBy); !ok {
		q.SortBy = repository.DefaultSortBy
	}
	q.SortOrder = strings.ToLower(q.SortOrder)
	if q.SortOrder != models.SortAsc {
		q.SortOrder = models.SortDesc
	}
	return q
}

func (s *ProductService) List(ctx context.Context, q models.ListQuery) (*models.ProductPage, error) {
	ctx, span := tracer().Start(ctx, "ProductService.List")
	defer span.End()

	q = NormalizeListQuery(q, s.maxLimit)
	span.SetAttributes(
		attribute.String("products.search", q.Search),
		attribute.Int("products.page", q.Page),
		attribute.Int("products.limit", q.Limit),
	)

	if s.cache != nil {
		page, err := s.cache.GetList(ctx, q)
		if err == nil {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return page, nil
		}
		s.logCacheError("list", err)
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	var (
		products []models.Product
		total    int64
	)
	err := s.breaker.Execute(ctx, func() error {
		var err error
		products, total, err = s.repo.List(ctx, q)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, mapRepoError(err)
	}
	if products == nil {
		products = []models.Product{}
	}

	page := &models.ProductPage{
		Products:   products,
		Pagination: models.NewPagination(q.Page, q.Limit, total),
	}
	span.SetAttributes(attribute.Int("products.count", len(products)))

	if s.cache != nil {
		if err := s.cache.SetList(ctx, q, page); err != nil {
			s.logger.Warn("Failed to cache product list", zap.Error(err))
		}
	}
	return page, nil
}

func (s *ProductService) Get(ctx context.Context, id int) (*models.Product, error) {
	ctx, span := tracer().Start(ctx, "ProductService.Get")
	defer span.End()
	span.SetAttributes(attribute.Int("product.id", id))

	if !validID(id) {
		return nil, ErrNotFound
	}

	if s.cache != nil {
		p, err := s.cache.GetProduct(ctx, id)
		if err == nil {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return p, nil
		}
		s.logCacheError("product", err)
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	var p *models.Product
	err := s.breaker.Execute(ctx, func() error {
		var err error
		p, err = s.repo.FindByID(ctx, id)
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		span.RecordError(err)
		return nil, mapRepoError(err)
	}

	if s.cache != nil {
		if err := s.cache.SetProduct(ctx, p); err != nil {
			s.logger.Warn("Failed to cache product", zap.Int("product_id", id), zap.Error(err))
		}
	}
	return p, nil
}

func (s *ProductService) Create(ctx context.Context, in models.ProductInput) (*models.Product, error) {
	ctx, span := tracer().Start(ctx, "ProductService.Create")
	defer span.End()

	if err := validateInput(in); err != nil {
		return nil, err
	}

	now := s.now()
	p := &models.Product{
		Name:        in.Name,
		Description: in.Description,
		Price:       roundPrice(*in.Price),
		Image:       normalizeImage(in.Image),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.breaker.Execute(ctx, func() error {
		return s.repo.Create(ctx, p)
	})
	if err != nil {
		span.RecordError(err)
		return nil, mapRepoError(err)
	}
	span.SetAttributes(attribute.Int("product.id", p.ID))

	s.afterWrite(ctx, models.EventProductCreated, p.ID, p)
	return p, nil
}

// Update replaces every mutable field of product id. id and createdAt are
// preserved by the store; updatedAt moves strictly forward.
func (s *ProductService) Update(ctx context.Context, id int, in models.ProductInput) (*models.Product, error) {
	ctx, span := tracer().Start(ctx, "ProductService.Update")
	defer span.End()
	span.SetAttributes(attribute.Int("product.id", id))

	if err := validateInput(in); err != nil {
		return nil, err
	}
	if !validID(id) {
		return nil, ErrNotFound
	}

	p := &models.Product{
		ID:          id,
		Name:        in.Name,
		Description: in.Description,
		Price:       roundPrice(*in.Price),
		Image:       normalizeImage(in.Image),
		UpdatedAt:   s.now(),
	}

	err := s.breaker.Execute(ctx, func() error {
		return s.repo.Update(ctx, p)
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		span.RecordError(err)
		return nil, mapRepoError(err)
	}

	s.afterWrite(ctx, models.EventProductUpdated, id, p)
	return p, nil
}

func (s *ProductService) Delete(ctx context.Context, id int) error {
	ctx, span := tracer().Start(ctx, "ProductService.Delete")
	defer span.End()
	span.SetAttributes(attribute.Int("product.id", id))

	if !validID(id) {
		return ErrNotFound
	}

	err := s.breaker.Execute(ctx, func() error {
		return s.repo.Delete(ctx, id)
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		span.RecordError(err)
		return mapRepoError(err)
	}

	s.afterWrite(ctx, models.EventProductDeleted, id, nil)
	return nil
}

// Ping reports whether the persistence layer is reachable.
func (s *ProductService) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// afterWrite drops stale cache entries and announces the change. Failures are
// logged; the write itself already succeeded.
func (s *ProductService) afterWrite(ctx context.Context, eventType string, id int, p *models.Product) {
	if s.cache != nil {
		if eventType != models.EventProductCreated {
			if err := s.cache.DeleteProduct(ctx, id); err != nil {
				s.logger.Warn("Failed to invalidate cached product", zap.Int("product_id", id), zap.Error(err))
			}
		}
		if err := s.cache.InvalidateLists(ctx); err != nil {
			s.logger.Warn("Failed to invalidate cached product lists", zap.Error(err))
		}
	}

	if s.events != nil {
		event := models.ProductEvent{
			EventType:  eventType,
			ProductID:  id,
			Product:    p,
			OccurredAt: s.now(),
		}
		if err := s.events.Publish(ctx, event); err != nil {
			s.logger.Warn("Failed to publish product event",
				zap.String("event_type", eventType),
				zap.Int("product_id", id),
				zap.Error(err),
			)
		}
	}
}

func (s *ProductService) logCacheError(kind string, err error) {
	if errors.Is(err, cache.ErrMiss) {
		return
	}
	s.logger.Warn("Cache lookup failed", zap.String("kind", kind), zap.Error(err))
}

// validID reports whether id can name a stored product.
func validID(id int) bool {
	return id >= 1 && id <= MaxProductID
}

// mapRepoError turns values the database refused into a validation error.
func mapRepoError(err error) error {
	if errors.Is(err, repository.ErrInvalidData) {
		return &ValidationError{Message: msgInvalidData}
	}
	return err
}

func validateInput(in models.ProductInput) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	for _, fe := range fieldErrs {
		if fe.Tag() == "required" {
			return &ValidationError{Field: strings.ToLower(fe.Field()), Message: msgRequiredFields}
		}
	}
	if fieldErrs[0].Field() == "Name" {
		return &ValidationError{Field: "name", Message: msgNameTooLong}
	}
	return &ValidationError{Field: "price", Message: msgInvalidPrice}
}

func roundPrice(price float64) float64 {
	return decimal.NewFromFloat(price).Round(2).InexactFloat64()
}

// normalizeImage stores both a missing and an empty image as NULL.
func normalizeImage(image *string) *string {
	if image == nil || *image == "" {
		return nil
	}
	v := *image
	return &v
}
