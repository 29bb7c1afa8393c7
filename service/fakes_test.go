package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"catalog-svc/models"
	"catalog-svc/repository"
)

// memoryRepository mirrors the semantics of the GORM repository in memory.
type memoryRepository struct {
	mu       sync.Mutex
	nextID   int
	products map[int]models.Product
	err      error
	calls    int
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{nextID: 1, products: map[int]models.Product{}}
}

func (r *memoryRepository) List(ctx context.Context, q models.ListQuery) ([]models.Product, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return nil, 0, r.err
	}

	needle := strings.ToLower(q.Search)
	var matched []models.Product
	for _, p := range r.products {
		if needle == "" ||
			strings.Contains(strings.ToLower(p.Name), needle) ||
			strings.Contains(strings.ToLower(p.Description), needle) {
			matched = append(matched, p)
		}
	}

	desc := q.SortOrder != models.SortAsc
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		var c int
		switch q.SortBy {
		case "name":
			c = strings.Compare(a.Name, b.Name)
		case "price":
			c = cmpFloat(a.Price, b.Price)
		case "id":
		default:
			c = a.CreatedAt.Compare(b.CreatedAt)
		}
		if c == 0 {
			c = a.ID - b.ID
		}
		if desc {
			c = -c
		}
		return c < 0
	})

	total := int64(len(matched))
	start := q.Offset()
	if start > len(matched) {
		start = len(matched)
	}
	end := start + q.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return append([]models.Product{}, matched[start:end]...), total, nil
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func (r *memoryRepository) FindByID(ctx context.Context, id int) (*models.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	p, ok := r.products[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (r *memoryRepository) Create(ctx context.Context, p *models.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return r.err
	}
	p.ID = r.nextID
	r.nextID++
	r.products[p.ID] = *p
	return nil
}

func (r *memoryRepository) Update(ctx context.Context, p *models.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return r.err
	}
	existing, ok := r.products[p.ID]
	if !ok {
		return repository.ErrNotFound
	}

	updatedAt := p.UpdatedAt
	if floor := existing.UpdatedAt.Add(time.Microsecond); updatedAt.Before(floor) {
		updatedAt = floor
	}

	existing.Name = p.Name
	existing.Description = p.Description
	existing.Price = p.Price
	existing.Image = p.Image
	existing.UpdatedAt = updatedAt
	r.products[p.ID] = existing
	*p = existing
	return nil
}

func (r *memoryRepository) Delete(ctx context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return r.err
	}
	if _, ok := r.products[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.products, id)
	return nil
}

func (r *memoryRepository) Ping(ctx context.Context) error {
	return r.err
}

func (r *memoryRepository) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.products)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.ProductEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, event models.ProductEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

// stepClock returns a time one millisecond later on every call.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func newStepClock() *stepClock {
	return &stepClock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Millisecond)
	return c.t
}
