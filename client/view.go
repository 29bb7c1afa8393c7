package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"catalog-svc/models"
)

type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusLoaded
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusLoaded:
		return "loaded"
	case StatusError:
		return "error"
	default:
		return "idle"
	}
}

// State is a snapshot of a View. Data is only meaningful when Status is
// StatusLoaded; Err only when it is StatusError.
type State[T any] struct {
	Status Status
	Data   T
	Err    string
}

// View holds the state of one screen fed by requests. Only the completion of
// the latest request may change it; results of superseded requests are
// dropped.
type View[T any] struct {
	mu    sync.Mutex
	state State[T]
	token uint64
}

// Begin marks a new request as in flight and returns its token.
func (v *View[T]) Begin() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.token++
	v.state.Status = StatusLoading
	v.state.Err = ""
	return v.token
}

// Complete applies the outcome of the request identified by token. It reports
// false if a newer request has started since.
func (v *View[T]) Complete(token uint64, data T, err error) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if token != v.token {
		return false
	}
	if err != nil {
		var zero T
		v.state = State[T]{Status: StatusError, Data: zero, Err: errorMessage(err)}
		return true
	}
	v.state = State[T]{Status: StatusLoaded, Data: data}
	return true
}

func (v *View[T]) State() State[T] {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

func errorMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}

var (
	ErrNoPendingDelete  = errors.New("no deletion awaiting confirmation")
	ErrDeleteInProgress = errors.New("deletion already in progress")
)

// DeleteState is the confirmation step in front of a delete. Product is nil
// while nothing awaits confirmation.
type DeleteState struct {
	Product  *models.Product
	Deleting bool
}

func (d DeleteState) Open() bool { return d.Product != nil }

// deleteConfirm guards a single pending deletion.
type deleteConfirm struct {
	mu    sync.Mutex
	state DeleteState
}

func (d *deleteConfirm) request(p *models.Product) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state.Deleting {
		return false
	}
	d.state.Product = p
	return true
}

// cancel closes the confirmation unless the delete is already running.
func (d *deleteConfirm) cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state.Deleting {
		return false
	}
	d.state.Product = nil
	return true
}

func (d *deleteConfirm) begin() (*models.Product, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case d.state.Deleting:
		return nil, ErrDeleteInProgress
	case d.state.Product == nil:
		return nil, ErrNoPendingDelete
	}
	d.state.Deleting = true
	return d.state.Product, nil
}

// finish closes the confirmation on success. A failed delete leaves it open
// so the user can retry or cancel.
func (d *deleteConfirm) finish(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.state.Deleting = false
	if err == nil {
		d.state.Product = nil
	}
}

func (d *deleteConfirm) snapshot() DeleteState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// ListView drives a product listing: debounced search, paging and sorting
// over Client.List, and confirmed deletes followed by a refresh.
type ListView struct {
	client    *Client
	debouncer *Debouncer
	view      View[*models.ProductPage]
	deletion  deleteConfirm

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	query    models.ListQuery
	onChange func(State[*models.ProductPage])
}

// NewListView returns a view starting on page 1 with the API's default
// ordering. onChange, if set, is called after every applied completion.
func NewListView(c *Client, debounce time.Duration, onChange func(State[*models.ProductPage])) *ListView {
	ctx, cancel := context.WithCancel(context.Background())
	return &ListView{
		client:    c,
		debouncer: NewDebouncer(debounce),
		ctx:       ctx,
		cancel:    cancel,
		query:     models.ListQuery{Page: 1},
		onChange:  onChange,
	}
}

func (lv *ListView) State() State[*models.ProductPage] {
	return lv.view.State()
}

func (lv *ListView) Query() models.ListQuery {
	lv.mu.Lock()
	defer lv.mu.Unlock()
	return lv.query
}

// SetSearch updates the search text and schedules a reload once typing
// pauses. The page goes back to 1.
func (lv *ListView) SetSearch(search string) {
	lv.mu.Lock()
	lv.query.Search = search
	lv.query.Page = 1
	lv.mu.Unlock()

	lv.debouncer.Trigger(func() { lv.Reload(lv.ctx) })
}

func (lv *ListView) SetPage(ctx context.Context, page int) {
	lv.mu.Lock()
	lv.query.Page = page
	lv.mu.Unlock()

	lv.Reload(ctx)
}

func (lv *ListView) SetSort(ctx context.Context, sortBy, sortOrder string) {
	lv.mu.Lock()
	lv.query.SortBy = sortBy
	lv.query.SortOrder = sortOrder
	lv.mu.Unlock()

	lv.Reload(ctx)
}

// Reload fetches the current query immediately.
func (lv *ListView) Reload(ctx context.Context) {
	q := lv.Query()
	token := lv.view.Begin()

	page, err := lv.client.List(ctx, q)
	if lv.view.Complete(token, page, err) && lv.onChange != nil {
		lv.onChange(lv.view.State())
	}
}

// RequestDelete opens the confirmation for a product on the loaded page. It
// reports false if the product is not shown or another delete is running.
func (lv *ListView) RequestDelete(id int) bool {
	page := lv.view.State().Data
	if page == nil {
		return false
	}
	for i := range page.Products {
		if page.Products[i].ID == id {
			p := page.Products[i]
			return lv.deletion.request(&p)
		}
	}
	return false
}

func (lv *ListView) CancelDelete() bool {
	return lv.deletion.cancel()
}

// ConfirmDelete removes the pending product and refreshes the current page.
func (lv *ListView) ConfirmDelete(ctx context.Context) error {
	p, err := lv.deletion.begin()
	if err != nil {
		return err
	}

	err = lv.client.Delete(ctx, p.ID)
	lv.deletion.finish(err)
	if err != nil {
		return err
	}
	lv.Reload(ctx)
	return nil
}

func (lv *ListView) DeleteState() DeleteState {
	return lv.deletion.snapshot()
}

// Close drops any pending search and cancels debounced requests in flight.
func (lv *ListView) Close() {
	lv.debouncer.Stop()
	lv.cancel()
}

const msgLoadProductFailed = "Failed to load product"

// DetailView drives the screen for a single product: load, then an optional
// confirmed delete after which the caller leaves the screen.
type DetailView struct {
	client   *Client
	id       int
	view     View[*models.Product]
	deletion deleteConfirm

	mu      sync.Mutex
	deleted bool
}

func NewDetailView(c *Client, id int) *DetailView {
	return &DetailView{client: c, id: id}
}

// Load fetches the product. API errors keep their message, such as
// "Product not found"; transport failures read "Failed to load product".
func (dv *DetailView) Load(ctx context.Context) {
	token := dv.view.Begin()

	p, err := dv.client.Get(ctx, dv.id)
	var apiErr *APIError
	if err != nil && !errors.As(err, &apiErr) {
		err = errors.New(msgLoadProductFailed)
	}
	dv.view.Complete(token, p, err)
}

func (dv *DetailView) State() State[*models.Product] {
	return dv.view.State()
}

// RequestDelete opens the confirmation once the product is loaded.
func (dv *DetailView) RequestDelete() bool {
	s := dv.view.State()
	if s.Status != StatusLoaded || s.Data == nil || dv.Deleted() {
		return false
	}
	return dv.deletion.request(s.Data)
}

func (dv *DetailView) CancelDelete() bool {
	return dv.deletion.cancel()
}

func (dv *DetailView) ConfirmDelete(ctx context.Context) error {
	p, err := dv.deletion.begin()
	if err != nil {
		return err
	}

	err = dv.client.Delete(ctx, p.ID)
	dv.deletion.finish(err)
	if err != nil {
		return err
	}

	dv.mu.Lock()
	dv.deleted = true
	dv.mu.Unlock()
	return nil
}

func (dv *DetailView) DeleteState() DeleteState {
	return dv.deletion.snapshot()
}

// Deleted reports whether the product was removed from this screen.
func (dv *DetailView) Deleted() bool {
	dv.mu.Lock()
	defer dv.mu.Unlock()
	return dv.deleted
}
