package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"catalog-svc/circuitbreaker"
	"catalog-svc/middleware"
	"catalog-svc/models"
	"catalog-svc/service"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	msgInvalidBody   = "Invalid request body"
	msgNotFound      = "Product not found"
	msgUnavailable   = "Service temporarily unavailable"
	msgDeleted       = "Product deleted successfully"
	msgFetchProducts = "Failed to fetch products"
	msgFetchProduct  = "Failed to fetch product"
	msgCreateProduct = "Failed to create product"
	msgUpdateProduct = "Failed to update product"
	msgDeleteProduct = "Failed to delete product"
)

// Label values for product_operations_total.
const (
	operationList   = "list"
	operationGet    = "get"
	operationCreate = "create"
	operationUpdate = "update"
	operationDelete = "delete"

	resultSuccess     = "success"
	resultInvalid     = "invalid"
	resultNotFound    = "not_found"
	resultUnavailable = "unavailable"
	resultError       = "error"
)

// ProductService is the catalog behaviour the HTTP and gRPC layers need.
type ProductService interface {
	List(ctx context.Context, q models.ListQuery) (*models.ProductPage, error)
	Get(ctx context.Context, id int) (*models.Product, error)
	Create(ctx context.Context, in models.ProductInput) (*models.Product, error)
	Update(ctx context.Context, id int, in models.ProductInput) (*models.Product, error)
	Delete(ctx context.Context, id int) error
}

type ProductHandler struct {
	service ProductService
	logger  *zap.Logger
}

func NewProductHandler(svc ProductService, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{service: svc, logger: logger}
}

// RegisterRoutes mounts the product endpoints on rg, normally /api/products.
func (h *ProductHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.GetProducts)
	rg.POST("", h.CreateProduct)
	rg.GET("/:id", h.GetProduct)
	rg.PUT("/:id", h.UpdateProduct)
	rg.DELETE("/:id", h.DeleteProduct)
}

func (h *ProductHandler) GetProducts(c *gin.Context) {
	ctx, span := otel.Tracer("catalog-service").Start(c.Request.Context(), "GetProducts")
	defer span.End()

	page, err := h.service.List(ctx, models.ListQuery{
		Search:    c.Query("search"),
		Page:      queryInt(c, "page"),
		Limit:     queryInt(c, "limit"),
		SortBy:    c.Query("sortBy"),
		SortOrder: c.Query("sortOrder"),
	})
	if err != nil {
		h.fail(c, span, operationList, err, msgFetchProducts)
		return
	}

	span.SetAttributes(
		attribute.Int("products.count", len(page.Products)),
		attribute.Int64("products.total", page.Pagination.Total),
	)
	middleware.RecordProductOperation(operationList, resultSuccess)
	c.JSON(http.StatusOK, models.Response{
		Success:    true,
		Data:       page.Products,
		Pagination: &page.Pagination,
	})
}

func (h *ProductHandler) GetProduct(c *gin.Context) {
	ctx, span := otel.Tracer("catalog-service").Start(c.Request.Context(), "GetProduct")
	defer span.End()

	id, ok := h.productID(c, span, operationGet)
	if !ok {
		return
	}

	product, err := h.service.Get(ctx, id)
	if err != nil {
		h.fail(c, span, operationGet, err, msgFetchProduct)
		return
	}

	middleware.RecordProductOperation(operationGet, resultSuccess)
	c.JSON(http.StatusOK, models.SuccessResponse(product))
}

func (h *ProductHandler) CreateProduct(c *gin.Context) {
	ctx, span := otel.Tracer("catalog-service").Start(c.Request.Context(), "CreateProduct")
	defer span.End()

	input, ok := h.bindInput(c, span, operationCreate)
	if !ok {
		return
	}

	product, err := h.service.Create(ctx, input)
	if err != nil {
		h.fail(c, span, operationCreate, err, msgCreateProduct)
		return
	}

	span.SetAttributes(attribute.Int("product.id", product.ID))
	h.logger.Info("Product created",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.Int("product_id", product.ID),
	)
	middleware.RecordProductOperation(operationCreate, resultSuccess)
	c.JSON(http.StatusCreated, models.SuccessResponse(product))
}

func (h *ProductHandler) UpdateProduct(c *gin.Context) {
	ctx, span := otel.Tracer("catalog-service").Start(c.Request.Context(), "UpdateProduct")
	defer span.End()

	id, ok := h.productID(c, span, operationUpdate)
	if !ok {
		return
	}
	input, ok := h.bindInput(c, span, operationUpdate)
	if !ok {
		return
	}

	product, err := h.service.Update(ctx, id, input)
	if err != nil {
		h.fail(c, span, operationUpdate, err, msgUpdateProduct)
		return
	}

	h.logger.Info("Product updated",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.Int("product_id", id),
	)
	middleware.RecordProductOperation(operationUpdate, resultSuccess)
	c.JSON(http.StatusOK, models.SuccessResponse(product))
}

func (h *ProductHandler) DeleteProduct(c *gin.Context) {
	ctx, span := otel.Tracer("catalog-service").Start(c.Request.Context(), "DeleteProduct")
	defer span.End()

	id, ok := h.productID(c, span, operationDelete)
	if !ok {
		return
	}

	if err := h.service.Delete(ctx, id); err != nil {
		h.fail(c, span, operationDelete, err, msgDeleteProduct)
		return
	}

	h.logger.Info("Product deleted",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.Int("product_id", id),
	)
	middleware.RecordProductOperation(operationDelete, resultSuccess)
	c.JSON(http.StatusOK, models.Response{Success: true, Message: msgDeleted})
}

func (h *ProductHandler) productID(c *gin.Context, span trace.Span, op string) (int, bool) {
	raw := c.Param("id")
	span.SetAttributes(attribute.String("product.id", raw))

	id, err := strconv.Atoi(raw)
	if err != nil {
		// A number too large for int cannot name a product.
		if errors.Is(err, strconv.ErrRange) {
			h.fail(c, span, op, service.ErrNotFound, "")
			return 0, false
		}
		h.fail(c, span, op, service.NewInvalidIDError(), "")
		return 0, false
	}
	return id, true
}

// bindInput decodes a create or update body. Syntax errors answer
// "Invalid request body"; wrong field types are validation errors.
func (h *ProductHandler) bindInput(c *gin.Context, span trace.Span, op string) (models.ProductInput, bool) {
	var input models.ProductInput
	err := c.ShouldBindJSON(&input)
	if err == nil {
		return input, true
	}

	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.Is(err, io.EOF):
		err = service.NewMissingFieldsError()
	case errors.As(err, &typeErr):
		err = service.NewFieldTypeError(typeErr.Field)
	default:
		span.RecordError(err)
		middleware.RecordProductOperation(op, resultInvalid)
		c.JSON(http.StatusBadRequest, models.ErrorResponse(msgInvalidBody))
		return input, false
	}

	h.fail(c, span, op, err, "")
	return input, false
}

// fail writes the error envelope for err. internalMsg is the only text a
// client sees for unexpected failures.
func (h *ProductHandler) fail(c *gin.Context, span trace.Span, op string, err error, internalMsg string) {
	var validationErr *service.ValidationError
	switch {
	case errors.As(err, &validationErr):
		middleware.RecordProductOperation(op, resultInvalid)
		c.JSON(http.StatusBadRequest, models.ErrorResponse(validationErr.Message))
	case errors.Is(err, service.ErrNotFound):
		middleware.RecordProductOperation(op, resultNotFound)
		c.JSON(http.StatusNotFound, models.ErrorResponse(msgNotFound))
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		span.SetAttributes(attribute.String("circuit.state", "open"))
		middleware.RecordProductOperation(op, resultUnavailable)
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse(msgUnavailable))
	default:
		span.RecordError(err)
		h.logger.Error(internalMsg,
			zap.String("trace_id", middleware.GetTraceID(c.Request.Context())),
			zap.String("operation", op),
			zap.Error(err),
		)
		middleware.RecordProductOperation(op, resultError)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse(internalMsg))
	}
}

// queryInt parses an integer query parameter. Missing or malformed values
// read as 0, which the service replaces with its default. Out-of-range
// numbers saturate at the int bounds.
func queryInt(c *gin.Context, key string) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0
	}
	return n
}
