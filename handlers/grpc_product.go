package handlers

import (
	"context"
	"errors"

	"catalog-svc/circuitbreaker"
	"catalog-svc/middleware"
	"catalog-svc/models"
	"catalog-svc/rpc"
	"catalog-svc/service"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// CatalogServer serves the read side of the catalog over gRPC.
type CatalogServer struct {
	service ProductService
	logger  *zap.Logger
}

var _ rpc.CatalogServer = (*CatalogServer)(nil)

func NewCatalogServer(svc ProductService, logger *zap.Logger) *CatalogServer {
	return &CatalogServer{service: svc, logger: logger}
}

func (s *CatalogServer) GetProduct(ctx context.Context, req *rpc.GetProductRequest) (*models.Product, error) {
	ctx, span := otel.Tracer("catalog-service").Start(ctx, "GetProduct_gRPC")
	defer span.End()
	span.SetAttributes(attribute.Int("product.id", req.ID))

	p, err := s.service.Get(ctx, req.ID)
	if err != nil {
		span.RecordError(err)
		return nil, s.toStatus(ctx, operationGet, err)
	}
	middleware.RecordProductOperation(operationGet, resultSuccess)
	return p, nil
}

func (s *CatalogServer) ListProducts(ctx context.Context, req *rpc.ListProductsRequest) (*rpc.ListProductsResponse, error) {
	ctx, span := otel.Tracer("catalog-service").Start(ctx, "ListProducts_gRPC")
	defer span.End()

	page, err := s.service.List(ctx, models.ListQuery{
		Search:    req.Search,
		Page:      req.Page,
		Limit:     req.Limit,
		SortBy:    req.SortBy,
		SortOrder: req.SortOrder,
	})
	if err != nil {
		span.RecordError(err)
		return nil, s.toStatus(ctx, operationList, err)
	}

	span.SetAttributes(attribute.Int("products.count", len(page.Products)))
	middleware.RecordProductOperation(operationList, resultSuccess)
	return &rpc.ListProductsResponse{
		Products:   page.Products,
		Pagination: page.Pagination,
	}, nil
}

func (s *CatalogServer) toStatus(ctx context.Context, op string, err error) error {
	var validationErr *service.ValidationError
	switch {
	case errors.As(err, &validationErr):
		middleware.RecordProductOperation(op, resultInvalid)
		return status.Error(codes.InvalidArgument, validationErr.Message)
	case errors.Is(err, service.ErrNotFound):
		middleware.RecordProductOperation(op, resultNotFound)
		return status.Error(codes.NotFound, msgNotFound)
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		middleware.RecordProductOperation(op, resultUnavailable)
		return status.Error(codes.Unavailable, msgUnavailable)
	default:
		s.logger.Error("gRPC request failed",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.String("operation", op),
			zap.Error(err),
		)
		middleware.RecordProductOperation(op, resultError)
		return status.Error(codes.Internal, "Internal server error")
	}
}
