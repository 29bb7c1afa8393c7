package rpc

import (
	"context"

	"catalog-svc/models"

	"google.golang.org/grpc"
)

const (
	ServiceName = "catalog.ProductCatalog"

	getProductMethod   = "/catalog.ProductCatalog/GetProduct"
	listProductsMethod = "/catalog.ProductCatalog/ListProducts"
)

type GetProductRequest struct {
	ID int `json:"id"`
}

type ListProductsRequest struct {
	Search    string `json:"search,omitempty"`
	Page      int    `json:"page,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	SortBy    string `json:"sortBy,omitempty"`
	SortOrder string `json:"sortOrder,omitempty"`
}

type ListProductsResponse struct {
	Products   []models.Product  `json:"products"`
	Pagination models.Pagination `json:"pagination"`
}

// CatalogServer is the read side of the catalog exposed over gRPC.
type CatalogServer interface {
	GetProduct(ctx context.Context, req *GetProductRequest) (*models.Product, error)
	ListProducts(ctx context.Context, req *ListProductsRequest) (*ListProductsResponse, error)
}

func RegisterCatalogServer(s grpc.ServiceRegistrar, srv CatalogServer) {
	s.RegisterService(&catalogServiceDesc, srv)
}

var catalogServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CatalogServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetProduct", Handler: getProductHandler},
		{MethodName: "ListProducts", Handler: listProductsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "catalog.proto",
}

func getProductHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetProductRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CatalogServer).GetProduct(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getProductMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CatalogServer).GetProduct(ctx, req.(*GetProductRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func listProductsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ListProductsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CatalogServer).ListProducts(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: listProductsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CatalogServer).ListProducts(ctx, req.(*ListProductsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// CatalogClient calls a remote CatalogServer. Every call is sent with the
// JSON content-subtype.
type CatalogClient struct {
	cc grpc.ClientConnInterface
}

func NewCatalogClient(cc grpc.ClientConnInterface) *CatalogClient {
	return &CatalogClient{cc: cc}
}

func (c *CatalogClient) GetProduct(ctx context.Context, req *GetProductRequest, opts ...grpc.CallOption) (*models.Product, error) {
	out := new(models.Product)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, getProductMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CatalogClient) ListProducts(ctx context.Context, req *ListProductsRequest, opts ...grpc.CallOption) (*ListProductsResponse, error) {
	out := new(ListProductsResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, listProductsMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
