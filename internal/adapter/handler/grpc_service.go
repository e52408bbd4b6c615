package handler

import (
	"context"

	"google.golang.org/grpc"

	"github.com/rl1809/stock-manager/internal/core/domain"
)

const LedgerServiceName = "stockmanager.v1.Ledger"

type Empty struct{}

type IDRequest struct {
	ID uint64 `json:"id"`
}

type UpdateItemRequest struct {
	ID uint64 `json:"id"`
	domain.ItemPayload
}

type UpdateStockRequest struct {
	ID uint64 `json:"id"`
	domain.StockPayload
}

type UpdateTransactionRequest struct {
	ID uint64 `json:"id"`
	domain.TransactionPayload
}

type ItemList struct {
	Items []domain.Item `json:"items"`
}

type StockList struct {
	Stock []domain.Stock `json:"stock"`
}

type TransactionList struct {
	Transactions []domain.Transaction `json:"transactions"`
}

// LedgerServer is the server API for the Ledger service.
type LedgerServer interface {
	GetItems(context.Context, *Empty) (*ItemList, error)
	GetItemByID(context.Context, *IDRequest) (*domain.Item, error)
	AddItem(context.Context, *domain.ItemPayload) (*domain.Item, error)
	UpdateItem(context.Context, *UpdateItemRequest) (*domain.Item, error)
	DeleteItem(context.Context, *IDRequest) (*Empty, error)

	GetStock(context.Context, *Empty) (*StockList, error)
	GetStockByID(context.Context, *IDRequest) (*domain.Stock, error)
	AddStock(context.Context, *domain.StockPayload) (*domain.Stock, error)
	UpdateStock(context.Context, *UpdateStockRequest) (*domain.Stock, error)
	DeleteStock(context.Context, *IDRequest) (*Empty, error)

	GetTransactions(context.Context, *Empty) (*TransactionList, error)
	AddTransaction(context.Context, *domain.TransactionPayload) (*domain.Transaction, error)
	UpdateTransaction(context.Context, *UpdateTransactionRequest) (*domain.Transaction, error)
	DeleteTransaction(context.Context, *IDRequest) (*Empty, error)
}

func unaryMethod[Req, Resp any](name string, call func(LedgerServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(LedgerServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + LedgerServiceName + "/" + name,
			}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(LedgerServer), ctx, req.(*Req))
			})
		},
	}
}

var ledgerServiceDesc = grpc.ServiceDesc{
	ServiceName: LedgerServiceName,
	HandlerType: (*LedgerServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("GetItems", LedgerServer.GetItems),
		unaryMethod("GetItemByID", LedgerServer.GetItemByID),
		unaryMethod("AddItem", LedgerServer.AddItem),
		unaryMethod("UpdateItem", LedgerServer.UpdateItem),
		unaryMethod("DeleteItem", LedgerServer.DeleteItem),
		unaryMethod("GetStock", LedgerServer.GetStock),
		unaryMethod("GetStockByID", LedgerServer.GetStockByID),
		unaryMethod("AddStock", LedgerServer.AddStock),
		unaryMethod("UpdateStock", LedgerServer.UpdateStock),
		unaryMethod("DeleteStock", LedgerServer.DeleteStock),
		unaryMethod("GetTransactions", LedgerServer.GetTransactions),
		unaryMethod("AddTransaction", LedgerServer.AddTransaction),
		unaryMethod("UpdateTransaction", LedgerServer.UpdateTransaction),
		unaryMethod("DeleteTransaction", LedgerServer.DeleteTransaction),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "stockmanager/v1/ledger.proto",
}

func RegisterLedgerServer(s grpc.ServiceRegistrar, srv LedgerServer) {
	s.RegisterService(&ledgerServiceDesc, srv)
}

// LedgerClient calls the Ledger service with the JSON codec.
type LedgerClient struct {
	cc grpc.ClientConnInterface
}

func NewLedgerClient(cc grpc.ClientConnInterface) *LedgerClient {
	return &LedgerClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(JSONCodecName)}, opts...)
	if err := cc.Invoke(ctx, "/"+LedgerServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LedgerClient) GetItems(ctx context.Context, opts ...grpc.CallOption) (*ItemList, error) {
	return invoke[ItemList](ctx, c.cc, "GetItems", &Empty{}, opts)
}

func (c *LedgerClient) GetItemByID(ctx context.Context, id uint64, opts ...grpc.CallOption) (*domain.Item, error) {
	return invoke[domain.Item](ctx, c.cc, "GetItemByID", &IDRequest{ID: id}, opts)
}

func (c *LedgerClient) AddItem(ctx context.Context, p domain.ItemPayload, opts ...grpc.CallOption) (*domain.Item, error) {
	return invoke[domain.Item](ctx, c.cc, "AddItem", &p, opts)
}

func (c *LedgerClient) UpdateItem(ctx context.Context, id uint64, p domain.ItemPayload, opts ...grpc.CallOption) (*domain.Item, error) {
	return invoke[domain.Item](ctx, c.cc, "UpdateItem", &UpdateItemRequest{ID: id, ItemPayload: p}, opts)
}

func (c *LedgerClient) DeleteItem(ctx context.Context, id uint64, opts ...grpc.CallOption) error {
	_, err := invoke[Empty](ctx, c.cc, "DeleteItem", &IDRequest{ID: id}, opts)
	return err
}

func (c *LedgerClient) GetStock(ctx context.Context, opts ...grpc.CallOption) (*StockList, error) {
	return invoke[StockList](ctx, c.cc, "GetStock", &Empty{}, opts)
}

func (c *LedgerClient) GetStockByID(ctx context.Context, id uint64, opts ...grpc.CallOption) (*domain.Stock, error) {
	return invoke[domain.Stock](ctx, c.cc, "GetStockByID", &IDRequest{ID: id}, opts)
}

func (c *LedgerClient) AddStock(ctx context.Context, p domain.StockPayload, opts ...grpc.CallOption) (*domain.Stock, error) {
	return invoke[domain.Stock](ctx, c.cc, "AddStock", &p, opts)
}

func (c *LedgerClient) UpdateStock(ctx context.Context, id uint64, p domain.StockPayload, opts ...grpc.CallOption) (*domain.Stock, error) {
	return invoke[domain.Stock](ctx, c.cc, "UpdateStock", &UpdateStockRequest{ID: id, StockPayload: p}, opts)
}

func (c *LedgerClient) DeleteStock(ctx context.Context, id uint64, opts ...grpc.CallOption) error {
	_, err := invoke[Empty](ctx, c.cc, "DeleteStock", &IDRequest{ID: id}, opts)
	return err
}

func (c *LedgerClient) GetTransactions(ctx context.Context, opts ...grpc.CallOption) (*TransactionList, error) {
	return invoke[TransactionList](ctx, c.cc, "GetTransactions", &Empty{}, opts)
}

func (c *LedgerClient) AddTransaction(ctx context.Context, p domain.TransactionPayload, opts ...grpc.CallOption) (*domain.Transaction, error) {
	return invoke[domain.Transaction](ctx, c.cc, "AddTransaction", &p, opts)
}

func (c *LedgerClient) UpdateTransaction(ctx context.Context, id uint64, p domain.TransactionPayload, opts ...grpc.CallOption) (*domain.Transaction, error) {
	return invoke[domain.Transaction](ctx, c.cc, "UpdateTransaction",
		&UpdateTransactionRequest{ID: id, TransactionPayload: p}, opts)
}

func (c *LedgerClient) DeleteTransaction(ctx context.Context, id uint64, opts ...grpc.CallOption) error {
	_, err := invoke[Empty](ctx, c.cc, "DeleteTransaction", &IDRequest{ID: id}, opts)
	return err
}
