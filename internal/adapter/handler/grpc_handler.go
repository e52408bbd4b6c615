package handler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/stock-manager/internal/core/domain"
	"github.com/rl1809/stock-manager/internal/core/service"
	"github.com/rl1809/stock-manager/internal/core/stable"
)

type GRPCHandler struct {
	ledger *service.Ledger
}

var _ LedgerServer = (*GRPCHandler)(nil)

func NewGRPCHandler(ledger *service.Ledger) *GRPCHandler {
	return &GRPCHandler{ledger: ledger}
}

func toStatus(err error) error {
	var nf *domain.NotFoundError
	switch {
	case errors.As(err, &nf):
		return status.Error(codes.NotFound, nf.Msg)
	case errors.Is(err, stable.ErrRecordTooLarge),
		errors.Is(err, stable.ErrUnreadableRecord),
		errors.Is(err, domain.ErrInvalidTransactionType):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

func reply[T any](v T, err error) (*T, error) {
	if err != nil {
		return nil, toStatus(err)
	}
	return &v, nil
}

func (h *GRPCHandler) GetItems(ctx context.Context, _ *Empty) (*ItemList, error) {
	items, err := h.ledger.GetItems()
	return reply(ItemList{Items: items}, err)
}

func (h *GRPCHandler) GetItemByID(ctx context.Context, req *IDRequest) (*domain.Item, error) {
	return reply(h.ledger.GetItemByID(req.ID))
}

func (h *GRPCHandler) AddItem(ctx context.Context, req *domain.ItemPayload) (*domain.Item, error) {
	return reply(h.ledger.AddItem(*req))
}

func (h *GRPCHandler) UpdateItem(ctx context.Context, req *UpdateItemRequest) (*domain.Item, error) {
	return reply(h.ledger.UpdateItem(req.ID, req.ItemPayload))
}

func (h *GRPCHandler) DeleteItem(ctx context.Context, req *IDRequest) (*Empty, error) {
	return reply(Empty{}, h.ledger.DeleteItem(req.ID))
}

func (h *GRPCHandler) GetStock(ctx context.Context, _ *Empty) (*StockList, error) {
	stock, err := h.ledger.GetStock()
	return reply(StockList{Stock: stock}, err)
}

func (h *GRPCHandler) GetStockByID(ctx context.Context, req *IDRequest) (*domain.Stock, error) {
	return reply(h.ledger.GetStockByID(req.ID))
}

func (h *GRPCHandler) AddStock(ctx context.Context, req *domain.StockPayload) (*domain.Stock, error) {
	return reply(h.ledger.AddStock(*req))
}

func (h *GRPCHandler) UpdateStock(ctx context.Context, req *UpdateStockRequest) (*domain.Stock, error) {
	return reply(h.ledger.UpdateStock(req.ID, req.StockPayload))
}

func (h *GRPCHandler) DeleteStock(ctx context.Context, req *IDRequest) (*Empty, error) {
	return reply(Empty{}, h.ledger.DeleteStock(req.ID))
}

func (h *GRPCHandler) GetTransactions(ctx context.Context, _ *Empty) (*TransactionList, error) {
	txs, err := h.ledger.GetTransactions()
	return reply(TransactionList{Transactions: txs}, err)
}

func (h *GRPCHandler) AddTransaction(ctx context.Context, req *domain.TransactionPayload) (*domain.Transaction, error) {
	if err := req.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return reply(h.ledger.AddTransaction(*req))
}

func (h *GRPCHandler) UpdateTransaction(ctx context.Context, req *UpdateTransactionRequest) (*domain.Transaction, error) {
	if err := req.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return reply(h.ledger.UpdateTransaction(req.ID, req.TransactionPayload))
}

func (h *GRPCHandler) DeleteTransaction(ctx context.Context, req *IDRequest) (*Empty, error) {
	return reply(Empty{}, h.ledger.DeleteTransaction(req.ID))
}

// LoggingInterceptor logs every unary call with its status code and latency.
func LoggingInterceptor(log *zap.SugaredLogger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		code := status.Code(err)
		if code == codes.Internal {
			log.Errorw("grpc call failed", "method", info.FullMethod, "duration", time.Since(start), "error", err)
		} else {
			log.Debugw("grpc call", "method", info.FullMethod, "code", code.String(), "duration", time.Since(start))
		}
		return resp, err
	}
}
