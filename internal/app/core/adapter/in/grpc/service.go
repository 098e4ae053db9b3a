package grpc

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName 完整的 gRPC service 名稱
const ServiceName = "bankledger.v1.LedgerService"

const (
	MethodGetBalance                 = "/" + ServiceName + "/GetBalance"
	MethodGetHistory                 = "/" + ServiceName + "/GetHistory"
	MethodCreateWithdrawalRequest    = "/" + ServiceName + "/CreateWithdrawalRequest"
	MethodCancelWithdrawal           = "/" + ServiceName + "/CancelWithdrawal"
	MethodApproveWithdrawal          = "/" + ServiceName + "/ApproveWithdrawal"
	MethodRejectWithdrawal           = "/" + ServiceName + "/RejectWithdrawal"
	MethodListWithdrawals            = "/" + ServiceName + "/ListWithdrawals"
	MethodTriggerInterestAccrual     = "/" + ServiceName + "/TriggerInterestAccrual"
	MethodTriggerStatementGeneration = "/" + ServiceName + "/TriggerStatementGeneration"
	MethodQueryAuditLog              = "/" + ServiceName + "/QueryAuditLog"
)

// LedgerServiceServer 服務端介面
type LedgerServiceServer interface {
	GetBalance(context.Context, *GetBalanceRequest) (*GetBalanceResponse, error)
	GetHistory(context.Context, *GetHistoryRequest) (*GetHistoryResponse, error)
	CreateWithdrawalRequest(context.Context, *CreateWithdrawalRequest) (*WithdrawalResponse, error)
	CancelWithdrawal(context.Context, *WithdrawalTaskRequest) (*WithdrawalResponse, error)
	ApproveWithdrawal(context.Context, *WithdrawalTaskRequest) (*ApproveWithdrawalResponse, error)
	RejectWithdrawal(context.Context, *RejectWithdrawalRequest) (*WithdrawalResponse, error)
	ListWithdrawals(context.Context, *ListWithdrawalsRequest) (*ListWithdrawalsResponse, error)
	TriggerInterestAccrual(context.Context, *TriggerInterestAccrualRequest) (*TriggerInterestAccrualResponse, error)
	TriggerStatementGeneration(context.Context, *TriggerStatementGenerationRequest) (*TriggerStatementGenerationResponse, error)
	QueryAuditLog(context.Context, *QueryAuditLogRequest) (*QueryAuditLogResponse, error)
}

// unaryHandler 把型別化的方法包成 grpc.MethodHandler (解碼、套用 interceptor)
func unaryHandler[Req any](fullMethod string, call func(LedgerServiceServer, context.Context, *Req) (any, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(LedgerServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(LedgerServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// LedgerServiceDesc 手動宣告的 service descriptor
var LedgerServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LedgerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetBalance",
			Handler: unaryHandler(MethodGetBalance, func(s LedgerServiceServer, ctx context.Context, req *GetBalanceRequest) (any, error) {
				return s.GetBalance(ctx, req)
			}),
		},
		{
			MethodName: "GetHistory",
			Handler: unaryHandler(MethodGetHistory, func(s LedgerServiceServer, ctx context.Context, req *GetHistoryRequest) (any, error) {
				return s.GetHistory(ctx, req)
			}),
		},
		{
			MethodName: "CreateWithdrawalRequest",
			Handler: unaryHandler(MethodCreateWithdrawalRequest, func(s LedgerServiceServer, ctx context.Context, req *CreateWithdrawalRequest) (any, error) {
				return s.CreateWithdrawalRequest(ctx, req)
			}),
		},
		{
			MethodName: "CancelWithdrawal",
			Handler: unaryHandler(MethodCancelWithdrawal, func(s LedgerServiceServer, ctx context.Context, req *WithdrawalTaskRequest) (any, error) {
				return s.CancelWithdrawal(ctx, req)
			}),
		},
		{
			MethodName: "ApproveWithdrawal",
			Handler: unaryHandler(MethodApproveWithdrawal, func(s LedgerServiceServer, ctx context.Context, req *WithdrawalTaskRequest) (any, error) {
				return s.ApproveWithdrawal(ctx, req)
			}),
		},
		{
			MethodName: "RejectWithdrawal",
			Handler: unaryHandler(MethodRejectWithdrawal, func(s LedgerServiceServer, ctx context.Context, req *RejectWithdrawalRequest) (any, error) {
				return s.RejectWithdrawal(ctx, req)
			}),
		},
		{
			MethodName: "ListWithdrawals",
			Handler: unaryHandler(MethodListWithdrawals, func(s LedgerServiceServer, ctx context.Context, req *ListWithdrawalsRequest) (any, error) {
				return s.ListWithdrawals(ctx, req)
			}),
		},
		{
			MethodName: "TriggerInterestAccrual",
			Handler: unaryHandler(MethodTriggerInterestAccrual, func(s LedgerServiceServer, ctx context.Context, req *TriggerInterestAccrualRequest) (any, error) {
				return s.TriggerInterestAccrual(ctx, req)
			}),
		},
		{
			MethodName: "TriggerStatementGeneration",
			Handler: unaryHandler(MethodTriggerStatementGeneration, func(s LedgerServiceServer, ctx context.Context, req *TriggerStatementGenerationRequest) (any, error) {
				return s.TriggerStatementGeneration(ctx, req)
			}),
		},
		{
			MethodName: "QueryAuditLog",
			Handler: unaryHandler(MethodQueryAuditLog, func(s LedgerServiceServer, ctx context.Context, req *QueryAuditLogRequest) (any, error) {
				return s.QueryAuditLog(ctx, req)
			}),
		},
	},
	Streams: []grpc.StreamDesc{},
}

// RegisterLedgerServiceServer 註冊到 grpc.Server
func RegisterLedgerServiceServer(s grpc.ServiceRegistrar, srv LedgerServiceServer) {
	s.RegisterService(&LedgerServiceDesc, srv)
}
