package grpc

import (
	"context"

	"google.golang.org/grpc"
)

// Client 型別化的 LedgerService 客戶端，所有呼叫都使用 JSON codec
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, req any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetBalance(ctx context.Context, req *GetBalanceRequest, opts ...grpc.CallOption) (*GetBalanceResponse, error) {
	return invoke[GetBalanceResponse](ctx, c.cc, MethodGetBalance, req, opts)
}

func (c *Client) GetHistory(ctx context.Context, req *GetHistoryRequest, opts ...grpc.CallOption) (*GetHistoryResponse, error) {
	return invoke[GetHistoryResponse](ctx, c.cc, MethodGetHistory, req, opts)
}

func (c *Client) CreateWithdrawalRequest(ctx context.Context, req *CreateWithdrawalRequest, opts ...grpc.CallOption) (*WithdrawalResponse, error) {
	return invoke[WithdrawalResponse](ctx, c.cc, MethodCreateWithdrawalRequest, req, opts)
}

func (c *Client) CancelWithdrawal(ctx context.Context, req *WithdrawalTaskRequest, opts ...grpc.CallOption) (*WithdrawalResponse, error) {
	return invoke[WithdrawalResponse](ctx, c.cc, MethodCancelWithdrawal, req, opts)
}

func (c *Client) ApproveWithdrawal(ctx context.Context, req *WithdrawalTaskRequest, opts ...grpc.CallOption) (*ApproveWithdrawalResponse, error) {
	return invoke[ApproveWithdrawalResponse](ctx, c.cc, MethodApproveWithdrawal, req, opts)
}

func (c *Client) RejectWithdrawal(ctx context.Context, req *RejectWithdrawalRequest, opts ...grpc.CallOption) (*WithdrawalResponse, error) {
	return invoke[WithdrawalResponse](ctx, c.cc, MethodRejectWithdrawal, req, opts)
}

func (c *Client) ListWithdrawals(ctx context.Context, req *ListWithdrawalsRequest, opts ...grpc.CallOption) (*ListWithdrawalsResponse, error) {
	return invoke[ListWithdrawalsResponse](ctx, c.cc, MethodListWithdrawals, req, opts)
}

func (c *Client) TriggerInterestAccrual(ctx context.Context, req *TriggerInterestAccrualRequest, opts ...grpc.CallOption) (*TriggerInterestAccrualResponse, error) {
	return invoke[TriggerInterestAccrualResponse](ctx, c.cc, MethodTriggerInterestAccrual, req, opts)
}

func (c *Client) TriggerStatementGeneration(ctx context.Context, req *TriggerStatementGenerationRequest, opts ...grpc.CallOption) (*TriggerStatementGenerationResponse, error) {
	return invoke[TriggerStatementGenerationResponse](ctx, c.cc, MethodTriggerStatementGeneration, req, opts)
}

func (c *Client) QueryAuditLog(ctx context.Context, req *QueryAuditLogRequest, opts ...grpc.CallOption) (*QueryAuditLogResponse, error) {
	return invoke[QueryAuditLogResponse](ctx, c.cc, MethodQueryAuditLog, req, opts)
}
