package grpc

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
)

type GrpcServer struct {
	core   *usecase.CoreUseCase
	logger *zap.Logger
}

func NewGrpcServer(core *usecase.CoreUseCase, logger *zap.Logger) *GrpcServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GrpcServer{
		core:   core,
		logger: logger,
	}
}

func (s *GrpcServer) GetBalance(ctx context.Context, req *GetBalanceRequest) (*GetBalanceResponse, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	if req.AccountID == "" {
		return nil, status.Error(codes.InvalidArgument, "accountId is required")
	}
	balance, err := s.core.GetBalance(ctx, actor, req.AccountID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &GetBalanceResponse{
		AccountID: req.AccountID,
		Balance:   domain.FormatMoney(balance),
	}, nil
}

func (s *GrpcServer) GetHistory(ctx context.Context, req *GetHistoryRequest) (*GetHistoryResponse, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	if req.AccountID == "" {
		return nil, status.Error(codes.InvalidArgument, "accountId is required")
	}
	txs, err := s.core.GetHistory(ctx, actor, req.AccountID, req.From, req.To)
	if err != nil {
		return nil, toStatus(err)
	}
	return &GetHistoryResponse{Transactions: toTransactions(txs)}, nil
}

func (s *GrpcServer) CreateWithdrawalRequest(ctx context.Context, req *CreateWithdrawalRequest) (*WithdrawalResponse, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	amount, err := domain.ParseMoney(req.Amount)
	if err != nil {
		return nil, toStatus(err)
	}
	task, err := s.core.CreateWithdrawalRequest(ctx, actor, req.AccountID, amount, req.Description)
	if err != nil {
		return nil, toStatus(err)
	}
	return &WithdrawalResponse{Task: toWithdrawalTask(task)}, nil
}

func (s *GrpcServer) CancelWithdrawal(ctx context.Context, req *WithdrawalTaskRequest) (*WithdrawalResponse, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	task, err := s.core.CancelWithdrawal(ctx, actor, req.TaskID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &WithdrawalResponse{Task: toWithdrawalTask(task)}, nil
}

func (s *GrpcServer) ApproveWithdrawal(ctx context.Context, req *WithdrawalTaskRequest) (*ApproveWithdrawalResponse, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	result, err := s.core.ApproveWithdrawal(ctx, actor, req.TaskID)
	if err != nil {
		return nil, toStatus(err)
	}
	return toApprovalResponse(result), nil
}

func (s *GrpcServer) RejectWithdrawal(ctx context.Context, req *RejectWithdrawalRequest) (*WithdrawalResponse, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	task, err := s.core.RejectWithdrawal(ctx, actor, req.TaskID, req.Reason)
	if err != nil {
		return nil, toStatus(err)
	}
	return &WithdrawalResponse{Task: toWithdrawalTask(task)}, nil
}

func (s *GrpcServer) ListWithdrawals(ctx context.Context, req *ListWithdrawalsRequest) (*ListWithdrawalsResponse, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	filter := domain.WithdrawalFilter{
		AccountID:       req.AccountID,
		IncludeArchived: req.IncludeArchived,
	}
	for _, raw := range req.Statuses {
		st, err := domain.ParseWithdrawalStatus(raw)
		if err != nil {
			return nil, toStatus(err)
		}
		filter.Statuses = append(filter.Statuses, st)
	}
	tasks, err := s.core.ListWithdrawals(ctx, actor, filter)
	if err != nil {
		return nil, toStatus(err)
	}
	out := make([]*WithdrawalTask, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, toWithdrawalTask(t))
	}
	return &ListWithdrawalsResponse{Tasks: out}, nil
}

func (s *GrpcServer) TriggerInterestAccrual(ctx context.Context, _ *TriggerInterestAccrualRequest) (*TriggerInterestAccrualResponse, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	result, err := s.core.TriggerInterestAccrual(ctx, actor)
	if err != nil {
		return nil, toStatus(err)
	}
	return toJobResponse(result), nil
}

func (s *GrpcServer) TriggerStatementGeneration(ctx context.Context, req *TriggerStatementGenerationRequest) (*TriggerStatementGenerationResponse, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	results, err := s.core.TriggerStatementGeneration(ctx, actor, domain.StatementRequest{
		Year:              req.Year,
		Month:             req.Month,
		AccountIdentifier: req.AccountIdentifier,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return &TriggerStatementGenerationResponse{Results: toStatementResults(results)}, nil
}

func (s *GrpcServer) QueryAuditLog(ctx context.Context, req *QueryAuditLogRequest) (*QueryAuditLogResponse, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := s.core.QueryAuditLog(ctx, actor, domain.AuditFilter{
		EventType:        domain.EventType(req.EventType),
		ActorID:          req.ActorID,
		SubjectAccountID: req.SubjectAccountID,
		StartDate:        req.StartDate,
		EndDate:          req.EndDate,
	}, req.Limit)
	if err != nil {
		return nil, toStatus(err)
	}
	return &QueryAuditLogResponse{Entries: entries}, nil
}

// LoggingInterceptor 每個呼叫記錄一行 (method、code、耗時)
func (s *GrpcServer) LoggingInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", code.String()),
			zap.Duration("elapsed", time.Since(start)),
		}
		switch code {
		case codes.OK:
			s.logger.Info("grpc call", fields...)
		case codes.Internal, codes.Unknown:
			s.logger.Error("grpc call", append(fields, zap.Error(err))...)
		default:
			s.logger.Warn("grpc call", append(fields, zap.Error(err))...)
		}
		return resp, err
	}
}

func actorFrom(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Actor{}, status.Error(codes.Unauthenticated, "caller identity missing")
	}
	return actor, nil
}

// toStatus 把 domain 錯誤對應到 gRPC status code
func toStatus(err error) error {
	code := codes.Internal
	switch {
	case errors.Is(err, domain.ErrValidation):
		code = codes.InvalidArgument
	case errors.Is(err, domain.ErrPermission):
		code = codes.PermissionDenied
	case errors.Is(err, domain.ErrConfiguration):
		code = codes.FailedPrecondition
	case errors.Is(err, domain.ErrInvalidStateTransition):
		code = codes.FailedPrecondition
	case errors.Is(err, domain.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, domain.ErrDuplicate):
		code = codes.AlreadyExists
	case errors.Is(err, domain.ErrLockHeld):
		code = codes.Aborted
	case errors.Is(err, domain.ErrIntegrity):
		code = codes.DataLoss
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	}
	return status.Error(code, err.Error())
}

var _ LedgerServiceServer = (*GrpcServer)(nil)
