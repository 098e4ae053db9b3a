package memory

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
)

// ErrAuditQueueClosed 佇列已停止，不再接收寫入
var ErrAuditQueueClosed = errors.New("audit queue closed")

// auditRequest 稽核寫入請求，Result 讓 AppendAudit 可以等待結果
type auditRequest struct {
	Entry  *domain.AuditLogEntry
	Result chan error
}

// AuditQueue 把所有稽核寫入排進單一寫入者的輸送帶，其餘操作直接轉給底層 Store
//
// AppendAudit(等待) -> Channel -> Run Loop -> Store.AppendAudit -> Result Channel -> AppendAudit(收到結果)
type AuditQueue struct {
	usecase.Store
	requests    chan *auditRequest
	requestPool sync.Pool
	logger      *zap.Logger
	done        chan struct{}
}

// NewAuditQueue 建立佇列，必須呼叫 Start 之後才會處理寫入
//
// 參數:
//
//	store: 實際寫入的 Store
//	buffer: 輸送帶容量
//	logger: 記錄停止時無法寫入的紀錄
func NewAuditQueue(store usecase.Store, buffer int, logger *zap.Logger) *AuditQueue {
	if buffer <= 0 {
		buffer = 1000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditQueue{
		Store:    store,
		requests: make(chan *auditRequest, buffer),
		requestPool: sync.Pool{
			New: func() interface{} {
				return &auditRequest{Result: make(chan error, 1)}
			},
		},
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Start 啟動寫入迴圈 (非同步)，ctx 結束時處理完剩下的請求再停止
func (q *AuditQueue) Start(ctx context.Context) {
	go q.run(ctx)
}

// Done 寫入迴圈結束後關閉
func (q *AuditQueue) Done() <-chan struct{} {
	return q.done
}

// AppendAudit 排入輸送帶並等待寫入結果
func (q *AuditQueue) AppendAudit(ctx context.Context, entry *domain.AuditLogEntry) error {
	select {
	case <-q.done:
		return ErrAuditQueueClosed
	default:
	}
	req := q.requestPool.Get().(*auditRequest)
	req.Entry = entry
	select {
	case <-req.Result:
	default:
	}
	select {
	case q.requests <- req:
	case <-ctx.Done():
		q.requestPool.Put(req)
		return ctx.Err()
	case <-q.done:
		q.requestPool.Put(req)
		return ErrAuditQueueClosed
	}

	// 請求已在輸送帶上，只有收到結果後 req 才能放回 Pool
	select {
	case err := <-req.Result:
		q.requestPool.Put(req)
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-q.done:
		select {
		case err := <-req.Result:
			return err
		default:
			return ErrAuditQueueClosed
		}
	}
}

func (q *AuditQueue) run(ctx context.Context) {
	defer close(q.done)
	for {
		select {
		case <-ctx.Done():
			// 收到關閉信號，把剩下的請求處理完
			q.drain()
			return
		case req := <-q.requests:
			q.process(req)
		}
	}
}

func (q *AuditQueue) drain() {
	for {
		select {
		case req := <-q.requests:
			q.process(req)
		default:
			return
		}
	}
}

func (q *AuditQueue) process(req *auditRequest) {
	err := q.Store.AppendAudit(context.Background(), req.Entry)
	if err != nil {
		q.logger.Warn("audit append failed",
			zap.String("audit_id", req.Entry.ID),
			zap.String("event_type", string(req.Entry.EventType)),
			zap.Error(err),
		)
	}
	req.Result <- err
}

var _ usecase.Store = (*AuditQueue)(nil)
