package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	grpc_adapter "github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/in/grpc"
	grpcpool "github.com/JoeShih716/go-bank-ledger/pkg/grpc"
)

const usage = `usage: admin [flags] <command> [args]

commands:
  interest                          執行本月利息批次
  statements [year month [account]] 產生對帳資料 (預設上個月、所有帳戶)
  audit [event_type]                查詢最近的稽核紀錄
  withdrawals [status...]           列出提款任務
  approve <taskId>                  核准提款
  reject <taskId> <reason>          拒絕提款
  balance <accountId>               查詢餘額
`

func main() {
	addr := flag.String("addr", "localhost:50051", "ledger gRPC address")
	token := flag.String("token", os.Getenv("BANK_ADMIN_TOKEN"), "bearer token; minted from -secret when empty")
	secret := flag.String("secret", os.Getenv("BANK_AUTH_SECRET"), "HS256 secret used to mint an admin token")
	identity := flag.String("identity", "user:admin", "identity recorded in the audit trail")
	timeout := flag.Duration("timeout", 5*time.Minute, "call timeout")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	bearer := *token
	if bearer == "" {
		auth, err := grpc_adapter.NewAuthenticator(grpc_adapter.AuthConfig{Secret: *secret, Issuer: "go-bank-ledger"})
		if err != nil {
			log.Fatalf("need -token or -secret: %v", err)
		}
		if bearer, err = auth.Issue(*identity, "", true); err != nil {
			log.Fatalf("failed to mint token: %v", err)
		}
	}

	pool := grpcpool.NewPool(grpcpool.WithInterceptor(grpc_adapter.BearerToken(bearer)))
	defer pool.Close()
	conn, err := pool.GetConnection(*addr)
	if err != nil {
		log.Fatalf("did not connect: %v", err)
	}
	client := grpc_adapter.NewClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	out, err := run(ctx, client, flag.Arg(0), flag.Args()[1:])
	if err != nil {
		log.Fatalf("%s failed: %v", flag.Arg(0), err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatalf("encode result: %v", err)
	}
}

func run(ctx context.Context, c *grpc_adapter.Client, cmd string, args []string) (any, error) {
	switch cmd {
	case "interest":
		return c.TriggerInterestAccrual(ctx, &grpc_adapter.TriggerInterestAccrualRequest{})
	case "statements":
		req := &grpc_adapter.TriggerStatementGenerationRequest{}
		if len(args) >= 2 {
			if _, err := fmt.Sscanf(args[0]+" "+args[1], "%d %d", &req.Year, &req.Month); err != nil {
				return nil, fmt.Errorf("year month: %w", err)
			}
		}
		if len(args) >= 3 {
			req.AccountIdentifier = args[2]
		}
		return c.TriggerStatementGeneration(ctx, req)
	case "audit":
		req := &grpc_adapter.QueryAuditLogRequest{}
		if len(args) > 0 {
			req.EventType = args[0]
		}
		return c.QueryAuditLog(ctx, req)
	case "withdrawals":
		return c.ListWithdrawals(ctx, &grpc_adapter.ListWithdrawalsRequest{Statuses: args})
	case "approve":
		if len(args) != 1 {
			return nil, fmt.Errorf("approve <taskId>")
		}
		return c.ApproveWithdrawal(ctx, &grpc_adapter.WithdrawalTaskRequest{TaskID: args[0]})
	case "reject":
		if len(args) < 2 {
			return nil, fmt.Errorf("reject <taskId> <reason>")
		}
		return c.RejectWithdrawal(ctx, &grpc_adapter.RejectWithdrawalRequest{TaskID: args[0], Reason: strings.Join(args[1:], " ")})
	case "balance":
		if len(args) != 1 {
			return nil, fmt.Errorf("balance <accountId>")
		}
		return c.GetBalance(ctx, &grpc_adapter.GetBalanceRequest{AccountID: args[0]})
	}
	return nil, fmt.Errorf("unknown command %q", cmd)
}
