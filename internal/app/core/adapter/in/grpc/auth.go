package grpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
)

// ErrInvalidToken token 無法驗證
var ErrInvalidToken = errors.New("invalid token")

const (
	authorizationHeader = "authorization"
	requestIDHeader     = "x-request-id"
	userAgentHeader     = "user-agent"
	bearerPrefix        = "bearer "
)

// Claims 由外部認證服務簽發的身分
//
//	sub: 呼叫者識別 (稽核紀錄的 actor)
//	account_id: 呼叫者擁有的帳戶，管理員可以沒有
//	adm: 是否為管理員
type Claims struct {
	AccountID string `json:"account_id,omitempty"`
	Admin     bool   `json:"adm"`
	jwt.RegisteredClaims
}

// AuthConfig JWT 設定 (HS256)
type AuthConfig struct {
	Secret   string        `yaml:"secret"`
	Issuer   string        `yaml:"issuer"`
	Audience string        `yaml:"audience"`
	TokenTTL time.Duration `yaml:"token_ttl"`
}

// Authenticator 驗證 bearer token 並轉成 domain.Actor
type Authenticator struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

func NewAuthenticator(cfg AuthConfig) (*Authenticator, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("%w: auth secret is required", domain.ErrConfiguration)
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Authenticator{
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		ttl:      ttl,
		now:      time.Now,
	}, nil
}

// Issue 簽發 token (admin CLI 與測試使用)
func (a *Authenticator) Issue(identity, accountID string, admin bool) (string, error) {
	now := a.now()
	claims := &Claims{
		AccountID: accountID,
		Admin:     admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	if a.audience != "" {
		claims.Audience = jwt.ClaimStrings{a.audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Verify 驗證簽章、期限、issuer 與 audience
func (a *Authenticator) Verify(tokenStr string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	if a.audience != "" {
		opts = append(opts, jwt.WithAudience(a.audience))
	}
	claims := new(Claims)
	token, err := jwt.NewParser(opts...).ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// UnaryInterceptor 每個呼叫都必須帶 authorization: Bearer <token>
func (a *Authenticator) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		raw := first(md, authorizationHeader)
		if len(raw) < len(bearerPrefix) || !strings.EqualFold(raw[:len(bearerPrefix)], bearerPrefix) {
			return nil, status.Error(codes.Unauthenticated, "missing bearer token")
		}
		claims, err := a.Verify(strings.TrimSpace(raw[len(bearerPrefix):]))
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}

		actor := domain.Actor{
			Identity:  claims.Subject,
			AccountID: claims.AccountID,
			IsAdmin:   claims.Admin,
			Client: domain.ClientContext{
				UserAgent: first(md, userAgentHeader),
				RequestID: first(md, requestIDHeader),
			},
		}
		if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
			actor.Client.IP = hostOnly(p.Addr.String())
		}
		return handler(WithActor(ctx, actor), req)
	}
}

type actorKey struct{}

// WithActor 把呼叫者放進 context
func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext 取出呼叫者，沒有時 ok=false
func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(domain.Actor)
	return actor, ok
}

// BearerToken 客戶端攔截器，為每個呼叫加上 token
func BearerToken(token string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, authorizationHeader, "Bearer "+token)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

func first(md metadata.MD, key string) string {
	if vals := md.Get(key); len(vals) > 0 {
		return vals[0]
	}
	return ""
}

func hostOnly(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
