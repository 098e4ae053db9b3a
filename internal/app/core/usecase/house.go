package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
)

// HouseResolver 找出接收鏡像存款的 House 帳戶
type HouseResolver struct {
	store Store
}

func NewHouseResolver(store Store) *HouseResolver {
	return &HouseResolver{store: store}
}

// Resolve 優先使用 SystemConfig.HouseAccountID；未設定時要求恰好一個管理員帳戶。
// 找不到或有多個候選時回傳 ErrConfiguration，不會任意挑選。
func (h *HouseResolver) Resolve(ctx context.Context) (*domain.Account, error) {
	cfg, err := h.store.GetSystemConfig(ctx)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("load system config: %w", err)
	}
	if cfg != nil && cfg.HouseAccountID != "" {
		account, err := h.store.GetAccount(ctx, cfg.HouseAccountID)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: house account %s does not exist", domain.ErrConfiguration, cfg.HouseAccountID)
		}
		if err != nil {
			return nil, fmt.Errorf("load house account: %w", err)
		}
		return account, nil
	}

	accounts, err := h.store.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	var candidates []*domain.Account
	for _, a := range accounts {
		if a.IsAdministrator {
			candidates = append(candidates, a)
		}
	}
	switch len(candidates) {
	case 0:
		return nil, fmt.Errorf("%w: no administrator account to act as house account", domain.ErrConfiguration)
	case 1:
		return candidates[0], nil
	default:
		return nil, fmt.Errorf("%w: %d administrator accounts found, set houseAccountId explicitly", domain.ErrConfiguration, len(candidates))
	}
}
