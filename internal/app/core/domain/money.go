package domain

import "github.com/shopspring/decimal"

// MoneyScale 金額固定小數位數
const MoneyScale int32 = 2

// MinimumCredit 可入帳的最小金額 0.01
var MinimumCredit = decimal.New(1, -MoneyScale)

// RoundMoney 四捨五入到小數點後 2 位 (round-half-up)。
// decimal.Round 對正數即為 half-up，負數則遠離零，只用於計算衍生金額 (例如利息)，不對原始金額使用。
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyScale)
}

// ParseMoney 解析字串金額，小數位數超過 2 位視為不合法
func ParseMoney(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, validationf("invalid amount %q", s)
	}
	if d.Exponent() < -MoneyScale && !d.Equal(d.Truncate(MoneyScale)) {
		return decimal.Zero, validationf("amount %q has more than %d decimal places", s, MoneyScale)
	}
	return d, nil
}

// FormatMoney 以固定 2 位小數輸出
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(MoneyScale)
}
