// Package loyalty computes reward points, membership tiers and referral codes.
package loyalty

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	PointsPerUnit  = 10
	ReferralBonus  = 500
	referralPrefix = "GROCER"
)

type Tier string

const (
	TierBronze   Tier = "BRONZE"
	TierSilver   Tier = "SILVER"
	TierGold     Tier = "GOLD"
	TierPlatinum Tier = "PLATINUM"
)

type tierRule struct {
	tier     Tier
	min      int64
	discount int64
}

// tierRules is ordered from the highest threshold down.
var tierRules = []tierRule{
	{TierPlatinum, 10000, 15},
	{TierGold, 5000, 10},
	{TierSilver, 1000, 5},
	{TierBronze, 0, 0},
}

// Points is the reward for spending amount, floored to a whole point.
func Points(amount decimal.Decimal) int64 {
	if amount.IsNegative() {
		return 0
	}
	return amount.Mul(decimal.NewFromInt(PointsPerUnit)).Floor().IntPart()
}

func TierFor(points int64) Tier {
	for _, r := range tierRules {
		if points >= r.min {
			return r.tier
		}
	}
	return TierBronze
}

// DiscountPercent is the percentage discount a balance of points earns.
func DiscountPercent(points int64) int64 {
	tier := TierFor(points)
	for _, r := range tierRules {
		if r.tier == tier {
			return r.discount
		}
	}
	return 0
}

// Discount is the money off amount for a customer holding points, rounded
// to two decimal places.
func Discount(amount decimal.Decimal, points int64) decimal.Decimal {
	pct := decimal.NewFromInt(DiscountPercent(points))
	return amount.Mul(pct).Div(decimal.NewFromInt(100)).Round(2)
}

// Award is the outcome of crediting an order to a customer.
type Award struct {
	PointsEarned int64 `json:"pointsEarned"`
	TotalPoints  int64 `json:"totalPoints"`
	CurrentTier  Tier  `json:"currentTier"`
	TierChanged  bool  `json:"tierChanged"`
}

func Apply(previousPoints int64, previousTier Tier, amount decimal.Decimal) Award {
	earned := Points(amount)
	total := previousPoints + earned
	tier := TierFor(total)
	return Award{
		PointsEarned: earned,
		TotalPoints:  total,
		CurrentTier:  tier,
		TierChanged:  tier != previousTier,
	}
}

// ReferralCode builds a shareable code for userID. The user id is encoded so
// ParseReferralCode can recover it.
func ReferralCode(userID int64, now time.Time) string {
	userPart := strings.ToUpper(strconv.FormatInt(userID, 36))
	if len(userPart) < 6 {
		userPart = strings.Repeat("0", 6-len(userPart)) + userPart
	}
	stamp := strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36))
	return fmt.Sprintf("%s-%s-%s", referralPrefix, userPart, stamp)
}

func ParseReferralCode(code string) (int64, error) {
	parts := strings.Split(strings.TrimSpace(code), "-")
	if len(parts) != 3 || !strings.EqualFold(parts[0], referralPrefix) {
		return 0, fmt.Errorf("malformed referral code %q", code)
	}

	id, err := strconv.ParseInt(strings.ToLower(parts[1]), 36, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("malformed referral code %q", code)
	}

	return id, nil
}
