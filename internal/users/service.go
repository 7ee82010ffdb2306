// Package users registers customers and builds their loyalty profile.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/safar/go-grocery-store/internal/database"
	"github.com/safar/go-grocery-store/internal/loyalty"
	"github.com/safar/go-grocery-store/internal/models"
	"github.com/safar/go-grocery-store/internal/store"
	"github.com/sirupsen/logrus"
)

var ErrInvalidReferral = errors.New("invalid referral code")

type RegisterRequest struct {
	Email        string
	Name         string
	ReferralCode string
}

type Profile struct {
	*models.User
	DiscountPercent int64  `json:"discountPercent"`
	ReferralCode    string `json:"referralCode"`
}

type Service struct {
	db  *sql.DB
	log logrus.FieldLogger
	now func() time.Time
}

func NewService(db *sql.DB, log logrus.FieldLogger) *Service {
	return &Service{db: db, log: log, now: time.Now}
}

// Register creates a customer. A referral code credits the referrer with the
// referral bonus in the same transaction; an unknown referrer fails the
// registration.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*models.User, error) {
	var referrerID *int64
	if code := strings.TrimSpace(req.ReferralCode); code != "" {
		id, err := loyalty.ParseReferralCode(code)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidReferral, err)
		}
		referrerID = &id
	}

	var user *models.User
	err := database.WithTransaction(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		if referrerID != nil {
			balance, err := store.AwardLoyaltyPoints(ctx, tx, *referrerID, loyalty.ReferralBonus)
			if errors.Is(err, database.ErrUserNotFound) {
				return ErrInvalidReferral
			}
			if err != nil {
				return err
			}
			if err := store.SetLoyaltyTier(ctx, tx, *referrerID, string(loyalty.TierFor(balance))); err != nil {
				return err
			}
		}

		var err error
		user, err = store.CreateUser(ctx, tx, store.UserInput{
			Email:      strings.ToLower(strings.TrimSpace(req.Email)),
			Name:       strings.TrimSpace(req.Name),
			ReferredBy: referrerID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	fields := logrus.Fields{"user_id": user.ID}
	if referrerID != nil {
		fields["referred_by"] = *referrerID
	}
	s.log.WithFields(fields).Info("user registered")

	return user, nil
}

func (s *Service) Profile(user *models.User) *Profile {
	return &Profile{
		User:            user,
		DiscountPercent: loyalty.DiscountPercent(user.LoyaltyPoints),
		ReferralCode:    loyalty.ReferralCode(user.ID, s.now()),
	}
}

func (s *Service) Get(ctx context.Context, id int64) (*models.User, error) {
	return store.GetUser(ctx, s.db, id)
}

func (s *Service) List(ctx context.Context, page, pageSize int) (*store.OffsetPage, error) {
	return store.ListUsers(ctx, s.db, page, pageSize)
}
