package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/go-grocery-store/internal/config"
	"github.com/safar/go-grocery-store/internal/database"
	"github.com/safar/go-grocery-store/internal/models"
	"github.com/safar/go-grocery-store/internal/store"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var sampleCatalogue = []store.ProductInput{
	{
		Name: "Basmati Rice", Description: "Aged long grain rice", Price: decimal.NewFromInt(640),
		Category: models.CategoryGroceries, Brand: "India Gate", Stock: 120, Unit: "5 kg",
		Tags: []string{"rice", "staples"}, LowStockThreshold: 20,
	},
	{
		Name: "Whole Wheat Atta", Description: "Stone ground chakki atta", Price: decimal.NewFromInt(285),
		Category: models.CategoryGroceries, Brand: "Aashirvaad", Stock: 80, Unit: "5 kg",
		Tags: []string{"flour", "staples"}, LowStockThreshold: 15,
	},
	{
		Name: "Toned Milk", Description: "Pasteurised toned milk", Price: decimal.NewFromInt(27),
		Category: models.CategoryDairy, Brand: "Amul", Stock: 200, Unit: "500 ml",
		Tags: []string{"milk", "breakfast"}, LowStockThreshold: 40,
	},
	{
		Name: "Alphonso Mangoes", Description: "Ratnagiri alphonso", Price: decimal.NewFromInt(899),
		Category: models.CategoryFruits, Brand: "Farm Fresh", Stock: 25, Unit: "1 dozen",
		Discount: decimal.NewFromInt(10), Featured: true, Tags: []string{"seasonal"}, LowStockThreshold: 5,
	},
	{
		Name: "Masala Chai", Description: "Assam tea with spices", Price: decimal.NewFromInt(210),
		Category: models.CategoryBeverages, Brand: "Tata Tea", Stock: 60, Unit: "250 g",
		Tags: []string{"tea", "breakfast"}, LowStockThreshold: 10,
	},
	{
		Name: "Dishwash Liquid", Description: "Lemon dishwash gel", Price: decimal.NewFromInt(199),
		Category: models.CategoryHousehold, Brand: "Vim", Stock: 45, Unit: "750 ml",
		Tags: []string{"cleaning"}, LowStockThreshold: 10,
	},
}

func seed(ctx context.Context, cfg *config.Config, adminEmail string, log logrus.FieldLogger) error {
	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	admin, err := store.CreateUser(ctx, db, store.UserInput{
		Email: adminEmail,
		Name:  "Store Admin",
		Role:  models.RoleAdmin,
	})
	switch {
	case errors.Is(err, database.ErrDuplicateEmail):
		log.WithField("email", adminEmail).Info("admin already exists")
	case err != nil:
		return err
	default:
		log.WithFields(logrus.Fields{"user_id": admin.ID, "email": admin.Email}).Info("admin created")
	}

	err = database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		for _, in := range sampleCatalogue {
			if _, err := store.CreateProduct(ctx, tx, in); err != nil {
				return fmt.Errorf("seed %s: %w", in.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.WithField("products", len(sampleCatalogue)).Info("catalogue seeded")
	return nil
}
