package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/catalog"
	"github.com/xenking/storefront/internal/domain/customer"
	"github.com/xenking/storefront/internal/storage/postgres"
)

type seedFile struct {
	Products  []productJSON  `json:"products"`
	Customers []customerJSON `json:"customers"`
}

type productJSON struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Category    string        `json:"category"`
	Variants    []variantJSON `json:"variants"`
}

type variantJSON struct {
	SKU       string          `json:"sku"`
	Color     string          `json:"color"`
	Size      string          `json:"size"`
	Capacity  string          `json:"capacity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Stock     int             `json:"stock"`
	MinStock  int             `json:"min_stock"`
	MaxStock  int             `json:"max_stock"`
	Location  string          `json:"location"`
}

type customerJSON struct {
	Name           string              `json:"name"`
	Email          string              `json:"email"`
	Phone          string              `json:"phone"`
	APIKey         string              `json:"api_key"`
	Addresses      []addressJSON       `json:"addresses"`
	PaymentMethods []paymentMethodJSON `json:"payment_methods"`
}

type addressJSON struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type paymentMethodJSON struct {
	Kind    customer.PaymentKind `json:"kind"`
	Details string               `json:"details"`
}

var customerScopes = []string{auth.ScopeCart, auth.ScopeOrdersRead, auth.ScopeOrdersWrite}

func main() {
	var (
		databaseURL  string
		seedPath     string
		adminKey     string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&seedPath, "seed-file", "db/seed/catalog.json", "path to seed JSON file")
	flag.StringVar(&adminKey, "admin-key", "", "admin API key to seed (or SHOP_SEED_ADMIN_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or SHOP_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if adminKey == "" {
		adminKey = os.Getenv("SHOP_SEED_ADMIN_KEY")
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("SHOP_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, seedPath, adminKey, []byte(apiKeyPepper)); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, seedPath, adminKey string, pepper []byte) error {
	data, err := os.ReadFile(seedPath)
	if err != nil {
		return errors.Wrap(err, "read seed file")
	}
	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return errors.Wrap(err, "parse seed JSON")
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	keys := postgres.NewAPIKeyRepository(pool)

	if err := seedCatalog(ctx, postgres.NewCatalogRepository(pool), seed.Products); err != nil {
		return errors.Wrap(err, "seed catalog")
	}
	if err := seedCustomers(ctx, postgres.NewCustomerRepository(pool), keys, pepper, seed.Customers); err != nil {
		return errors.Wrap(err, "seed customers")
	}
	if adminKey != "" {
		id, err := keys.Create(ctx, auth.HashKey(adminKey, pepper), "admin", "", []string{auth.ScopeAdmin})
		if err != nil {
			return errors.Wrap(err, "seed admin key")
		}
		slog.Info("upserted admin API key", slog.String("id", id))
	}

	return nil
}

func seedCatalog(ctx context.Context, repo *postgres.CatalogRepository, products []productJSON) error {
	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		if err := repo.UpsertProduct(ctx, catalog.Product{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			Category:    p.Category,
			Active:      true,
		}); err != nil {
			return err
		}
		for _, v := range p.Variants {
			variant := catalog.Variant{
				ProductID: p.ID,
				SKU:       v.SKU,
				Color:     v.Color,
				Size:      v.Size,
				Capacity:  v.Capacity,
				UnitPrice: v.UnitPrice,
				Stock:     v.Stock,
				MinStock:  v.MinStock,
				MaxStock:  v.MaxStock,
				Location:  v.Location,
				Active:    true,
			}
			if err := variant.Validate(); err != nil {
				return errors.Wrapf(err, "variant %s", v.SKU)
			}
			id, err := repo.UpsertVariant(ctx, variant)
			if err != nil {
				return err
			}
			slog.Info("upserted variant", slog.String("id", id), slog.String("sku", v.SKU))
		}
	}

	return nil
}

// seedCustomers creates demo customers. Addresses and payment methods are
// added on every run, so reseeding an existing database appends them again.
func seedCustomers(
	ctx context.Context,
	repo *postgres.CustomerRepository,
	keys *postgres.APIKeyRepository,
	pepper []byte,
	customers []customerJSON,
) error {
	slog.Info("upserting customers", slog.Int("count", len(customers)))

	for _, cj := range customers {
		c := &customer.Customer{Name: cj.Name, Email: cj.Email, Phone: cj.Phone}
		if err := repo.Create(ctx, c); err != nil {
			return err
		}
		for _, aj := range cj.Addresses {
			a := &customer.Address{
				CustomerID: c.ID,
				Street:     aj.Street,
				City:       aj.City,
				State:      aj.State,
				PostalCode: aj.PostalCode,
				Country:    aj.Country,
			}
			if err := repo.AddAddress(ctx, a); err != nil {
				return errors.Wrapf(err, "address for %s", c.Email)
			}
		}
		for _, pj := range cj.PaymentMethods {
			pm := &customer.PaymentMethod{CustomerID: c.ID, Kind: pj.Kind, Details: pj.Details}
			if err := repo.AddPaymentMethod(ctx, pm); err != nil {
				return errors.Wrapf(err, "payment method for %s", c.Email)
			}
		}
		if cj.APIKey != "" {
			if _, err := keys.Create(ctx, auth.HashKey(cj.APIKey, pepper), c.Email, c.ID, customerScopes); err != nil {
				return err
			}
		}

		slog.Info("upserted customer", slog.String("id", c.ID), slog.String("email", c.Email))
	}

	return nil
}
