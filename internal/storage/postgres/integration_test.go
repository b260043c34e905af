//go:build integration

package postgres

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/catalog"
	"github.com/xenking/storefront/internal/domain/customer"
	"github.com/xenking/storefront/internal/domain/media"
	"github.com/xenking/storefront/internal/domain/order"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "shop",
				"POSTGRES_PASSWORD": "shop",
				"POSTGRES_DB":       "shop",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() {
		if err := container.Terminate(context.Background()); err != nil {
			log.Printf("terminate postgres: %v", err)
		}
	}()

	host, err := container.Host(ctx)
	if err != nil {
		log.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		log.Fatalf("mapped port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://shop:shop@%s:%s/shop?sslmode=disable", host, port.Port())
	testPool, err = NewPool(ctx, dsn)
	if err != nil {
		log.Fatalf("pool: %v", err)
	}
	defer testPool.Close()

	if err := RunMigrations(ctx, testPool); err != nil {
		log.Fatalf("migrations: %v", err)
	}
	return m.Run()
}

type fixture struct {
	customer customer.Customer
	address  customer.Address
	payment  customer.PaymentMethod
	variant  catalog.Variant
}

func newFixture(t *testing.T, stock int) fixture {
	t.Helper()
	ctx := context.Background()
	suffix := fmt.Sprintf("%d", time.Now().UnixNano())

	customers := NewCustomerRepository(testPool)
	c := customer.Customer{Name: "Ana", Email: "ana-" + suffix + "@example.com"}
	require.NoError(t, customers.Create(ctx, &c))
	a := customer.Address{CustomerID: c.ID, Street: "Av. Siempre Viva 742", City: "Lima", Country: "PE"}
	require.NoError(t, customers.AddAddress(ctx, &a))
	pm := customer.PaymentMethod{CustomerID: c.ID, Kind: customer.PaymentCash}
	require.NoError(t, customers.AddPaymentMethod(ctx, &pm))

	products := NewCatalogRepository(testPool)
	p := catalog.Product{ID: "p-" + suffix, Name: "Mug", Active: true}
	require.NoError(t, products.UpsertProduct(ctx, p))
	vid, err := products.UpsertVariant(ctx, catalog.Variant{
		ProductID: p.ID,
		SKU:       "MUG-" + suffix,
		Color:     "red",
		UnitPrice: decimal.RequireFromString("12.50"),
		Stock:     stock,
		MinStock:  2,
		Active:    true,
	})
	require.NoError(t, err)
	v, err := products.GetVariant(ctx, vid)
	require.NoError(t, err)

	return fixture{customer: c, address: a, payment: pm, variant: *v}
}

func TestCartRepository_MergeGuard(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)
	repo := NewCartRepository(testPool)

	c, err := repo.GetOrCreate(ctx, f.customer.ID)
	require.NoError(t, err)
	again, err := repo.GetOrCreate(ctx, f.customer.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, again.ID)

	line, created, err := repo.MergeLine(ctx, c.ID, f.variant.ID, 3)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "37.50", line.Subtotal().StringFixed(2))
	assert.Equal(t, "Mug / red", line.Label)

	merged, created, err := repo.MergeLine(ctx, c.ID, f.variant.ID, 2)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, line.ID, merged.ID)
	assert.Equal(t, 5, merged.Quantity)

	_, _, err = repo.MergeLine(ctx, c.ID, f.variant.ID, 1)
	require.ErrorIs(t, err, cart.ErrInsufficientStock)

	lines, err := repo.Lines(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 5, lines[0].Quantity)
}

func TestCartRepository_ConcurrentAddsRespectStock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)
	repo := NewCartRepository(testPool)

	c, err := repo.GetOrCreate(ctx, f.customer.ID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = repo.MergeLine(ctx, c.ID, f.variant.ID, 1)
		}()
	}
	wg.Wait()

	lines, err := repo.Lines(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 10, lines[0].Quantity)
}

func TestCartRepository_LineScoping(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)
	other := newFixture(t, 5)
	repo := NewCartRepository(testPool)

	mine, err := repo.GetOrCreate(ctx, f.customer.ID)
	require.NoError(t, err)
	theirs, err := repo.GetOrCreate(ctx, other.customer.ID)
	require.NoError(t, err)

	line, _, err := repo.MergeLine(ctx, mine.ID, f.variant.ID, 1)
	require.NoError(t, err)

	require.ErrorIs(t, repo.DeleteLine(ctx, theirs.ID, line.ID), cart.ErrLineNotFound)
	_, err = repo.SetQuantity(ctx, theirs.ID, line.ID, 2)
	require.ErrorIs(t, err, cart.ErrLineNotFound)

	_, err = repo.SetQuantity(ctx, mine.ID, line.ID, 6)
	require.ErrorIs(t, err, cart.ErrInsufficientStock)

	n, err := repo.Clear(ctx, mine.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = repo.Clear(ctx, mine.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestCatalogRepository_AdjustStock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	repo := NewCatalogRepository(testPool)

	low, err := repo.LowStock(ctx)
	require.NoError(t, err)
	assert.Contains(t, variantIDs(low), f.variant.ID)

	_, err = repo.AdjustStock(ctx, f.variant.ID, -2)
	require.ErrorIs(t, err, catalog.ErrStockUnderflow)

	v, err := repo.AdjustStock(ctx, f.variant.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, 5, v.Stock)

	_, err = repo.AdjustStock(ctx, "missing", 1)
	require.ErrorIs(t, err, catalog.ErrVariantNotFound)

	_, err = repo.AdjustStock(ctx, f.variant.ID, catalog.MaxStock)
	require.ErrorIs(t, err, catalog.ErrStockOutOfRange)
	again, err := repo.GetVariant(ctx, f.variant.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, again.Stock)
}

func TestCatalogRepository_StockAlerts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3)
	repo := NewCatalogRepository(testPool)

	over := f.variant
	over.SKU = f.variant.SKU + "-XL"
	over.Stock = 40
	over.MinStock = 1
	over.MaxStock = 30
	overID, err := repo.UpsertVariant(ctx, over)
	require.NoError(t, err)

	vs, err := repo.OverStock(ctx)
	require.NoError(t, err)
	ids := variantIDs(vs)
	assert.Contains(t, ids, overID)
	assert.NotContains(t, ids, f.variant.ID, "zero max_stock has no upper bound")

	bad := f.variant
	bad.SKU = f.variant.SKU + "-BAD"
	bad.MinStock = 10
	bad.MaxStock = 5
	_, err = repo.UpsertVariant(ctx, bad)
	require.ErrorIs(t, err, catalog.ErrInvalidStockBounds)
}

func TestOrderRepository(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	repo := NewOrderRepository(testPool)

	o := &order.Order{
		Number:            order.NumberGenerator{}.Next(),
		CustomerID:        f.customer.ID,
		Subtotal:          decimal.RequireFromString("10.00"),
		ShippingCost:      decimal.Zero,
		Total:             decimal.RequireFromString("10.00"),
		PaymentMethodID:   f.payment.ID,
		ShippingAddressID: f.address.ID,
		Status:            order.StatusPending,
	}
	require.NoError(t, repo.Create(ctx, o))
	require.NotEmpty(t, o.ID)

	dup := *o
	require.ErrorIs(t, repo.Create(ctx, &dup), order.ErrDuplicateNumber)

	got, err := repo.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.Number, got.Number)
	assert.Equal(t, "Lima", got.ShippingAddress.City)
	assert.Equal(t, customer.PaymentCash, got.PaymentMethod.Kind)

	got.Status = order.StatusShipped
	require.NoError(t, repo.Update(ctx, got))

	list, err := repo.List(ctx, order.Filter{
		CustomerID:     f.customer.ID,
		Status:         order.StatusShipped,
		NumberContains: o.Number[4:12],
		Limit:          10,
	})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, o.ID, list[0].ID)

	summary, err := repo.Summarize(ctx, order.Filter{CustomerID: f.customer.ID})
	require.NoError(t, err)
	require.Len(t, summary, 1)
	assert.Equal(t, order.StatusShipped, summary[0].Status)
	assert.Equal(t, 1, summary[0].Count)

	recent, err := repo.CountSince(ctx, order.Filter{CustomerID: f.customer.ID}, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, recent)

	_, err = repo.Get(ctx, "missing")
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestImageRepository_PrimaryDemotion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	repo := NewImageRepository(testPool)

	first := &media.Image{VariantID: f.variant.ID, Key: "products/" + f.variant.ID + "/a.png", URL: "u1", Primary: true}
	require.NoError(t, repo.Create(ctx, first))
	second := &media.Image{VariantID: f.variant.ID, Key: "products/" + f.variant.ID + "/b.png", URL: "u2", Primary: true}
	require.NoError(t, repo.Create(ctx, second))

	images, err := repo.ListByVariant(ctx, f.variant.ID)
	require.NoError(t, err)
	require.Len(t, images, 2)
	assert.Equal(t, second.ID, images[0].ID)
	assert.True(t, images[0].Primary)
	assert.False(t, images[1].Primary)

	require.ErrorIs(t, repo.Create(ctx, &media.Image{VariantID: "missing", Key: "x", URL: "x"}), catalog.ErrVariantNotFound)

	require.NoError(t, repo.Delete(ctx, first.ID))
	require.ErrorIs(t, repo.Delete(ctx, first.ID), media.ErrNotFound)
}

func variantIDs(vs []catalog.Variant) []string {
	ids := make([]string, len(vs))
	for i, v := range vs {
		ids[i] = v.ID
	}
	return ids
}
