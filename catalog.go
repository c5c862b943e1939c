package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// errProductNotFound is returned by catalogs for unknown product ids.
var errProductNotFound = errors.New("product not found")

// productCatalog looks up per-100g nutrients by product id.
type productCatalog interface {
	Lookup(ctx context.Context, id string) (product, error)
}

// pgCatalog reads the products table.
type pgCatalog struct {
	db *pgxpool.Pool
}

func (c *pgCatalog) Lookup(ctx context.Context, id string) (product, error) {
	p, err := queryOne[product](c.db, ctx,
		`SELECT id, name, kcal100, protein100, carbs100, fat100, fiber100, gi, harm
		 FROM products WHERE id = @id`,
		pgx.NamedArgs{"id": id})
	if errors.Is(err, pgx.ErrNoRows) {
		return product{}, errProductNotFound
	}
	if err != nil {
		return product{}, fmt.Errorf("lookup product %s: %w", id, err)
	}
	return p, nil
}

// memoryCatalog is a fixed in-process catalog, used without a database and
// in tests.
type memoryCatalog struct {
	mu       sync.RWMutex
	products map[string]product
}

func newMemoryCatalog(products ...product) *memoryCatalog {
	c := &memoryCatalog{products: make(map[string]product, len(products))}
	for _, p := range products {
		c.products[p.ID] = p
	}
	return c
}

func (c *memoryCatalog) Lookup(_ context.Context, id string) (product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.products[id]
	if !ok {
		return product{}, errProductNotFound
	}
	return p, nil
}

// snapshotItem copies the product's nutrients into a meal item. This is the
// only place snapshots are written: on add and on product swap.
func snapshotItem(it mealItem, p product) mealItem {
	it.ProductID = p.ID
	it.Name = p.Name
	it.Kcal100 = p.Kcal100
	it.Protein100 = p.Protein100
	it.Carbs100 = p.Carbs100
	it.Fat100 = p.Fat100
	it.Fiber100 = p.Fiber100
	it.GI = p.GI
	it.Harm = p.Harm
	return it
}
