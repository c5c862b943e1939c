package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Handler holds shared dependencies (store, stats, sync, live hub) for all
// route handlers.
type Handler struct {
	store   *dayStore
	stats   *statsPipeline
	catalog productCatalog
	sync    *syncer // nil when no remote is configured
	hub     *realtimeHub
}

/* ─── Database helpers ────────────────────────────────────────────────── */

// queryOne runs a query and scans the first row into T using RowToStructByName.
// Logs query and scan errors for debugging (e.g. struct/column mismatches).
func queryOne[T any](pool *pgxpool.Pool, ctx context.Context, sql string, args pgx.NamedArgs) (T, error) {
	rows, err := pool.Query(ctx, sql, args)
	if err != nil {
		log.Printf("[queryOne] Query error: %v", err)
		var zero T
		return zero, err
	}
	result, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[T])
	if err != nil {
		log.Printf("[queryOne] Scan error: %v", err)
	}
	return result, err
}

// queryMany runs a query and scans all rows into []T using RowToStructByName.
func queryMany[T any](pool *pgxpool.Pool, ctx context.Context, sql string, args pgx.NamedArgs) ([]T, error) {
	rows, err := pool.Query(ctx, sql, args)
	if err != nil {
		log.Printf("[queryMany] Query error: %v", err)
		return nil, err
	}
	results, err := pgx.CollectRows(rows, pgx.RowToStructByName[T])
	if err != nil {
		log.Printf("[queryMany] Scan error: %v", err)
	}
	return results, err
}

// apiError returns a consistent JSON error response: {"error": "message"}.
func apiError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

/* ─── Server setup ────────────────────────────────────────────────────── */

// getDBPool creates a connection pool for the remote store. We use a pool
// (not a single conn) because hosted Postgres closes idle connections.
func getDBPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("unable to parse DB URL: %w", err)
	}
	// Use simple query protocol to avoid "cached plan must not change result type"
	// errors from server-side prepared statement caches after schema changes.
	config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	fmt.Fprintln(os.Stderr, "DB pool ready!")
	return pool, nil
}

// registerRoutes registers all API routes on the router.
func (h *Handler) registerRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.GET("/day/:date", h.getDay)
	api.PATCH("/day/:date", h.patchDay)
	api.DELETE("/day/:date", h.clearDay)
	api.POST("/day/:date/meals", h.createMeal)
	api.DELETE("/day/:date/meals/:mealID", h.deleteMeal)
	api.POST("/day/:date/meals/:mealID/items", h.addMealItem)
	api.PUT("/day/:date/meals/:mealID/items/:itemID", h.updateMealItem)
	api.DELETE("/day/:date/meals/:mealID/items/:itemID", h.deleteMealItem)
	api.PUT("/day/:date/trainings/:slot", h.putTraining)
	api.POST("/day/:date/water", h.addWater)
	api.POST("/day/:date/flush", h.flushDay)
	api.POST("/day/:date/remote", h.applyRemoteDay)
	api.GET("/day/:date/insulin-wave", h.getInsulinWave)
	api.GET("/stats/series", h.getSeries)
	api.GET("/stats/balance", h.getBalance)
	api.POST("/sync/pull", h.pullRemote)
	api.GET("/live", h.live)
}
