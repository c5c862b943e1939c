package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

func main() {
	log.SetPrefix("lg/heys-day-go-api: ")
	log.SetFlags(log.LstdFlags)

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kv, err := openSQLiteKV(cfg.LocalDBPath)
	if err != nil {
		return err
	}
	defer kv.Close()

	store := newDayStore(kv, storeOptions{
		ClientID:         cfg.ClientID,
		Debounce:         cfg.Debounce,
		ProtectionWindow: cfg.ProtectionWindow,
	})

	var (
		profiles   profileProvider = staticProfile{p: cfg.Profile}
		catalog    productCatalog  = newMemoryCatalog()
		remoteSync *syncer
	)
	if cfg.DBURL != "" {
		pool, err := getDBPool(ctx, cfg.DBURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		profiles = newPGProfiles(pool, cfg.ClientID, cfg.Profile)
		catalog = &pgCatalog{db: pool}
		remoteSync = newSyncer(store, &pgRemote{db: pool, clientID: cfg.ClientID}, cfg.SyncInterval, nil)
	} else {
		log.Printf("[main] DB_URL not set, running local-only with an empty product catalog")
	}

	stats := newStatsPipeline(store, profiles, nil)
	hub := newRealtimeHub()
	wireStore(store, stats, remoteSync, hub)

	h := &Handler{store: store, stats: stats, catalog: catalog, sync: remoteSync, hub: hub}
	router := gin.Default()
	router.SetTrustedProxies(nil)
	h.registerRoutes(router)
	srv := &http.Server{Addr: cfg.ListenAddr, Handler: router}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("[main] listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		// Write every dirty day before the syncer makes its final push.
		if cerr := store.Close(); cerr != nil {
			log.Printf("[main] flush on shutdown: %v", cerr)
		}
		if remoteSync != nil {
			remoteSync.PushPending(shutdownCtx)
		}
		return err
	})
	if remoteSync != nil {
		g.Go(func() error { return remoteSync.Run(gctx) })
		go func() {
			if n, err := remoteSync.Pull(gctx); err != nil {
				log.Printf("[sync] initial pull failed: %v", err)
			} else {
				log.Printf("[sync] initial pull applied %d day(s)", n)
			}
		}()
	}
	return g.Wait()
}

// wireStore connects the store's hooks to the derived-stats pipeline, the
// uploader and the live feed. sync and hub may be nil.
func wireStore(store *dayStore, stats *statsPipeline, sync *syncer, hub *realtimeHub) {
	store.resolveProfile = stats.currentProfile
	store.snapshot = stats.snapshot
	if hub != nil {
		store.onChange = func(rec dayRecord) {
			summary := stats.Summary(context.Background(), rec, string(store.State(rec.Date)))
			hub.Broadcast(liveEvent{Type: "day", Date: rec.Date, Summary: &summary})
		}
		store.onPersistError = func(date string, err error) {
			hub.Toast(date, "Could not save "+date+", changes are kept in memory")
		}
	}
	if sync != nil {
		store.onPersisted = sync.Enqueue
	}
}
