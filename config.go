package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// config is read once at startup from the environment (.env is optional).
type config struct {
	DBURL            string
	LocalDBPath      string
	ListenAddr       string
	ClientID         string
	Debounce         time.Duration
	ProtectionWindow time.Duration
	SyncInterval     time.Duration

	// Profile used until (or instead of) a profiles row.
	Profile profile
}

func loadConfig() (config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("[config] no .env file loaded: %v", err)
	}

	cfg := config{
		DBURL:       os.Getenv("DB_URL"),
		LocalDBPath: envOr("LOCAL_DB_PATH", "heys-local.db"),
		ListenAddr:  envOr("LISTEN_ADDR", "localhost:3000"),
		ClientID:    os.Getenv("HEYS_CLIENT_ID"),
	}

	debounceMS, err := envInt("AUTOSAVE_DEBOUNCE_MS", 500)
	if err != nil {
		return config{}, err
	}
	protectionMS, err := envInt("PROTECTION_WINDOW_MS", 3000)
	if err != nil {
		return config{}, err
	}
	syncS, err := envInt("SYNC_INTERVAL_S", 60)
	if err != nil {
		return config{}, err
	}
	cfg.Debounce = time.Duration(debounceMS) * time.Millisecond
	cfg.ProtectionWindow = time.Duration(protectionMS) * time.Millisecond
	cfg.SyncInterval = time.Duration(syncS) * time.Second

	p := profile{ClientID: cfg.ClientID, Sex: os.Getenv("PROFILE_SEX")}
	if p.WeightKG, err = envFloat("PROFILE_WEIGHT_KG", 0); err != nil {
		return config{}, err
	}
	if p.HeightCM, err = envFloat("PROFILE_HEIGHT_CM", 0); err != nil {
		return config{}, err
	}
	if p.Age, err = envInt("PROFILE_AGE", 0); err != nil {
		return config{}, err
	}
	if p.DeficitPct, err = envFloat("PROFILE_DEFICIT_PCT", defaultDeficitPct); err != nil {
		return config{}, err
	}
	cfg.Profile = normalizeProfile(p)
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func envFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %w", key, err)
	}
	return f, nil
}
