package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"gengateway/internal/infra"
	"gengateway/internal/infra/credentials"
)

func main() {
	var keyFlag, baseURLFlag string
	flag.StringVar(&keyFlag, "key", "", "generation backend API key (falls back to BACKEND_API_KEY)")
	flag.StringVar(&baseURLFlag, "base-url", "", "backend base URL recorded next to the key (falls back to BACKEND_BASE_URL)")
	flag.Parse()

	key := strings.TrimSpace(keyFlag)
	if key == "" {
		key = strings.TrimSpace(os.Getenv("BACKEND_API_KEY"))
	}
	if key == "" {
		fmt.Fprintln(os.Stderr, "backend API key is required via -key or BACKEND_API_KEY")
		os.Exit(1)
	}
	baseURL := strings.TrimSpace(baseURLFlag)
	if baseURL == "" {
		baseURL = strings.TrimSpace(os.Getenv("BACKEND_BASE_URL"))
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create pool: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "backendkey").Logger()
	store := credentials.NewStore(infra.NewSQLRunner(pool, logger))

	if err := store.SetBackendAPIKey(ctx, key, baseURL); err != nil {
		fmt.Fprintf(os.Stderr, "failed to persist backend api key: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("generation backend API key stored successfully")
}
