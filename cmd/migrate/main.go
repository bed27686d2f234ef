package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"gengateway/internal/db"
	"gengateway/internal/infra"
)

func main() {
	_ = godotenv.Load()

	var (
		dsn  string
		list bool
	)
	flag.StringVar(&dsn, "database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
	flag.BoolVar(&list, "list", false, "print the embedded migrations and exit")
	flag.Parse()

	if list {
		migrations, err := db.Migrations()
		if err != nil {
			fmt.Fprintf(os.Stderr, "read migrations: %v\n", err)
			os.Exit(1)
		}
		for _, m := range migrations {
			fmt.Println(m.Version)
		}
		return
	}

	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	logger := infra.NewLogger("cli").With().Str("cmd", "migrate").Logger()

	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		logger.Fatal().Err(err).Msg("open database")
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	applied, err := db.Migrate(ctx, conn)
	if err != nil {
		logger.Fatal().Err(err).Msg("migration failed")
	}
	if len(applied) == 0 {
		logger.Info().Msg("schema is up to date")
		return
	}
	for _, name := range applied {
		logger.Info().Str("migration", name).Msg("applied")
	}
}
