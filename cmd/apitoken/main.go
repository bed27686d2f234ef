package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"gengateway/internal/adapter/repo"
	"gengateway/internal/domain"
	"gengateway/internal/infra"
)

func main() {
	var (
		idFlag       string
		usernameFlag string
		nameFlag     string
		createFlag   bool
	)

	flag.StringVar(&idFlag, "id", "", "user ID the token belongs to")
	flag.StringVar(&usernameFlag, "username", "", "username the token belongs to")
	flag.StringVar(&nameFlag, "name", "cli", "label stored with the token")
	flag.BoolVar(&createFlag, "create", false, "create the user when -username does not exist")
	flag.Parse()

	userID := strings.TrimSpace(idFlag)
	username := strings.TrimPrefix(strings.TrimSpace(usernameFlag), "@")
	if userID == "" && username == "" {
		exitWithError(errors.New("either -id or -username must be provided"))
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(errors.New("DATABASE_URL is required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		exitWithError(fmt.Errorf("failed to connect database: %w", err))
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "apitoken").Logger()
	runner := infra.NewSQLRunner(pool, logger)
	users := repo.NewUserRepository(runner)
	tokens := repo.NewTokenRepository(runner)

	var user *domain.User
	if userID != "" {
		user, err = users.GetByID(ctx, userID)
	} else {
		user, err = users.GetByUsername(ctx, username)
		if errors.Is(err, domain.ErrNotFound) && createFlag {
			user, err = users.Upsert(ctx, &domain.User{
				ID:          "user_" + strings.ToLower(username),
				Username:    username,
				DisplayName: username,
			})
		}
	}
	if err != nil {
		exitWithError(fmt.Errorf("failed to load user: %w", err))
	}

	key, err := newKey()
	if err != nil {
		exitWithError(fmt.Errorf("failed to generate key: %w", err))
	}
	token, err := tokens.Create(ctx, &domain.APIToken{
		Name:    strings.TrimSpace(nameFlag),
		UserID:  user.ID,
		KeyHash: domain.HashAPIKey(key),
	})
	if err != nil {
		exitWithError(fmt.Errorf("failed to store token: %w", err))
	}

	fmt.Printf("Token %d issued to %s (@%s)\n", token.ID, user.ID, user.Username)
	fmt.Printf("api_key=%s\n", key)
	fmt.Println("The key is shown once; only its hash is stored.")
}

func newKey() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "sk-" + hex.EncodeToString(buf), nil
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
