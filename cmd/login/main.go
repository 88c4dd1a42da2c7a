package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-proctor/internal/apiclient"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/database"
	"github.com/stemsi/exstem-proctor/internal/logger"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/tokenstore"
	"golang.org/x/term"
)

func main() {
	var logout, status bool
	flag.BoolVar(&logout, "logout", false, "Forget the stored token")
	flag.BoolVar(&status, "status", false, "Show who the stored token belongs to")
	flag.Parse()

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	// Logs go to stderr so stdout stays clean for prompts.
	log := logger.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	var rdb *redis.Client
	if cfg.TokenStore == config.TokenStoreRedis {
		var err error
		rdb, err = database.NewRedisClient(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()
	}

	if cfg.TokenStore == config.TokenStoreFile && cfg.TokenPassword == "" {
		fmt.Print("Token file password: ")
		pass, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			fmt.Println("Error reading password")
			return
		}
		cfg.TokenPassword = string(pass)
	}

	tokens, err := tokenstore.New(cfg, rdb)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open token store")
	}

	client := apiclient.New(cfg.APIBaseURL, cfg.APITimeout, tokens, log)
	defer client.Close()
	authService := service.NewAuthService(client, tokens, cfg.TokenProfile, cfg.MaxFrameBytes)

	switch {
	case logout:
		if err := authService.Logout(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to clear token")
		}
		fmt.Println("Logged out")
		return
	case status:
		identity, err := authService.Identity(ctx)
		if errors.Is(err, service.ErrNotLoggedIn) {
			fmt.Println("Not logged in")
			return
		}
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read token")
		}
		fmt.Printf("Logged in as %q (profile %s)", identity.Subject, identity.Profile)
		if identity.ExpiresAt != nil {
			fmt.Printf(", expires %s", time.Unix(*identity.ExpiresAt, 0).Format(time.RFC1123))
		}
		fmt.Println()
		return
	}

	// ─── CLI Input ─────────────────────────────────────────────────────
	reader := bufio.NewReader(os.Stdin)

	fmt.Printf("=== Sign in to %s ===\n", cfg.APIBaseURL)

	fmt.Print("Email: ")
	email, _ := reader.ReadString('\n')
	email = strings.TrimSpace(email)
	if email == "" {
		fmt.Println("Error: Email is required")
		return
	}

	fmt.Print("Password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		fmt.Println("Error reading password")
		return
	}
	if len(bytePassword) == 0 {
		fmt.Println("Error: Password is required")
		return
	}

	identity, err := authService.Login(ctx, email, string(bytePassword))
	if errors.Is(err, service.ErrInvalidCredentials) {
		fmt.Println("Error: Incorrect email or password")
		os.Exit(1)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Login failed")
	}

	who := identity.Subject
	if who == "" {
		who = email
	}
	fmt.Printf("\nSuccess! Signed in as %s (profile %s)\n", who, identity.Profile)
}
