package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-proctor/internal/apiclient"
	"github.com/stemsi/exstem-proctor/internal/capture"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/database"
	"github.com/stemsi/exstem-proctor/internal/logger"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/tokenstore"
)

func main() {
	var dir string
	flag.StringVar(&dir, "dir", "", "Directory of face images (used when no files are given)")
	flag.Parse()

	cfg := config.Load()
	log := logger.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	files := flag.Args()
	if len(files) == 0 && dir != "" {
		var err error
		names, err := capture.ListImages(dir)
		if err != nil {
			log.Fatal().Err(err).Str("dir", dir).Msg("Failed to list images")
		}
		for _, name := range names {
			files = append(files, filepath.Join(dir, name))
		}
	}
	if len(files) < model.MinFaceImages {
		fmt.Printf("Usage: register-face [-dir DIR] [image ...]\nAt least %d images are required, got %d.\n", model.MinFaceImages, len(files))
		os.Exit(2)
	}

	var rdb *redis.Client
	if cfg.TokenStore == config.TokenStoreRedis {
		var err error
		rdb, err = database.NewRedisClient(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()
	}

	tokens, err := tokenstore.New(cfg, rdb)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open token store")
	}
	client := apiclient.New(cfg.APIBaseURL, cfg.APITimeout, tokens, log)
	defer client.Close()
	authService := service.NewAuthService(client, tokens, cfg.TokenProfile, cfg.MaxFrameBytes)

	fmt.Printf("=== Registering %d face images ===\n", len(files))

	images := make([]string, 0, len(files))
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Fatal().Err(err).Str("file", path).Msg("Failed to read image")
		}
		frame, err := capture.NewFrame(data, cfg.MaxFrameBytes)
		if err != nil {
			log.Fatal().Err(err).Str("file", path).Msg("Rejected image")
		}
		images = append(images, capture.EncodeDataURL(frame))
		fmt.Printf("  %s (%s, %d bytes)\n", filepath.Base(path), frame.MIME, len(data))
	}

	msg, err := authService.RegisterFace(ctx, images)
	if errors.Is(err, apiclient.ErrUnauthorized) {
		fmt.Println("Error: not logged in. Run the login command first.")
		os.Exit(1)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Face registration failed")
	}

	fmt.Printf("\nSuccess! %s\n", msg)
}
