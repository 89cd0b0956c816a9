package main

import (
	"context"
	"crypto/rand"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/expense-tracker/internal/config"
	"github.com/zombor/expense-tracker/internal/expense"
	"github.com/zombor/expense-tracker/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	cfg, fs, err := config.Load("expense-tracker", os.Args[1:])
	if errors.Is(err, ff.ErrHelp) {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		os.Exit(0)
	}
	if err != nil {
		if fs != nil {
			fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if cfg.ShowVersion {
		fmt.Println(version)
		os.Exit(0)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	slog.SetDefault(cfg.NewLogger(os.Stderr))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("Exiting", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	slog.Info("Initializing database...", "type", cfg.DBType)
	db, err := openDB(cfg)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	slog.Info("Initializing storage...", "type", cfg.StorageType)
	store, closeStore, err := openStorage(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}
	defer closeStore()

	slog.Info("Initializing OCR engine...", "engine", cfg.OCREngine)
	recognizer, err := openRecognizer(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing OCR engine: %w", err)
	}
	scanner := scanning.NewOCRScanner(recognizer,
		scanning.WithMaxPages(cfg.OCRMaxPages),
		scanning.WithEnhancement(cfg.OCREnhance),
		scanning.WithTimeout(cfg.OCRTimeout),
	)
	defer scanner.Close()

	service := expense.NewService(db, scanner, store)

	sessionKey := []byte(cfg.SessionKey)
	if len(sessionKey) == 0 {
		sessionKey = make([]byte, 32)
		if _, err := rand.Read(sessionKey); err != nil {
			return fmt.Errorf("generating session key: %w", err)
		}
		slog.Warn("No session key configured; sessions will not survive a restart")
	}
	server := expense.NewServer(service, expense.SessionConfig{
		Key:    sessionKey,
		Secure: cfg.SecureCookies,
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	slog.Info("Server starting", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	if err := server.Start(ctx, addr); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	slog.Info("Shutting down...")
	return nil
}

func openDB(cfg *config.Config) (expense.DB, error) {
	switch cfg.DBType {
	case "sqlite":
		return expense.NewSQLiteDB(cfg.DBPath)
	case "postgres":
		return expense.NewPostgresDB(cfg.DatabaseURL)
	default:
		return expense.NewBoltDB(cfg.DBPath)
	}
}

func openStorage(ctx context.Context, cfg *config.Config) (expense.Storage, func(), error) {
	if cfg.StorageType == "gcs" {
		store, err := expense.NewGCSStorage(ctx, cfg.GCSBucket, cfg.GCSPrefix)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	}

	store, err := expense.NewLocalStorage(cfg.StoragePath)
	if err != nil {
		return nil, nil, err
	}
	return store, func() {}, nil
}

func openRecognizer(ctx context.Context, cfg *config.Config) (scanning.Recognizer, error) {
	switch cfg.OCREngine {
	case "gemini":
		return scanning.NewGemini(ctx, cfg.GeminiKey, cfg.GeminiModel)
	case "ollama":
		return scanning.NewOllama(cfg.OllamaURL, cfg.OllamaModel), nil
	case "azure":
		return scanning.NewAzure(cfg.AzureEndpoint, cfg.AzureKey)
	default:
		return scanning.NewTesseract(cfg.TesseractCmd, cfg.TesseractLang)
	}
}
