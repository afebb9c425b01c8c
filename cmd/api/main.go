package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/Arg0xel/SCM---current-work/adapters/httpapi"
	"github.com/Arg0xel/SCM---current-work/adapters/postgres"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("[API] no .env file loaded: %v", err)
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("[API] DATABASE_URL is not set")
	}

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		log.Fatalf("[API] failed to connect to database: %v", err)
	}
	defer db.Close()

	repo := postgres.NewRunRepository(db)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := repo.EnsureSchema(ctx); err != nil {
		cancel()
		log.Fatalf("[API] failed to ensure schema: %v", err)
	}
	cancel()

	addr := ":" + envOrDefault("PORT", "8080")
	server := &http.Server{
		Addr:              addr,
		Handler:           httpapi.NewServer(repo).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("[API] listening on %s", addr)
	if err := server.ListenAndServe(); err != nil {
		log.Fatalf("[API] server failed: %v", err)
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
