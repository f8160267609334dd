package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

func main() {
	_ = godotenv.Load()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL is required")
	}

	dir := "migrations"
	listOnly := false
	for _, a := range os.Args[1:] {
		if a == "--list" {
			listOnly = true
		} else {
			dir = a
		}
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("ping: %v", err)
	}
	log.Println("Connected to database")

	if listOnly {
		if err := listTables(db); err != nil {
			log.Fatal(err)
		}
		return
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		filename   TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`); err != nil {
		log.Fatalf("create schema_migrations: %v", err)
	}

	files, err := migrationFiles(dir)
	if err != nil {
		log.Fatal(err)
	}

	var okCount, skipCount, errCount int
	for _, f := range files {
		var applied bool
		if err := db.QueryRow(`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)`, f).Scan(&applied); err != nil {
			log.Fatalf("check %s: %v", f, err)
		}
		if applied {
			skipCount++
			continue
		}

		path := filepath.Join(dir, f)
		data, err := os.ReadFile(path)
		if err != nil {
			log.Fatalf("read %s: %v", path, err)
		}
		content := string(data)
		if strings.TrimSpace(content) == "" {
			continue
		}
		fmt.Printf("  %s ... ", f)

		if err := apply(db, f, content); err != nil {
			fmt.Printf("ERROR: %v\n", err)
			errCount++
			continue
		}
		fmt.Println("OK")
		okCount++
	}
	log.Printf("Done: %d applied, %d already applied, %d errors", okCount, skipCount, errCount)
	if errCount > 0 {
		os.Exit(1)
	}
	log.Println("Migrations complete")
}

func migrationFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// apply runs one file and records it in the same transaction.
func apply(db *sql.DB, name, content string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if _, err := tx.Exec(content); err != nil {
		tx.Rollback()
		return err
	}
	if _, err := tx.Exec(`INSERT INTO schema_migrations (filename) VALUES ($1)`, name); err != nil {
		tx.Rollback()
		return fmt.Errorf("record: %w", err)
	}
	return tx.Commit()
}

func listTables(db *sql.DB) error {
	rows, err := db.Query("SELECT tablename FROM pg_tables WHERE schemaname='public' ORDER BY tablename")
	if err != nil {
		return err
	}
	defer rows.Close()
	n := 0
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return err
		}
		fmt.Println(" ", t)
		n++
	}
	fmt.Printf("Total: %d tables\n", n)
	return rows.Err()
}
