package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/synoptiq/go-fluxq"
)

// --- 1. The Dependency Interface ---

type User struct {
	ID        int
	Email     string
	LastLogin time.Time
}

// UserRepository exposes users as a deferred query. Nothing is read until a
// terminal operation runs it, and every run reads again.
type UserRepository interface {
	Users(ctx context.Context) fluxq.Consumable[User]
}

// --- 2. Queries built on top of the repository ---

// StaleUsers returns the emails of users that have not logged in since cutoff.
func StaleUsers(ctx context.Context, repo UserRepository, cutoff time.Time) fluxq.Consumable[string] {
	stale := fluxq.Where(repo.Users(ctx), func(u User) bool { return u.LastLogin.Before(cutoff) })
	return fluxq.Select(stale, func(u User) string { return u.Email })
}

type DomainCount struct {
	Domain string
	Users  int
}

func emailDomain(u User) string {
	if at := strings.LastIndexByte(u.Email, '@'); at >= 0 {
		return u.Email[at+1:]
	}
	return ""
}

// UsersPerDomain counts users per email domain, in order of first appearance.
func UsersPerDomain(ctx context.Context, repo UserRepository) fluxq.Consumable[DomainCount] {
	return fluxq.GroupByResult(
		repo.Users(ctx),
		emailDomain,
		func(u User) int { return u.ID },
		func(domain string, ids []int) DomainCount { return DomainCount{Domain: domain, Users: len(ids)} },
	)
}

// --- 3a. Concrete Dependency Implementation (SQLite) ---

type SQLiteUserRepository struct {
	db *sql.DB
}

func NewSQLiteUserRepository(db *sql.DB) *SQLiteUserRepository {
	if db == nil {
		panic("sql.DB cannot be nil")
	}
	return &SQLiteUserRepository{db: db}
}

func scanUser(rows *sql.Rows) (User, error) {
	var user User
	var lastLoginStr sql.NullString
	if err := rows.Scan(&user.ID, &user.Email, &lastLoginStr); err != nil {
		return User{}, err
	}
	if !lastLoginStr.Valid || lastLoginStr.String == "" {
		return user, nil
	}
	lastLogin, err := time.Parse(time.RFC3339, lastLoginStr.String)
	if err != nil {
		return User{}, fmt.Errorf("parsing last_login '%s' for user %d failed: %w", lastLoginStr.String, user.ID, err)
	}
	user.LastLogin = lastLogin
	return user, nil
}

func (r *SQLiteUserRepository) Users(ctx context.Context) fluxq.Consumable[User] {
	return fluxq.FromQuery(ctx, r.db, "SELECT id, email, last_login FROM users ORDER BY id", scanUser)
}

// --- 3b. Concrete Dependency Implementation (Mock) ---

type MockUserRepository struct {
	users []User
	reads int
}

func NewMockUserRepository(users ...User) *MockUserRepository {
	return &MockUserRepository{users: users}
}

func (m *MockUserRepository) Users(_ context.Context) fluxq.Consumable[User] {
	return fluxq.FromSeq(func(yield func(User) bool) {
		for _, u := range m.users {
			m.reads++
			if !yield(u) {
				return
			}
		}
	})
}

// --- Database Setup Helper ---

const dbFile = "./fluxq_db_example.db"

func seedUsers(now time.Time) []User {
	return []User{
		{ID: 1, Email: "alice@example.com", LastLogin: now.Add(-24 * time.Hour)},
		{ID: 2, Email: "bob@corp.test", LastLogin: now.Add(-48 * time.Hour)},
		{ID: 3, Email: "carol@example.com", LastLogin: now.Add(-40 * 24 * time.Hour)},
		{ID: 4, Email: "charlie@example.com", LastLogin: now.Add(-72 * time.Hour)},
		{ID: 5, Email: "dave@corp.test", LastLogin: now.Add(-90 * 24 * time.Hour)},
	}
}

func setupDatabase(ctx context.Context, dsn string, users []User) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps an in-memory database shared by every query.
	db.SetMaxOpenConns(1)

	createTableSQL := `
	CREATE TABLE users (
		id INTEGER PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		last_login TEXT
	);`
	if _, err := db.ExecContext(ctx, createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create users table: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO users (id, email, last_login) VALUES (?, ?, ?)")
	if err != nil {
		tx.Rollback()
		db.Close()
		return nil, fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	defer stmt.Close()

	for _, user := range users {
		if _, err := stmt.ExecContext(ctx, user.ID, user.Email, user.LastLogin.Format(time.RFC3339)); err != nil {
			tx.Rollback()
			db.Close()
			return nil, fmt.Errorf("failed to insert user %d: %w", user.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return db, nil
}

// --- 4. Example Usage ---

func main() {
	fmt.Println("🚀 fluxq Database Example (SQLite rows as a query source)")
	fmt.Println("=========================================================")

	ctx := context.Background()
	now := time.Now()

	_ = os.Remove(dbFile)
	db, err := setupDatabase(ctx, dbFile+"?_journal_mode=WAL&_busy_timeout=5000", seedUsers(now))
	if err != nil {
		log.Fatalf("Database setup failed: %v", err)
	}
	defer os.Remove(dbFile)
	defer db.Close()
	fmt.Println("✅ SQLite database initialized.")

	repo := NewSQLiteUserRepository(db)

	fmt.Println("\nUsers without a login in the last 30 days:")
	stale, err := fluxq.ToSlice(StaleUsers(ctx, repo, now.Add(-30*24*time.Hour)))
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	for _, email := range stale {
		fmt.Printf("  - %s\n", email)
	}

	fmt.Println("\nUsers per domain:")
	_, err = fluxq.ForEach(UsersPerDomain(ctx, repo), func(dc DomainCount) bool {
		fmt.Printf("  %-12s %d\n", dc.Domain, dc.Users)
		return true
	})
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}

	// Only the first row is read; the result set is closed right after.
	first, err := fluxq.First(repo.Users(ctx))
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	fmt.Printf("\nFirst user: %d (%s), connections in use: %d\n", first.ID, first.Email, db.Stats().InUse)
}
