// Command migrate applies the database schema and optionally seeds an admin
// account. It is idempotent and safe to run on every deploy.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/educlear/educlear-api/pkg/config"
	"github.com/educlear/educlear-api/pkg/database"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		full_name TEXT NOT NULL,
		role TEXT NOT NULL,
		department TEXT,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		last_login TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		token TEXT NOT NULL UNIQUE,
		expires_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		revoked BOOLEAN NOT NULL DEFAULT FALSE,
		revoked_at TIMESTAMPTZ,
		ip_address TEXT,
		user_agent TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id UUID PRIMARY KEY,
		user_id UUID,
		action TEXT NOT NULL,
		resource TEXT NOT NULL,
		resource_id TEXT,
		old_values JSONB,
		new_values JSONB,
		ip_address TEXT,
		user_agent TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS students (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE,
		full_name TEXT NOT NULL,
		college_id TEXT NOT NULL,
		enrollment_number TEXT NOT NULL UNIQUE,
		department TEXT NOT NULL,
		year INT NOT NULL,
		email TEXT NOT NULL,
		phone TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS clearance_requests (
		id UUID PRIMARY KEY,
		student_id UUID NOT NULL REFERENCES students(id) ON DELETE CASCADE,
		type TEXT NOT NULL CHECK (type IN ('hall_ticket', 'no_dues')),
		status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'approved', 'rejected')),
		submitted_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		completed_at TIMESTAMPTZ,
		pdf_url TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS clearance_approvals (
		id UUID PRIMARY KEY,
		request_id UUID NOT NULL REFERENCES clearance_requests(id) ON DELETE CASCADE,
		department TEXT NOT NULL,
		subject BOOLEAN NOT NULL DEFAULT FALSE,
		assigned_to UUID,
		status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'approved', 'rejected')),
		remarks TEXT,
		approved_by UUID,
		approved_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_requests_student ON clearance_requests (student_id)`,
	`CREATE INDEX IF NOT EXISTS idx_requests_status ON clearance_requests (status)`,
	`CREATE INDEX IF NOT EXISTS idx_approvals_request ON clearance_approvals (request_id)`,
	`CREATE INDEX IF NOT EXISTS idx_approvals_department ON clearance_approvals (department) WHERE status = 'pending'`,
	`CREATE INDEX IF NOT EXISTS idx_approvals_assigned ON clearance_approvals (assigned_to) WHERE assigned_to IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS idx_audit_logs_resource ON audit_logs (resource, resource_id)`,
	`CREATE INDEX IF NOT EXISTS idx_refresh_tokens_user ON refresh_tokens (user_id)`,
}

func main() {
	var (
		adminEmail    string
		adminPassword string
		timeout       time.Duration
	)

	flag.StringVar(&adminEmail, "admin-email", "", "Seed an admin account with this email (skipped when empty)")
	flag.StringVar(&adminPassword, "admin-password", "", "Password for the seeded admin account")
	flag.DurationVar(&timeout, "timeout", 30*time.Second, "Overall migration timeout")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer db.Close() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			log.Fatalf("schema statement %d failed: %v", i+1, err)
		}
	}
	log.Printf("schema applied (%d statements)", len(schema))

	if adminEmail == "" {
		return
	}
	if adminPassword == "" {
		log.Fatal("-admin-password is required when seeding an admin account")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("failed to hash admin password: %v", err)
	}

	const upsert = `INSERT INTO users (id, email, password_hash, full_name, role, active, created_at, updated_at)
	VALUES ($1, $2, $3, 'Administrator', 'admin', TRUE, NOW(), NOW())
	ON CONFLICT (email) DO NOTHING`
	result, err := db.ExecContext(ctx, upsert, uuid.NewString(), adminEmail, string(hash))
	if err != nil {
		log.Fatalf("failed to seed admin: %v", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		fmt.Printf("admin %s already exists, left untouched\n", adminEmail)
		return
	}
	fmt.Printf("admin %s created\n", adminEmail)
}
