package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"forecourt/internal/migrate"
)

func main() {
	log.SetFlags(0)
	var (
		dsn        = flag.String("dsn", os.Getenv("FORECOURT_CONTROL_DSN"), "control-plane PostgreSQL DSN")
		controlDir = flag.String("control", "migrations/control", "control-plane migration directory")
		tenantDir  = flag.String("tenant", "migrations/tenant", "per-tenant migration directory")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or FORECOURT_CONTROL_DSN")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|status|up-tenants]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("open control db: %v", err)
	}
	defer db.Close()

	mgr := migrate.NewManager(db, *controlDir)

	switch flag.Arg(0) {
	case "up":
		err = mgr.Up(ctx)
	case "down":
		err = mgr.Down(ctx)
	case "status":
		var history []string
		history, err = mgr.History(ctx)
		if err == nil {
			for _, item := range history {
				fmt.Println(item)
			}
		}
	case "up-tenants":
		err = upTenants(ctx, db, *tenantDir)
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", flag.Arg(0), err)
	}
}

// upTenants applies the tenant migration set to every active tenant database
// listed in the control-plane directory.
func upTenants(ctx context.Context, control *sql.DB, dir string) error {
	rows, err := control.QueryContext(ctx,
		`select id, connection_descriptor from tenants where status = 'active' order by id`)
	if err != nil {
		return fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	type target struct{ id, dsn string }
	var targets []target
	for rows.Next() {
		var t target
		if err := rows.Scan(&t.id, &t.dsn); err != nil {
			return err
		}
		targets = append(targets, t)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, t := range targets {
		if err := upOne(ctx, t.dsn, dir); err != nil {
			return fmt.Errorf("tenant %s: %w", t.id, err)
		}
		log.Printf("tenant %s: up to date", t.id)
	}
	return nil
}

func upOne(ctx context.Context, dsn, dir string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	return migrate.NewManager(db, dir).Up(ctx)
}
