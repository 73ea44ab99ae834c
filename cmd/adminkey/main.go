// Command adminkey issues and revokes admin API keys directly against
// admin_api_keys. There is no HTTP bootstrap endpoint for this (spec.md §1
// names "admin bootstrap endpoint" as an excluded external collaborator) —
// this is the operational tool that fills that gap out-of-band, the way
// create_bootstraped_admin/generate_admin_api_keys do in the original
// service, just run as a one-off command instead of an HTTP route.
//
// Usage:
//
//	go run ./cmd/adminkey issue <admin_id> [name]
//	go run ./cmd/adminkey revoke <key_id>
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"

	_ "github.com/lib/pq"

	"github.com/dodopay/ledger/internal/config"
	"github.com/dodopay/ledger/internal/keystore"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: adminkey issue <admin_id> [name] | adminkey revoke <key_id>")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	manager := keystore.NewAdminManager(keystore.NewAdminPostgresStore(db), cfg.APIKeySecret)
	ctx := context.Background()

	switch os.Args[1] {
	case "issue":
		if len(os.Args) < 3 {
			log.Fatal("usage: adminkey issue <admin_id> [name]")
		}
		name := "default"
		if len(os.Args) > 3 {
			name = os.Args[3]
		}
		raw, key, err := manager.Issue(ctx, os.Args[2], name)
		if err != nil {
			log.Fatalf("issue failed: %v", err)
		}
		fmt.Printf("admin_id=%s key_id=%s api_key=%s\n", key.AdminID, key.ID, raw)
		fmt.Println("store this key now, it will not be shown again")

	case "revoke":
		if len(os.Args) < 3 {
			log.Fatal("usage: adminkey revoke <key_id>")
		}
		if err := manager.Revoke(ctx, os.Args[2]); err != nil {
			log.Fatalf("revoke failed: %v", err)
		}
		fmt.Println("key revoked")

	default:
		log.Fatalf("unknown command %q", os.Args[1])
	}
}
