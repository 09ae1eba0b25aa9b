// Command issuetoken prints a signed bearer token for the editor API.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/auth"
	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/config"
	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/rbac"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	sub := flag.String("sub", "", "user id (required)")
	name := flag.String("name", "", "display name, used as revision author (required)")
	role := flag.String("role", string(rbac.RoleEditor), "viewer, editor or admin")
	ttl := flag.Duration("ttl", 12*time.Hour, "token lifetime")
	flag.Parse()

	if *sub == "" || *name == "" {
		flag.Usage()
		os.Exit(2)
	}
	if normalized := rbac.Normalize(*role); string(normalized) != *role {
		fmt.Fprintf(os.Stderr, "unknown role %q\n", *role)
		os.Exit(2)
	}

	token, claims, err := auth.IssueToken([]byte(cfg.JWTSecret), auth.Claims{Sub: *sub, Name: *name, Role: *role}, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "issue token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires %s\n", time.Unix(claims.Exp, 0).UTC().Format(time.RFC3339))
}
