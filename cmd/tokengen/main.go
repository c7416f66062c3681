package main

import (
	"dexarb/internal/config"
	"dexarb/internal/security"
	"flag"
	"fmt"
	"log"
	"os"
	"time"
)

// tokengen mints an RS256 bearer token for the /api routes using the configured private key
func main() {
	var (
		sub = flag.String("sub", "", "token subject")
		ttl = flag.Duration("ttl", time.Hour, "token lifetime")
	)
	flag.Parse()

	cfgPath := os.Getenv("CONFIG")
	if cfgPath == "" {
		cfgPath = "cmd/arbscan/config.yaml"
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("Failed load config, error=%v", err)
	}

	signer, err := security.NewRS256Signer(&cfg.Security.JWT)
	if err != nil {
		log.Fatalf("Failed init signer, error=%v", err)
	}

	token, err := signer.Mint(*sub, *ttl, time.Time{}, nil)
	if err != nil {
		log.Fatalf("Failed mint token, error=%v", err)
	}

	fmt.Println(token)
}
