package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/stemsi/exstem-academy/internal/config"
	"github.com/stemsi/exstem-academy/internal/service"
)

func main() {
	var takerID string
	flag.StringVar(&takerID, "taker", "", "Taker id to embed in the token")
	flag.Parse()

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── CLI Input ─────────────────────────────────────────────────────
	if takerID == "" {
		fmt.Print("Enter Taker ID: ")
		line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		takerID = strings.TrimSpace(line)
	}
	if takerID == "" {
		fmt.Println("Error: Taker ID is required")
		os.Exit(1)
	}

	// ─── Issue Token ───────────────────────────────────────────────────
	token, err := service.NewIdentityService(cfg).IssueToken(takerID)
	if err != nil {
		fmt.Printf("Error issuing token: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "Token for %s (valid %s):\n", takerID, cfg.JWTExpiry)
	fmt.Println(token)
}
