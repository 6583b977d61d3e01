// Command seed generates a reproducible dataset of sample transactions and
// writes it as a JSON array the server can load with --seed.
//
// Usage:
//
//	go run ./cmd/seed [--count 200] [--rand-seed 42] [--out data/seed.json]
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/alecthomas/kingpin/v2"

	"cardshield/fraud-api/internal/sample"
	"cardshield/fraud-api/internal/scoring"
)

func main() {
	count := kingpin.Flag("count", "Number of transactions to generate").Default("200").Int()
	randSeed := kingpin.Flag("rand-seed", "Seed for the random source").Default("42").Uint64()
	out := kingpin.Flag("out", "Output file").Short('o').Default("data/seed.json").String()
	kingpin.Parse()

	if *count <= 0 {
		kingpin.Fatalf("--count must be positive")
	}

	transactions := sample.New(scoring.SeededSource(*randSeed)).Batch(*count)
	for i := range transactions {
		transactions[i].TransactionID = fmt.Sprintf("seed-%04d", i+1)
	}

	if err := os.MkdirAll(filepath.Dir(*out), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "mkdir error: %v\n", err)
		os.Exit(1)
	}

	f, err := os.Create(*out)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create error: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(transactions); err != nil {
		fmt.Fprintf(os.Stderr, "encode error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generated %d transactions → %s\n", len(transactions), *out)
}
