package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"

	"tally/internal/backend"
	"tally/internal/config"
	"tally/internal/importer"
	"tally/internal/log"
)

func main() {
	var (
		month = flag.String("month", "", "restrict to one month (YYYY-MM); empty exports everything")
		out   = flag.String("o", "", "output file (default: stdout)")
	)
	flag.Parse()

	_ = godotenv.Load()
	log.SetDefault(log.New(log.DefaultConfig()))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fatal("invalid configuration: %v", err)
	}

	repo, err := backend.Open(cfg)
	if err != nil {
		fatal("open repository: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()
	state, err := repo.Load(ctx)
	if err != nil {
		fatal("load budget state: %v", err)
	}
	txs, err := repo.Transactions(ctx, *month)
	if err != nil {
		fatal("load transactions: %v", err)
	}

	var w io.Writer = os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			fatal("create output file: %v", err)
		}
		defer f.Close()
		w = f
	}

	if err := importer.Export(w, txs, state); err != nil {
		fatal("write export: %v", err)
	}
	fmt.Fprintf(os.Stderr, "Exported %d transactions\n", len(txs))
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
