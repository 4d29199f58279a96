package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"tally/internal/amqp"
	"tally/internal/backend"
	"tally/internal/config"
	"tally/internal/importer"
	"tally/internal/log"
	"tally/internal/services"
)

func main() {
	var (
		file        = flag.String("file", "", "bank statement CSV to import")
		account     = flag.String("account", "", "account id the rows post against (default: DEFAULT_ACCOUNT_ID)")
		dateCol     = flag.Int("date-col", -1, "override the guessed date column (0-based)")
		amountCol   = flag.Int("amount-col", -1, "override the guessed amount column (0-based)")
		merchantCol = flag.Int("merchant-col", -1, "override the guessed merchant column (0-based)")
		dryRun      = flag.Bool("dry-run", false, "scan and report without committing")
	)
	flag.Parse()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "usage: import -file statement.csv [-account id] [-dry-run]")
		os.Exit(2)
	}

	_ = godotenv.Load()
	logger := log.New(log.DefaultConfig())
	log.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fatal("invalid configuration: %v", err)
	}
	accountID := *account
	if accountID == "" {
		accountID = cfg.DefaultAccountID
	}
	if accountID == "" {
		fatal("no account: pass -account or set DEFAULT_ACCOUNT_ID")
	}

	repo, err := backend.Open(cfg)
	if err != nil {
		fatal("open repository: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()

	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		if amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue); err != nil {
			logger.Warn("AMQP unavailable, mirror will catch up via the periodic sweep", log.FieldError, err)
			amqpClient = nil
		} else {
			defer amqpClient.Close()
		}
	}

	ledgerSvc, err := services.NewLedgerService(ctx, repo, amqpClient, logger)
	if err != nil {
		fatal("load budget state: %v", err)
	}
	imp := services.NewImportService(ledgerSvc, repo, services.ImportConfig{
		ExclusionKeywords: cfg.ExclusionKeywords,
		PayrollKeywords:   cfg.PayrollKeywords,
		DefaultAccountID:  accountID,
		MerchantCacheSize: cfg.MerchantCacheSize,
		MerchantCacheTTL:  cfg.MerchantCacheTTL,
	}, logger)

	f, err := os.Open(*file)
	if err != nil {
		fatal("open statement: %v", err)
	}
	defer f.Close()

	sess, err := imp.Begin(f)
	if err != nil {
		fatal("parse statement: %v", err)
	}
	if *dateCol >= 0 || *amountCol >= 0 || *merchantCol >= 0 {
		m := sess.Mapping
		if *dateCol >= 0 {
			m.Date = *dateCol
		}
		if *amountCol >= 0 {
			m.Amount = *amountCol
		}
		if *merchantCol >= 0 {
			m.Merchant = *merchantCol
		}
		imp.SetMapping(sess, m)
	}
	if !sess.MappingOK {
		fatal("could not guess columns from header %v; pass -date-col, -amount-col, -merchant-col", sess.Statement.Header)
	}

	result, err := imp.Scan(ctx, sess)
	if err != nil {
		fatal("scan statement: %v", err)
	}

	fmt.Printf("Parsed %d rows: %d importable, %d excluded, %d possible duplicates, %d errors\n",
		len(result.Rows)+len(result.Excluded)+len(result.Review)+len(result.Errors),
		len(result.Rows), len(result.Excluded), len(result.Review), len(result.Errors))
	for _, e := range result.Errors {
		fmt.Printf("  error: %v\n", e)
	}
	for _, x := range result.Excluded {
		fmt.Printf("  excluded: %s %s %s\n", x.Date.ISO(), x.OriginalMerchant, x.Amount.StringFixed(2))
	}
	for _, m := range result.Review {
		fmt.Printf("  duplicate (kept original): %s %s %s matches %s on %s\n",
			m.Row.Date.ISO(), m.Row.Merchant, m.Row.Amount.StringFixed(2),
			m.Existing.Merchant, m.Existing.Date.ISO())
	}

	if *dryRun {
		imp.Abandon(sess)
		fmt.Println("Dry run, nothing committed")
		return
	}

	// the one-shot CLI keeps originals for every duplicate match; use the
	// interactive surface for replace/keep-both resolutions
	applied, err := imp.Commit(ctx, sess, map[string]importer.ResolutionKind{})
	if err != nil {
		fatal("commit import: %v", err)
	}
	fmt.Printf("Imported %d transactions into account %s\n", len(applied), accountID)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
