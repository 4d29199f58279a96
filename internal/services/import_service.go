package services

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"tally/internal/cache"
	"tally/internal/core"
	"tally/internal/importer"
	"tally/internal/log"
	"tally/internal/storage"
)

// scanWorkers bounds the goroutines normalizing statement chunks.
const scanWorkers = 4

// ImportConfig carries the reconciliation policy. Zero-value fields fall
// back to the importer defaults and a 512-entry, one-hour merchant cache.
type ImportConfig struct {
	ExclusionKeywords []string
	PayrollKeywords   []string
	DefaultAccountID  string
	MerchantCacheSize int
	MerchantCacheTTL  time.Duration
}

// ImportResult is the reviewed outcome of a statement scan.
type ImportResult struct {
	Rows     []core.ImportRow          // unique, return-classified, ready to commit
	Excluded []core.ImportRow          // dropped by the exclusion policy
	Review   []importer.DuplicateMatch // held for a user resolution
	Errors   []importer.RowError       // rows that failed to parse
}

// Session is one statement moving through the reconciler. At most one is
// active per ImportService.
type Session struct {
	ID        string
	Statement importer.Statement
	Mapping   importer.ColumnMapping
	MappingOK bool

	result *ImportResult
	cancel context.CancelFunc
}

// ImportService runs serialized import sessions: parse, scan, review,
// commit. Merchant cleaning is memoized in an LRU so a statement full of
// repeated merchants normalizes each one once.
type ImportService struct {
	ledger    *LedgerService
	repo      storage.Repository
	cfg       ImportConfig
	merchants *cache.LRU[string]
	logger    *log.Logger

	mu     sync.Mutex
	active *Session
}

func NewImportService(ledgerSvc *LedgerService, repo storage.Repository, cfg ImportConfig, logger *log.Logger) *ImportService {
	if len(cfg.ExclusionKeywords) == 0 {
		cfg.ExclusionKeywords = importer.DefaultExclusionKeywords
	}
	if len(cfg.PayrollKeywords) == 0 {
		cfg.PayrollKeywords = importer.DefaultPayrollKeywords
	}
	if cfg.MerchantCacheSize <= 0 {
		cfg.MerchantCacheSize = 512
	}
	if cfg.MerchantCacheTTL <= 0 {
		cfg.MerchantCacheTTL = time.Hour
	}
	return &ImportService{
		ledger:    ledgerSvc,
		repo:      repo,
		cfg:       cfg,
		merchants: cache.NewLRU[string](cfg.MerchantCacheSize, cfg.MerchantCacheTTL),
		logger:    logger.WithComponent(log.ComponentImporter),
	}
}

// Begin parses a statement and opens a session. A second Begin before the
// first session is committed or abandoned returns ErrSessionActive.
func (s *ImportService) Begin(r io.Reader) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		return nil, core.ErrSessionActive
	}

	stmt, err := importer.ParseStatement(r)
	if err != nil {
		return nil, err
	}
	sess := &Session{ID: uuid.NewString(), Statement: stmt}
	sess.Mapping, sess.MappingOK = importer.GuessColumnMapping(stmt.Header)
	s.active = sess

	s.merchants.CleanExpired()
	return sess, nil
}

// SetMapping overrides the guessed column mapping before the scan.
func (s *ImportService) SetMapping(sess *Session, m importer.ColumnMapping) {
	sess.Mapping = m
	sess.MappingOK = true
}

// Scan runs the reconciler stages over the session's statement. Normalize
// is fanned out across worker goroutines; cancelling the context (or
// abandoning the session) stops the scan.
func (s *ImportService) Scan(ctx context.Context, sess *Session) (ImportResult, error) {
	if !sess.MappingOK {
		return ImportResult{}, fmt.Errorf("column mapping not confirmed")
	}
	ctx, cancel := context.WithCancel(ctx)
	sess.cancel = cancel

	start := time.Now()
	rows, rowErrs, err := s.normalizeParallel(ctx, sess.Statement.Records, sess.Mapping)
	if err != nil {
		return ImportResult{}, err
	}

	kept, excluded := importer.FilterExclusions(rows, s.cfg.ExclusionKeywords)

	existing, err := s.repo.Transactions(ctx, "")
	if err != nil {
		return ImportResult{}, fmt.Errorf("load existing transactions: %w", err)
	}
	unique, review := importer.IdentifyDuplicates(kept, existing)
	unique = importer.IdentifyReturns(unique, existing, s.cfg.PayrollKeywords)

	result := ImportResult{Rows: unique, Excluded: excluded, Review: review, Errors: rowErrs}
	sess.result = &result

	s.logger.InfoContext(ctx, "Statement scan complete",
		log.FieldOperation, log.OpImport,
		log.FieldRowCount, len(rows),
		"excluded", len(excluded),
		"review", len(review),
		"errors", len(rowErrs),
		log.FieldDuration, time.Since(start).Milliseconds())
	return result, nil
}

// normalizeParallel splits the records into contiguous chunks and
// normalizes them concurrently, preserving record order and 1-based row
// numbers in the merged result.
func (s *ImportService) normalizeParallel(ctx context.Context, records [][]string, mapping importer.ColumnMapping) ([]core.ImportRow, []importer.RowError, error) {
	chunks := chunkRecords(records, scanWorkers)
	rowsByChunk := make([][]core.ImportRow, len(chunks))
	errsByChunk := make([][]importer.RowError, len(chunks))

	g, ctx := errgroup.WithContext(ctx)
	offset := 0
	for i, chunk := range chunks {
		i, chunk, base := i, chunk, offset
		offset += len(chunk)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rows, errs := importer.NormalizeWith(chunk, mapping, s.cleanMerchant)
			for j := range errs {
				errs[j].Row += base
			}
			rowsByChunk[i] = rows
			errsByChunk[i] = errs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var rows []core.ImportRow
	var rowErrs []importer.RowError
	for i := range chunks {
		rows = append(rows, rowsByChunk[i]...)
		rowErrs = append(rowErrs, errsByChunk[i]...)
	}
	return rows, rowErrs, nil
}

func (s *ImportService) cleanMerchant(raw string) string {
	return s.merchants.GetOrCompute(raw, func() string {
		return importer.CleanMerchant(raw)
	})
}

// Commit turns the scanned rows into ledger transactions and applies them
// as one batch. Review matches are resolved by the resolutions map (keyed
// by row TempID); an unresolved match defaults to keeping the original.
// The session closes on success.
func (s *ImportService) Commit(ctx context.Context, sess *Session, resolutions map[string]importer.ResolutionKind) ([]core.Transaction, error) {
	if sess.result == nil {
		return nil, fmt.Errorf("session has not been scanned")
	}

	rows := append([]core.ImportRow(nil), sess.result.Rows...)
	var replaced []core.Transaction
	for _, match := range sess.result.Review {
		switch resolutions[match.Row.TempID] {
		case importer.ReplaceExisting:
			replaced = append(replaced, match.Existing)
			rows = append(rows, match.Row)
		case importer.KeepBoth:
			rows = append(rows, match.Row)
		default:
			// KeepOriginal: the statement row is dropped
		}
	}

	txs := transactionsFromRows(rows, s.cfg.DefaultAccountID)
	applied, err := s.ledger.BulkImport(ctx, txs, replaced)
	if err != nil {
		return nil, err
	}

	s.close(sess)
	return applied, nil
}

// Abandon cancels any running scan and frees the session slot.
func (s *ImportService) Abandon(sess *Session) {
	s.close(sess)
}

func (s *ImportService) close(sess *Session) {
	if sess.cancel != nil {
		sess.cancel()
	}
	s.mu.Lock()
	if s.active == sess {
		s.active = nil
	}
	s.mu.Unlock()
}

// transactionsFromRows builds simple transactions from reviewed rows. A
// return linked to a batch row inherits that row's subcategory, so a
// categorization assigned at review time cascades to the return.
func transactionsFromRows(rows []core.ImportRow, accountID string) []core.Transaction {
	byTempID := make(map[string]core.ImportRow, len(rows))
	for _, row := range rows {
		byTempID[row.TempID] = row
	}

	txs := make([]core.Transaction, 0, len(rows))
	for _, row := range rows {
		subCategoryID := row.SubCategoryID
		if subCategoryID == "" && row.LinkedParentID != "" {
			if parent, ok := byTempID[row.LinkedParentID]; ok {
				subCategoryID = parent.SubCategoryID
			}
		}
		txs = append(txs, core.Transaction{
			ID:            uuid.NewString(),
			Date:          row.Date,
			Merchant:      row.Merchant,
			Amount:        row.Amount,
			AccountID:     accountID,
			SubCategoryID: subCategoryID,
			IsIncome:      row.IsIncome,
			Notes:         row.Note,
			Kind:          core.KindSimple,
		})
	}
	return txs
}

// chunkRecords splits records into up to n contiguous chunks of near-equal
// size. Fewer records than chunks yields one chunk per record.
func chunkRecords(records [][]string, n int) [][][]string {
	if len(records) == 0 {
		return nil
	}
	if n > len(records) {
		n = len(records)
	}
	size := (len(records) + n - 1) / n
	var chunks [][][]string
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		chunks = append(chunks, records[start:end])
	}
	return chunks
}
