// internal/logger/journal.go
package logger

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Journal actions
const (
	ActionBuy        = "buy"
	ActionBuyFailed  = "buy_failed"
	ActionSell       = "sell"
	ActionSellFailed = "sell_failed"
	ActionAlert      = "alert"
)

// JournalHeader is the CSV header of the trade journal.
var JournalHeader = []string{"timestamp", "wallet", "token", "action", "amount", "price", "pnl", "signature"}

// TradeRecord is one journal row.
type TradeRecord struct {
	Timestamp time.Time
	Wallet    string
	Token     string
	Action    string
	Amount    string
	Price     float64
	PnL       string
	Signature string
}

func (r TradeRecord) row() []string {
	ts := r.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return []string{
		ts.UTC().Format(time.RFC3339),
		r.Wallet,
		r.Token,
		r.Action,
		r.Amount,
		fmt.Sprintf("%.12g", r.Price),
		r.PnL,
		r.Signature,
	}
}

// TradeJournal provides thread-safe CSV writing with a periodic flush.
type TradeJournal struct {
	mu       sync.Mutex
	writer   *csv.Writer
	file     *os.File
	ticker   *time.Ticker
	done     chan struct{}
	logger   *zap.Logger
	filePath string

	// Stats
	writtenRecords uint64
	flushCount     uint64
}

// NewTradeJournal opens (or appends to) the journal at filePath.
func NewTradeJournal(filePath string, flushInterval time.Duration, logger *zap.Logger) (*TradeJournal, error) {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	j := &TradeJournal{
		writer:   csv.NewWriter(file),
		file:     file,
		ticker:   time.NewTicker(flushInterval),
		done:     make(chan struct{}),
		logger:   logger.Named("journal"),
		filePath: filePath,
	}

	// Write header if file is empty
	if stat.Size() == 0 {
		if err := j.writer.Write(JournalHeader); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
		j.writer.Flush()
	}

	go j.periodicFlush()

	return j, nil
}

// Record appends a trade record.
func (j *TradeJournal) Record(r TradeRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.writer.Write(r.row()); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}

	j.writtenRecords++
	return nil
}

// Flush forces a write of any buffered data
func (j *TradeJournal) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.writer.Flush()
	if err := j.writer.Error(); err != nil {
		return fmt.Errorf("CSV writer error: %w", err)
	}
	if err := j.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync file: %w", err)
	}

	j.flushCount++
	return nil
}

func (j *TradeJournal) periodicFlush() {
	for {
		select {
		case <-j.ticker.C:
			if err := j.Flush(); err != nil {
				j.logger.Error("Periodic journal flush failed",
					zap.String("file", j.filePath),
					zap.Error(err))
			}
		case <-j.done:
			return
		}
	}
}

// Close flushes and closes the journal.
func (j *TradeJournal) Close() error {
	close(j.done)
	j.ticker.Stop()

	j.mu.Lock()
	defer j.mu.Unlock()

	j.writer.Flush()
	if err := j.writer.Error(); err != nil {
		return fmt.Errorf("CSV writer error on close: %w", err)
	}
	if err := j.file.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}

	j.logger.Info("Trade journal closed",
		zap.String("file", j.filePath),
		zap.Uint64("written_records", j.writtenRecords),
		zap.Uint64("flush_count", j.flushCount))
	return nil
}

// Stats returns written records and flushes.
func (j *TradeJournal) Stats() (records, flushes uint64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.writtenRecords, j.flushCount
}
