// Package data provides market data storage and loading.
package data

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quantfolio/portfolio-backend/pkg/types"
)

// Store provides access to historical market data: daily instrument closes,
// benchmark index closes, treasury rates and listing metadata, all backed
// by JSON files under one data directory with an in-memory cache.
type Store struct {
	mu          sync.RWMutex
	logger      *zap.Logger
	dataDir     string
	priceCache  map[string][]types.PriceRow
	benchCache  map[string][]types.BenchmarkRow
	rateCache   map[types.RateTenor][]types.RateRow
	instruments map[string]types.Instrument
	metadata    map[string]*InstrumentMetadata
}

// InstrumentMetadata describes the available history for one instrument.
type InstrumentMetadata struct {
	Code      string    `json:"code"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
	RowCount  int       `json:"rowCount"`
}

// NewStore creates a store rooted at dataDir, creating the directory when
// absent.
func NewStore(logger *zap.Logger, dataDir string) (*Store, error) {
	store := &Store{
		logger:      logger,
		dataDir:     dataDir,
		priceCache:  make(map[string][]types.PriceRow),
		benchCache:  make(map[string][]types.BenchmarkRow),
		rateCache:   make(map[types.RateTenor][]types.RateRow),
		instruments: make(map[string]types.Instrument),
		metadata:    make(map[string]*InstrumentMetadata),
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	if err := store.loadMetadata(); err != nil {
		logger.Warn("failed to load metadata", zap.Error(err))
	}
	if err := store.loadInstruments(); err != nil {
		logger.Warn("failed to load instrument metadata", zap.Error(err))
	}

	return store, nil
}

// Prices loads one instrument's daily closes inside [start, end]. A missing
// instrument yields an empty slice, not an error; callers decide whether
// that is fatal.
func (s *Store) Prices(ctx context.Context, code string, start, end time.Time) ([]types.PriceRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, ok := s.priceCache[code]
	if !ok {
		filename := filepath.Join(s.dataDir, fmt.Sprintf("prices_%s.json", code))
		raw, err := os.ReadFile(filename)
		if err != nil {
			if os.IsNotExist(err) {
				s.logger.Warn("no price file for instrument", zap.String("code", code))
				s.priceCache[code] = nil
				return nil, nil
			}
			return nil, fmt.Errorf("failed to read price file: %w", err)
		}
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, fmt.Errorf("failed to parse price data for %s: %w", code, err)
		}
		sort.Slice(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })
		s.priceCache[code] = rows
	}

	return filterPricesByRange(rows, start, end), nil
}

// PricesForCodes aggregates the closes of every requested instrument.
func (s *Store) PricesForCodes(ctx context.Context, codes []string, start, end time.Time) ([]types.PriceRow, error) {
	var all []types.PriceRow
	for _, code := range codes {
		rows, err := s.Prices(ctx, code, start, end)
		if err != nil {
			return nil, err
		}
		all = append(all, rows...)
	}
	return all, nil
}

// BenchmarkCloses loads one index's daily closes inside [start, end].
func (s *Store) BenchmarkCloses(ctx context.Context, code string, start, end time.Time) ([]types.BenchmarkRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, ok := s.benchCache[code]
	if !ok {
		filename := filepath.Join(s.dataDir, fmt.Sprintf("benchmark_%s.json", code))
		raw, err := os.ReadFile(filename)
		if err != nil {
			if os.IsNotExist(err) {
				s.logger.Warn("no benchmark file for index", zap.String("index_code", code))
				s.benchCache[code] = nil
				return nil, nil
			}
			return nil, fmt.Errorf("failed to read benchmark file: %w", err)
		}
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, fmt.Errorf("failed to parse benchmark data for %s: %w", code, err)
		}
		sort.Slice(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })
		s.benchCache[code] = rows
	}

	var filtered []types.BenchmarkRow
	for _, r := range rows {
		if inRange(r.Date, start, end) {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}

// Rates loads one treasury tenor's observations inside [start, end].
func (s *Store) Rates(ctx context.Context, tenor types.RateTenor, start, end time.Time) ([]types.RateRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, ok := s.rateCache[tenor]
	if !ok {
		filename := filepath.Join(s.dataDir, fmt.Sprintf("rates_%s.json", tenor))
		raw, err := os.ReadFile(filename)
		if err != nil {
			if os.IsNotExist(err) {
				s.logger.Warn("no rate file for tenor", zap.String("tenor", string(tenor)))
				s.rateCache[tenor] = nil
				return nil, nil
			}
			return nil, fmt.Errorf("failed to read rate file: %w", err)
		}
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, fmt.Errorf("failed to parse rate data for %s: %w", tenor, err)
		}
		sort.Slice(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })
		s.rateCache[tenor] = rows
	}

	var filtered []types.RateRow
	for _, r := range rows {
		if inRange(r.Date, start, end) {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}

// Instruments resolves listing metadata for the given codes. Unknown codes
// are simply absent from the result.
func (s *Store) Instruments(ctx context.Context, codes []string) ([]types.Instrument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.Instrument
	for _, code := range codes {
		if inst, ok := s.instruments[code]; ok {
			out = append(out, inst)
		}
	}
	return out, nil
}

// AvailableRange reports the stored history bounds for an instrument.
func (s *Store) AvailableRange(code string) (start, end time.Time, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if meta, ok := s.metadata[code]; ok {
		return meta.StartDate, meta.EndDate, nil
	}
	return time.Time{}, time.Time{}, fmt.Errorf("no data available for instrument %s", code)
}

// SavePrices writes one instrument's closes to disk and refreshes cache
// and metadata.
func (s *Store) SavePrices(code string, rows []types.PriceRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sort.Slice(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })

	filename := filepath.Join(s.dataDir, fmt.Sprintf("prices_%s.json", code))
	raw, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal price data: %w", err)
	}
	if err := os.WriteFile(filename, raw, 0644); err != nil {
		return fmt.Errorf("failed to write price file: %w", err)
	}

	s.priceCache[code] = rows
	if len(rows) > 0 {
		s.metadata[code] = &InstrumentMetadata{
			Code:      code,
			StartDate: rows[0].Date,
			EndDate:   rows[len(rows)-1].Date,
			RowCount:  len(rows),
		}
	}
	return s.saveMetadata()
}

// SaveBenchmark writes one index's closes to disk.
func (s *Store) SaveBenchmark(code string, rows []types.BenchmarkRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sort.Slice(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })

	filename := filepath.Join(s.dataDir, fmt.Sprintf("benchmark_%s.json", code))
	raw, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal benchmark data: %w", err)
	}
	if err := os.WriteFile(filename, raw, 0644); err != nil {
		return fmt.Errorf("failed to write benchmark file: %w", err)
	}
	s.benchCache[code] = rows
	return nil
}

// SaveRates writes one tenor's observations to disk.
func (s *Store) SaveRates(tenor types.RateTenor, rows []types.RateRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sort.Slice(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })

	filename := filepath.Join(s.dataDir, fmt.Sprintf("rates_%s.json", tenor))
	raw, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal rate data: %w", err)
	}
	if err := os.WriteFile(filename, raw, 0644); err != nil {
		return fmt.Errorf("failed to write rate file: %w", err)
	}
	s.rateCache[tenor] = rows
	return nil
}

// SaveInstruments writes the listing metadata catalog to disk.
func (s *Store) SaveInstruments(instruments []types.Instrument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	filename := filepath.Join(s.dataDir, "instruments.json")
	raw, err := json.MarshalIndent(instruments, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal instruments: %w", err)
	}
	if err := os.WriteFile(filename, raw, 0644); err != nil {
		return fmt.Errorf("failed to write instruments file: %w", err)
	}
	for _, inst := range instruments {
		s.instruments[inst.Code] = inst
	}
	return nil
}

// ClearCache drops the in-memory caches.
func (s *Store) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.priceCache = make(map[string][]types.PriceRow)
	s.benchCache = make(map[string][]types.BenchmarkRow)
	s.rateCache = make(map[types.RateTenor][]types.RateRow)
}

// CacheSize returns the number of cached datasets.
func (s *Store) CacheSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.priceCache) + len(s.benchCache) + len(s.rateCache)
}

func filterPricesByRange(rows []types.PriceRow, start, end time.Time) []types.PriceRow {
	var filtered []types.PriceRow
	for _, r := range rows {
		if inRange(r.Date, start, end) {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

func inRange(d, start, end time.Time) bool {
	return (d.Equal(start) || d.After(start)) && (d.Equal(end) || d.Before(end))
}

func (s *Store) loadMetadata() error {
	filename := filepath.Join(s.dataDir, "metadata.json")

	raw, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var metadata map[string]*InstrumentMetadata
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return err
	}
	s.metadata = metadata
	return nil
}

func (s *Store) saveMetadata() error {
	filename := filepath.Join(s.dataDir, "metadata.json")

	raw, err := json.MarshalIndent(s.metadata, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, raw, 0644)
}

func (s *Store) loadInstruments() error {
	filename := filepath.Join(s.dataDir, "instruments.json")

	raw, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var instruments []types.Instrument
	if err := json.Unmarshal(raw, &instruments); err != nil {
		return err
	}
	for _, inst := range instruments {
		s.instruments[inst.Code] = inst
	}
	return nil
}
