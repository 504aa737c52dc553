// Package numerator issues sequential transaction numbers such as WI-20250105-0001.
package numerator

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Strategy defines the numbering generation strategy.
type Strategy int

const (
	// StrategyStrict increments the backing counter for every number.
	// Numbers are gapless as long as every issued number is used.
	StrategyStrict Strategy = iota

	// StrategyCached allocates ranges of numbers in memory.
	// Much faster, but a restart leaves a gap.
	StrategyCached
)

// Reset periods.
const (
	ResetDaily   = "day"
	ResetMonthly = "month"
	ResetYearly  = "year"
	ResetNever   = "never"
)

// Store is the durable counter behind a Service.
// Increment adds by to the counter named key (creating it at zero) and returns the new value.
type Store interface {
	Increment(ctx context.Context, key string, by int64) (int64, error)
}

// Config holds numbering configuration.
type Config struct {
	// Prefix starts every number (e.g. "WI").
	Prefix string

	// PadWidth is the minimum width of the counter (default 4).
	PadWidth int

	// ResetPeriod: "day", "month", "year" or "never".
	// The period also appears in the number unless it is "never".
	ResetPeriod string

	Strategy Strategy

	// RangeSize is the number of values allocated at once by StrategyCached. Default is 50.
	RangeSize int64
}

// WalkInConfig numbers walk-in transactions: WI-YYYYMMDD-NNNN, restarting daily.
func WalkInConfig() Config {
	return Config{
		Prefix:      "WI",
		PadWidth:    4,
		ResetPeriod: ResetDaily,
		Strategy:    StrategyStrict,
	}
}

type cachedRange struct {
	current int64
	max     int64
}

// Service issues numbers for one Config.
type Service struct {
	store Store
	cfg   Config

	mu     sync.Mutex
	ranges map[string]*cachedRange
}

// New creates a numerator over store.
func New(store Store, cfg Config) *Service {
	if cfg.PadWidth <= 0 {
		cfg.PadWidth = 4
	}
	if cfg.RangeSize <= 0 {
		cfg.RangeSize = 50
	}
	if cfg.ResetPeriod == "" {
		cfg.ResetPeriod = ResetNever
	}
	return &Service{
		store:  store,
		cfg:    cfg,
		ranges: make(map[string]*cachedRange),
	}
}

// Next returns the next number for the period containing at.
func (s *Service) Next(ctx context.Context, at time.Time) (string, error) {
	if s == nil || s.store == nil {
		return "", fmt.Errorf("numerator service is not initialized")
	}

	key := s.buildKey(at)

	var (
		num int64
		err error
	)
	switch s.cfg.Strategy {
	case StrategyCached:
		num, err = s.nextCached(ctx, key)
	default:
		num, err = s.store.Increment(ctx, key, 1)
	}
	if err != nil {
		return "", fmt.Errorf("next %s number: %w", s.cfg.Prefix, err)
	}

	return s.format(at, num), nil
}

// nextCached hands out numbers from memory, refilling a range from the store when exhausted.
func (s *Service) nextCached(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rng, ok := s.ranges[key]
	if !ok {
		rng = &cachedRange{}
		s.ranges[key] = rng
	}

	if rng.current >= rng.max {
		newMax, err := s.store.Increment(ctx, key, s.cfg.RangeSize)
		if err != nil {
			return 0, fmt.Errorf("reserve range: %w", err)
		}
		// The range is (newMax-size, newMax].
		rng.current = newMax - s.cfg.RangeSize
		rng.max = newMax
	}

	rng.current++
	return rng.current, nil
}

func (s *Service) periodLayout() string {
	switch s.cfg.ResetPeriod {
	case ResetDaily:
		return "20060102"
	case ResetMonthly:
		return "200601"
	case ResetYearly:
		return "2006"
	default:
		return ""
	}
}

// buildKey names the counter: the prefix plus the period, if any.
func (s *Service) buildKey(at time.Time) string {
	if layout := s.periodLayout(); layout != "" {
		return s.cfg.Prefix + "_" + at.Format(layout)
	}
	return s.cfg.Prefix
}

func (s *Service) format(at time.Time, num int64) string {
	if layout := s.periodLayout(); layout != "" {
		return fmt.Sprintf("%s-%s-%0*d", s.cfg.Prefix, at.Format(layout), s.cfg.PadWidth, num)
	}
	return fmt.Sprintf("%s-%0*d", s.cfg.Prefix, s.cfg.PadWidth, num)
}

// ParseNumber extracts the counter from a formatted number.
// Returns -1 if parsing fails.
func ParseNumber(formatted string) int64 {
	i := strings.LastIndexByte(formatted, '-')
	if i < 0 {
		return -1
	}
	num, err := strconv.ParseInt(formatted[i+1:], 10, 64)
	if err != nil || num < 0 {
		return -1
	}
	return num
}
