package evaluation

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/MrCodeEU/facepca/pkg/corpus"
	"github.com/MrCodeEU/facepca/pkg/logging"
)

// ErrSummaryNotFound is returned by a Store that holds no summary for a key.
var ErrSummaryNotFound = errors.New("evaluation summary not found")

// Summary is the persisted outcome of an evaluation.
type Summary struct {
	Key          string    `json:"key"`
	Fingerprint  string    `json:"fingerprint"`
	Rank         int       `json:"rank"`
	TestFraction float64   `json:"test_fraction"`
	Seed         int64     `json:"seed"`
	Stratify     bool      `json:"stratify"`
	Accuracy     float64   `json:"accuracy"`
	TrainSize    int       `json:"train_size"`
	TestSize     int       `json:"test_size"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store persists summaries between runs.
type Store interface {
	LoadSummary(key string) (*Summary, error)
	SaveSummary(s *Summary) error
}

// Key identifies the evaluation of a corpus version under a configuration.
func Key(fingerprint string, cfg Config) string {
	return fmt.Sprintf("%s-k%d-f%s-s%d-%t", fingerprint, cfg.Rank,
		strconv.FormatFloat(cfg.TestFraction, 'g', -1, 64), cfg.Seed, cfg.Stratify)
}

// Cache memoizes evaluations per corpus fingerprint, so accuracy is computed
// at most once per corpus version. It is safe for concurrent use.
type Cache struct {
	ev    *Evaluator
	store Store

	mu        sync.Mutex
	summaries map[string]*Summary
	reports   map[string]*Report
}

// NewCache wraps ev. store may be nil.
func NewCache(ev *Evaluator, store Store) *Cache {
	return &Cache{
		ev:        ev,
		store:     store,
		summaries: make(map[string]*Summary),
		reports:   make(map[string]*Report),
	}
}

// Evaluator returns the wrapped evaluator.
func (c *Cache) Evaluator() *Evaluator { return c.ev }

// Accuracy returns the held-out accuracy of cp, evaluating only on a miss in
// memory and in the store.
func (c *Cache) Accuracy(cp *corpus.Corpus) (float64, error) {
	s, err := c.Summary(cp)
	if err != nil {
		return 0, err
	}
	return s.Accuracy, nil
}

// Summary returns the evaluation summary of cp.
func (c *Cache) Summary(cp *corpus.Corpus) (*Summary, error) {
	key := Key(cp.Fingerprint(), c.ev.cfg)
	log := logging.Component("evaluation").WithField("key", key)

	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.summaries[key]; ok {
		log.Debug("Accuracy cache hit")
		return s, nil
	}

	if c.store != nil {
		s, err := c.store.LoadSummary(key)
		switch {
		case err == nil:
			log.Debug("Accuracy loaded from store")
			c.summaries[key] = s
			return s, nil
		case !errors.Is(err, ErrSummaryNotFound):
			return nil, fmt.Errorf("failed to load evaluation summary: %w", err)
		}
	}

	log.Debug("Accuracy cache miss")
	if _, err := c.reportLocked(key, cp); err != nil {
		return nil, err
	}
	return c.summaries[key], nil
}

// Report returns the full evaluation report of cp. Reports are kept in
// memory only; a summary loaded from the store does not carry predictions,
// so the first Report call for a key always evaluates.
func (c *Cache) Report(cp *corpus.Corpus) (*Report, error) {
	key := Key(cp.Fingerprint(), c.ev.cfg)

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.reportLocked(key, cp)
}

func (c *Cache) reportLocked(key string, cp *corpus.Corpus) (*Report, error) {
	if r, ok := c.reports[key]; ok {
		return r, nil
	}

	r, err := c.ev.Evaluate(cp)
	if err != nil {
		return nil, err
	}
	c.reports[key] = r

	cfg := c.ev.cfg
	s := &Summary{
		Key:          key,
		Fingerprint:  cp.Fingerprint(),
		Rank:         cfg.Rank,
		TestFraction: cfg.TestFraction,
		Seed:         cfg.Seed,
		Stratify:     cfg.Stratify,
		Accuracy:     r.Accuracy,
		TrainSize:    r.TrainSize,
		TestSize:     r.TestSize,
		CreatedAt:    time.Now().UTC(),
	}
	c.summaries[key] = s

	if c.store != nil {
		if err := c.store.SaveSummary(s); err != nil {
			return nil, fmt.Errorf("failed to save evaluation summary: %w", err)
		}
	}
	return r, nil
}
