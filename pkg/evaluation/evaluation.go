// Package evaluation estimates held-out recognition accuracy: it splits a
// corpus into train and test faces with a fixed seed, fits an eigenface model
// on the train faces and matches every test face against it.
package evaluation

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/MrCodeEU/facepca/pkg/corpus"
	"github.com/MrCodeEU/facepca/pkg/eigenface"
	"github.com/MrCodeEU/facepca/pkg/logging"
)

// ErrEmptySplit is returned when the train or the test split would be empty.
var ErrEmptySplit = errors.New("empty train or test split")

// ErrInvalidFraction is returned when the test fraction is not in (0, 1).
var ErrInvalidFraction = errors.New("test fraction must be in (0, 1)")

// DefaultSeed is the split seed used unless configured otherwise.
const DefaultSeed = 42

// Config controls the split and the model fitted on the train faces.
type Config struct {
	TestFraction float64
	Seed         int64
	Rank         int
	// Stratify splits every label separately so each keeps its share of
	// train and test faces.
	Stratify bool
}

// DefaultConfig returns the reference evaluation settings.
func DefaultConfig() Config {
	return Config{
		TestFraction: 0.4,
		Seed:         DefaultSeed,
		Rank:         30,
		Stratify:     true,
	}
}

// Prediction is the outcome for one test face.
type Prediction struct {
	Index     int     `json:"index"`
	Truth     string  `json:"truth"`
	Predicted string  `json:"predicted"`
	Distance  float64 `json:"distance"`
}

// Correct reports whether the predicted label is the true one.
func (p Prediction) Correct() bool { return p.Truth == p.Predicted }

// Report is the result of one evaluation.
type Report struct {
	Accuracy    float64      `json:"accuracy"`
	Rank        int          `json:"rank"`
	TrainSize   int          `json:"train_size"`
	TestSize    int          `json:"test_size"`
	Predictions []Prediction `json:"predictions"`
}

// Evaluator runs held-out evaluations with a fixed configuration.
type Evaluator struct {
	cfg Config
}

// New validates cfg and returns an Evaluator.
func New(cfg Config) (*Evaluator, error) {
	if !(cfg.TestFraction > 0 && cfg.TestFraction < 1) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidFraction, cfg.TestFraction)
	}
	if cfg.Rank < 1 {
		return nil, fmt.Errorf("%w: k=%d", eigenface.ErrRankOutOfRange, cfg.Rank)
	}
	return &Evaluator{cfg: cfg}, nil
}

// Config returns the evaluator configuration.
func (e *Evaluator) Config() Config { return e.cfg }

// Split partitions face indices into train and test sets. The test set has
// ceil(fraction·n) faces. Both slices are sorted ascending and the result
// depends only on labels and the configuration.
func (e *Evaluator) Split(labels []string) (train, test []int, err error) {
	n := len(labels)
	nTest := int(math.Ceil(e.cfg.TestFraction*float64(n) - 1e-9))
	nTrain := n - nTest
	if nTest < 1 || nTrain < 1 {
		return nil, nil, fmt.Errorf("%w: %d faces with test fraction %v", ErrEmptySplit, n, e.cfg.TestFraction)
	}

	rng := rand.New(rand.NewSource(e.cfg.Seed))
	if e.cfg.Stratify {
		train, test = stratifiedSplit(labels, nTrain, rng)
	} else {
		perm := rng.Perm(n)
		train = append([]int(nil), perm[:nTrain]...)
		test = append([]int(nil), perm[nTrain:]...)
	}

	sort.Ints(train)
	sort.Ints(test)
	return train, test, nil
}

// stratifiedSplit gives every label floor(nTrain·count/n) train faces and
// hands the remaining train slots out by largest remainder, ties going to the
// label that sorts first. Faces are shuffled within each label before the
// cut.
func stratifiedSplit(labels []string, nTrain int, rng *rand.Rand) (train, test []int) {
	n := len(labels)
	byLabel := make(map[string][]int)
	for i, l := range labels {
		byLabel[l] = append(byLabel[l], i)
	}
	names := make([]string, 0, len(byLabel))
	for name := range byLabel {
		names = append(names, name)
	}
	sort.Strings(names)

	type share struct {
		name      string
		quota     int
		remainder int
	}
	shares := make([]share, len(names))
	assigned := 0
	for i, name := range names {
		scaled := nTrain * len(byLabel[name])
		shares[i] = share{name: name, quota: scaled / n, remainder: scaled % n}
		assigned += shares[i].quota
	}

	order := make([]int, len(shares))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return shares[order[a]].remainder > shares[order[b]].remainder
	})
	for _, i := range order[:nTrain-assigned] {
		shares[i].quota++
	}

	for _, s := range shares {
		idx := append([]int(nil), byLabel[s.name]...)
		rng.Shuffle(len(idx), func(a, b int) { idx[a], idx[b] = idx[b], idx[a] })
		train = append(train, idx[:s.quota]...)
		test = append(test, idx[s.quota:]...)
	}
	return train, test
}

// Evaluate fits a model on the train split of c and matches every test face.
func (e *Evaluator) Evaluate(c *corpus.Corpus) (*Report, error) {
	train, test, err := e.Split(c.Labels())
	if err != nil {
		return nil, err
	}

	trainCorpus, err := c.Subset(train)
	if err != nil {
		return nil, err
	}
	model, err := eigenface.Fit(trainCorpus.Matrix(), e.cfg.Rank)
	if err != nil {
		return nil, fmt.Errorf("failed to fit train split: %w", err)
	}

	report := &Report{
		Rank:        e.cfg.Rank,
		TrainSize:   len(train),
		TestSize:    len(test),
		Predictions: make([]Prediction, 0, len(test)),
	}

	correct := 0
	for _, i := range test {
		match, err := model.Match(corpus.Flatten(c.Face(i).Image))
		if err != nil {
			return nil, fmt.Errorf("failed to match test face %d: %w", i, err)
		}
		p := Prediction{
			Index:     i,
			Truth:     c.Label(i),
			Predicted: trainCorpus.Label(match.Index),
			Distance:  match.Distance,
		}
		if p.Correct() {
			correct++
		}
		report.Predictions = append(report.Predictions, p)
	}
	report.Accuracy = float64(correct) / float64(len(test))

	logging.Component("evaluation").WithFields(logging.Fields{
		"train":    report.TrainSize,
		"test":     report.TestSize,
		"rank":     report.Rank,
		"accuracy": report.Accuracy,
	}).Debug("Evaluation finished")

	return report, nil
}

// Accuracy returns the held-out accuracy of c, in [0, 1].
func (e *Evaluator) Accuracy(c *corpus.Corpus) (float64, error) {
	report, err := e.Evaluate(c)
	if err != nil {
		return 0, err
	}
	return report.Accuracy, nil
}
