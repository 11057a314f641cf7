package main

import (
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"

	"github.com/MrCodeEU/facepca/pkg/annotate"
	"github.com/MrCodeEU/facepca/pkg/corpus"
	"github.com/MrCodeEU/facepca/pkg/detect"
	"github.com/MrCodeEU/facepca/pkg/evaluation"
	"github.com/MrCodeEU/facepca/pkg/recognition"
	"github.com/MrCodeEU/facepca/pkg/storage"
)

// pipeline is everything a recognizing command needs, built once from cfg.
type pipeline struct {
	corpus    *corpus.Corpus
	context   *recognition.Context
	evaluator *evaluation.Evaluator
	cache     *evaluation.Cache
	store     *storage.FileStore
	annotator *recognition.Annotator
}

// loadCorpus reads the configured corpus with a progress bar on stderr.
func loadCorpus() (*corpus.Corpus, error) {
	entries, err := corpus.Scan(cfg.Corpus.Dir)
	if err != nil {
		return nil, err
	}

	bar := progressbar.NewOptions(len(entries),
		progressbar.OptionSetDescription("Loading faces"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
	defer func() { _ = bar.Finish() }()

	opts := []corpus.Option{
		corpus.WithProgress(func(corpus.Entry) { _ = bar.Add(1) }),
	}
	if cfg.Corpus.Width > 0 {
		opts = append(opts, corpus.WithSize(cfg.Corpus.Width, cfg.Corpus.Height))
	}

	return corpus.Load(cfg.Corpus.Dir, opts...)
}

func evaluationConfig() evaluation.Config {
	return evaluation.Config{
		TestFraction: cfg.Evaluation.TestFraction,
		Seed:         cfg.Evaluation.Seed,
		Rank:         cfg.PCA.Rank,
		Stratify:     cfg.Evaluation.Stratify,
	}
}

func detectorOptions() detect.Options {
	d := cfg.Detector
	return detect.Options{
		Backend:      d.Backend,
		CascadeFile:  d.CascadeFile,
		ModelPath:    d.ModelPath,
		MinSize:      d.MinSize,
		MaxSize:      d.MaxSize,
		ShiftFactor:  d.ShiftFactor,
		ScaleFactor:  d.ScaleFactor,
		IoUThreshold: d.IoUThreshold,
		MinQuality:   d.MinQuality,
	}
}

func annotationStyle() annotate.Style {
	style := annotate.DefaultStyle()
	style.MinThickness = cfg.Annotation.MinThickness
	style.LabelOffset = cfg.Annotation.LabelOffset
	return style
}

// openStore returns the summary store, or nil when persistence is off.
func openStore() (*storage.FileStore, error) {
	if !cfg.Evaluation.Persist {
		return nil, nil
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	return storage.NewFileStore(cfg.Storage.DataDir, cfg.Storage.EncryptionEnabled)
}

// newPipeline loads the corpus and fits the recognition context. The detector
// is only built when withDetector is set.
func newPipeline(withDetector bool) (*pipeline, error) {
	c, err := loadCorpus()
	if err != nil {
		return nil, err
	}

	ctx, err := recognition.NewContext(c, cfg.PCA.Rank)
	if err != nil {
		return nil, err
	}

	ev, err := evaluation.New(evaluationConfig())
	if err != nil {
		return nil, err
	}

	p := &pipeline{corpus: c, context: ctx, evaluator: ev}

	p.store, err = openStore()
	if err != nil {
		return nil, fmt.Errorf("failed to open evaluation store: %w", err)
	}
	// A nil *FileStore must not reach the cache as a non-nil Store.
	if p.store != nil {
		p.cache = evaluation.NewCache(ev, p.store)
	} else {
		p.cache = evaluation.NewCache(ev, nil)
	}

	if withDetector {
		detector, err := detect.New(detectorOptions())
		if err != nil {
			return nil, fmt.Errorf("failed to create face detector: %w", err)
		}

		var accuracy recognition.AccuracySource = p.cache
		if !cfg.Evaluation.Cache {
			accuracy = ev
		}
		p.annotator = recognition.NewAnnotator(ctx, detector, accuracy, annotationStyle())
	}

	return p, nil
}
