// Package pipeline wires preprocessing, inference, ranking and the history
// log into the classify-and-record flow used by every transport.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Brownie44l1/qualitycast/internal/cache"
	"github.com/Brownie44l1/qualitycast/internal/history"
	"github.com/Brownie44l1/qualitycast/internal/logger"
	"github.com/Brownie44l1/qualitycast/internal/metrics"
	"github.com/Brownie44l1/qualitycast/internal/model"
	"github.com/Brownie44l1/qualitycast/internal/preprocess"
	"github.com/Brownie44l1/qualitycast/internal/rank"
)

// Predictor runs one forward pass and returns class probabilities.
type Predictor interface {
	Predict(input []float32) ([]float32, error)
}

type Resources struct {
	Metadata  model.Metadata
	Labels    []string
	Predictor Predictor
	// Cache is optional.
	Cache   cache.Cache
	History history.Store
	TopN    int
	// ModelDigest identifies the model weights, typically model.FileDigest
	// of the model file. Cached predictions are only shared between
	// pipelines with the same digest, metadata and labels.
	ModelDigest string
	// MaxImagePixels bounds uploads; zero uses preprocess.DefaultMaxPixels.
	MaxImagePixels int
	Now            func() time.Time
}

// Pipeline is immutable after New and safe for concurrent use.
type Pipeline struct {
	meta      model.Metadata
	labels    []string
	predictor Predictor
	pre       *preprocess.Preprocessor
	cache     cache.Cache
	history   history.Store
	topN      int
	maxPixels int
	// fingerprint prefixes every cache key.
	fingerprint string
	now         func() time.Time
}

type Outcome struct {
	ID       string
	Filename string
	Format   string
	Top      rank.Score
	Ranked   []rank.Score
	// Complement is set for two-class models only.
	Complement *float64
	Records    []history.Record
	Cached     bool
	Duration   time.Duration
}

func New(res Resources) (*Pipeline, error) {
	meta := res.Metadata.WithDefaults()
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	if len(res.Labels) != meta.NumClasses() {
		return nil, fmt.Errorf("%w: model has %d outputs but %d labels were loaded",
			model.ErrShapeMismatch, meta.NumClasses(), len(res.Labels))
	}
	if res.Predictor == nil {
		return nil, errors.New("pipeline: predictor is required")
	}
	if res.History == nil {
		return nil, errors.New("pipeline: history store is required")
	}
	if res.TopN < 1 {
		return nil, fmt.Errorf("%w: got %d", rank.ErrInvalidN, res.TopN)
	}

	pre, err := preprocess.New(meta)
	if err != nil {
		return nil, err
	}

	fingerprint, err := modelFingerprint(res.ModelDigest, meta, res.Labels)
	if err != nil {
		return nil, err
	}

	now := res.Now
	if now == nil {
		now = time.Now
	}

	return &Pipeline{
		meta:        meta,
		labels:      append([]string(nil), res.Labels...),
		predictor:   res.Predictor,
		pre:         pre,
		cache:       res.Cache,
		history:     res.History,
		topN:        res.TopN,
		maxPixels:   res.MaxImagePixels,
		fingerprint: fingerprint,
		now:         now,
	}, nil
}

func modelFingerprint(digest string, meta model.Metadata, labels []string) (string, error) {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("failed to encode metadata: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(digest))
	h.Write([]byte{0})
	h.Write(metaJSON)
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(labels, "\n")))
	return hex.EncodeToString(h.Sum(nil))[:16], nil
}

func (p *Pipeline) Metadata() model.Metadata {
	return p.meta
}

func (p *Pipeline) Labels() []string {
	return append([]string(nil), p.labels...)
}

func (p *Pipeline) History() history.Store {
	return p.history
}

// Classify decodes and classifies one upload, then appends one history row
// per ranked class.
func (p *Pipeline) Classify(ctx context.Context, filename string, data []byte) (*Outcome, error) {
	start := time.Now()
	id := uuid.NewString()
	filename = cleanFilename(filename)

	format, err := preprocess.Inspect(data, p.maxPixels)
	if err != nil {
		metrics.ClassificationsTotal.WithLabelValues("invalid_image").Inc()
		return nil, err
	}

	key := p.cacheKey(data)
	probs, cached := p.lookup(ctx, key)
	if !cached {
		probs, err = p.classifyImage(data)
		if err != nil {
			if errors.Is(err, preprocess.ErrDecode) {
				metrics.ClassificationsTotal.WithLabelValues("invalid_image").Inc()
			} else {
				metrics.ClassificationsTotal.WithLabelValues("error").Inc()
			}
			return nil, err
		}
		p.store(ctx, key, probs)
	}

	outcome, err := p.rank(id, probs)
	if err != nil {
		metrics.ClassificationsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	outcome.Filename = filename
	outcome.Format = format
	outcome.Cached = cached

	timestamp := p.now().Format(history.TimeLayout)
	outcome.Records = make([]history.Record, len(outcome.Ranked))
	for i, s := range outcome.Ranked {
		outcome.Records[i] = history.Record{
			EventID:         id,
			Filename:        filename,
			ClassName:       s.Class,
			ConfidenceScore: rank.FormatPercent(s.Score),
			Timestamp:       timestamp,
		}
	}

	if err := p.history.Append(ctx, outcome.Records...); err != nil {
		metrics.HistoryAppendFailures.Inc()
		metrics.ClassificationsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to record history: %w", err)
	}

	outcome.Duration = time.Since(start)
	metrics.ClassificationsTotal.WithLabelValues("ok").Inc()
	metrics.PredictedClassTotal.WithLabelValues(outcome.Top.Class).Inc()
	metrics.ConfidenceScore.Observe(outcome.Top.Score)

	logger.Info("Image classified",
		zap.String("id", id),
		zap.String("filename", filename),
		zap.String("format", format),
		zap.String("class", outcome.Top.Class),
		zap.Float64("confidence", outcome.Top.Score),
		zap.Bool("cached", cached),
		zap.Duration("duration", outcome.Duration),
	)

	return outcome, nil
}

// ClassifyTensor ranks an already preprocessed input. Nothing is written to
// the history log.
func (p *Pipeline) ClassifyTensor(ctx context.Context, input []float32) (*Outcome, error) {
	start := time.Now()
	if want := p.meta.InputSize(); len(input) != want {
		return nil, fmt.Errorf("%w: expected %d values, got %d", model.ErrShapeMismatch, want, len(input))
	}

	probs, err := p.predict(input)
	if err != nil {
		return nil, err
	}

	outcome, err := p.rank(uuid.NewString(), probs)
	if err != nil {
		return nil, err
	}
	outcome.Duration = time.Since(start)
	return outcome, nil
}

// classifyImage decodes, preprocesses and runs the model on one upload.
func (p *Pipeline) classifyImage(data []byte) ([]float32, error) {
	img, _, err := preprocess.Decode(data, p.maxPixels)
	if err != nil {
		return nil, err
	}

	tensor, err := p.pre.Tensor(img)
	if err != nil {
		return nil, fmt.Errorf("failed to preprocess image: %w", err)
	}
	return p.predict(tensor)
}

func (p *Pipeline) predict(tensor []float32) ([]float32, error) {
	start := time.Now()
	probs, err := p.predictor.Predict(tensor)
	metrics.InferenceDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("prediction failed: %w", err)
	}
	if len(probs) != len(p.labels) {
		return nil, fmt.Errorf("%w: model returned %d scores for %d labels",
			model.ErrShapeMismatch, len(probs), len(p.labels))
	}
	return probs, nil
}

func (p *Pipeline) cacheKey(data []byte) string {
	return p.fingerprint + ":" + cache.Key(data)
}

func (p *Pipeline) lookup(ctx context.Context, key string) ([]float32, bool) {
	if p.cache == nil {
		return nil, false
	}
	probs, ok, err := p.cache.Get(ctx, key)
	if err != nil {
		logger.Warn("Prediction cache lookup failed", zap.Error(err))
	} else if ok && len(probs) == len(p.labels) {
		metrics.CacheHits.Inc()
		return probs, true
	}
	metrics.CacheMisses.Inc()
	return nil, false
}

func (p *Pipeline) store(ctx context.Context, key string, probs []float32) {
	if p.cache == nil {
		return
	}
	if err := p.cache.Set(ctx, key, probs); err != nil {
		logger.Warn("Prediction cache store failed", zap.Error(err))
	}
}

func (p *Pipeline) rank(id string, probs []float32) (*Outcome, error) {
	ranked, err := rank.TopN(probs, p.labels, p.topN)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{
		ID:     id,
		Top:    ranked[0],
		Ranked: ranked,
	}
	if len(p.labels) == 2 {
		c := rank.Complement(ranked[0])
		outcome.Complement = &c
	}
	return outcome, nil
}

func cleanFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	switch name {
	case "", ".", "/":
		return "upload"
	}
	return name
}
