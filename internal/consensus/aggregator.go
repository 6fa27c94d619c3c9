package consensus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"ksi-rank/internal/dataset"
	"ksi-rank/internal/selection"
)

// MetricsInterface defines the metrics methods needed by the aggregator
type MetricsInterface interface {
	SelectorRunsInc(selector string)
	SelectorFailuresInc(selector string)
	SelectorTimeoutsInc(selector string)
	SelectorDurationObserve(selector string, seconds float64)
	SelectedFeaturesSet(selector string, n float64)
	AggregationsInc()
}

// Aggregator fans a feature matrix out to selectors and merges their votes.
// A selector that fails or exceeds Timeout loses its vote; the run fails only
// when every selector does.
type Aggregator struct {
	Timeout       time.Duration // per selector, 0 = none
	MaxConcurrent int           // 0 = unlimited
	metrics       MetricsInterface
}

func NewAggregator(timeout time.Duration, maxConcurrent int) *Aggregator {
	return &Aggregator{Timeout: timeout, MaxConcurrent: maxConcurrent}
}

// SetMetrics attaches a metrics sink. A nil sink disables metrics.
func (a *Aggregator) SetMetrics(m MetricsInterface) {
	a.metrics = m
}

type outcome struct {
	result selection.SupportResult
	err    error
}

// Aggregate runs every selector over fm with target size k and returns the
// consensus ranking.
func (a *Aggregator) Aggregate(ctx context.Context, fm *dataset.FeatureMatrix, selectors []selection.Selector, k int) (*Ranking, error) {
	if fm == nil {
		return nil, errors.New("aggregate: nil feature matrix")
	}
	if len(selectors) == 0 {
		return nil, errors.New("aggregate: no selectors")
	}

	outcomes := make([]outcome, len(selectors))

	var eg errgroup.Group
	if a.MaxConcurrent > 0 {
		eg.SetLimit(a.MaxConcurrent)
	}
	for i, s := range selectors {
		i, s := i, s
		eg.Go(func() error {
			res, err := a.run(ctx, s, fm, k)
			outcomes[i] = outcome{result: res, err: err}
			// Failures never cancel the other selectors.
			return nil
		})
	}
	_ = eg.Wait()

	ranking := &Ranking{
		RunID:     uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		K:         k,
		Samples:   fm.NumSamples(),
		Selectors: make([]string, len(selectors)),
		Features:  append([]string(nil), fm.Names()...),
	}
	failures := make(map[string]error)
	for i, s := range selectors {
		ranking.Selectors[i] = s.Name()
		if err := outcomes[i].err; err != nil {
			failures[s.Name()] = err
			continue
		}
		ranking.Results = append(ranking.Results, outcomes[i].result)
	}

	if len(ranking.Results) == 0 {
		return nil, &AggregationFailure{Failures: failures}
	}
	if len(failures) > 0 {
		ranking.Failures = make(map[string]string, len(failures))
		for name, err := range failures {
			ranking.Failures[name] = err.Error()
		}
	}

	ranking.Entries = tally(fm.Names(), ranking.Results)
	if a.metrics != nil {
		a.metrics.AggregationsInc()
	}

	log.Info().
		Str("run_id", ranking.RunID).
		Int("selectors", len(selectors)).
		Int("failed", len(failures)).
		Int("features", fm.NumFeatures()).
		Int("k", k).
		Msg("Consensus ranking complete")
	return ranking, nil
}

// run executes one selector under its own deadline and checks its result.
func (a *Aggregator) run(ctx context.Context, s selection.Selector, fm *dataset.FeatureMatrix, k int) (res selection.SupportResult, err error) {
	name := s.Name()
	if a.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() { a.record(name, time.Since(start), res, err) }()

	res, err = a.call(ctx, s, fm, k)
	if err != nil {
		var se *selection.SelectionError
		if !errors.As(err, &se) {
			err = &selection.SelectionError{Selector: name, Reason: "failed", Err: err}
		}
		return selection.SupportResult{}, err
	}
	if err := validate(res, fm, k); err != nil {
		return selection.SupportResult{}, &selection.SelectionError{Selector: name, Reason: "invalid result", Err: err}
	}
	res.Selector = name
	return res, nil
}

// call runs the selector but returns as soon as ctx is done, even when the
// selector does not poll ctx itself.
func (a *Aggregator) call(ctx context.Context, s selection.Selector, fm *dataset.FeatureMatrix, k int) (selection.SupportResult, error) {
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: &selection.SelectionError{Selector: s.Name(), Reason: fmt.Sprintf("panic: %v", r)}}
			}
		}()
		res, err := s.Select(ctx, fm, k)
		done <- outcome{result: res, err: err}
	}()

	select {
	case o := <-done:
		return o.result, o.err
	case <-ctx.Done():
		return selection.SupportResult{}, &selection.SelectionError{Selector: s.Name(), Reason: "interrupted", Err: ctx.Err()}
	}
}

func validate(res selection.SupportResult, fm *dataset.FeatureMatrix, k int) error {
	if len(res.Mask) != fm.NumFeatures() {
		return fmt.Errorf("mask has %d entries for %d features", len(res.Mask), fm.NumFeatures())
	}
	if n := res.Count(); n > k {
		return fmt.Errorf("selected %d features, more than k=%d", n, k)
	}
	if len(res.Selected) != res.Count() {
		return fmt.Errorf("selected list has %d names but mask marks %d", len(res.Selected), res.Count())
	}
	return nil
}

func (a *Aggregator) record(name string, elapsed time.Duration, res selection.SupportResult, err error) {
	logger := log.With().Str("selector", name).Dur("duration", elapsed).Logger()
	if a.metrics != nil {
		a.metrics.SelectorRunsInc(name)
		a.metrics.SelectorDurationObserve(name, elapsed.Seconds())
	}

	if err != nil {
		if selection.IsTimeout(err) {
			logger.Warn().Err(err).Msg("Selector timed out, dropping its votes")
			if a.metrics != nil {
				a.metrics.SelectorTimeoutsInc(name)
			}
		} else {
			logger.Warn().Err(err).Msg("Selector failed, dropping its votes")
		}
		if a.metrics != nil {
			a.metrics.SelectorFailuresInc(name)
		}
		return
	}

	if a.metrics != nil {
		a.metrics.SelectedFeaturesSet(name, float64(res.Count()))
	}
	logger.Info().Int("selected", res.Count()).Strs("features", res.Selected).Msg("Selector finished")
}
