package shipping

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/rs/zerolog"

	"github.com/mapleandrye/backend-bakeshop/internal/obs"
)

var (
	// ErrInvalidZIP flags a destination that is not a bare five-digit ZIP.
	ErrInvalidZIP = errors.New("shipping: destination ZIP must be exactly five digits")
	// ErrInvalidItemCount flags an empty or negative cart.
	ErrInvalidItemCount = errors.New("shipping: item count must be positive")
)

var zipRe = regexp.MustCompile(`^\d{5}$`)

// Result is the outcome of a rate batch.
type Result struct {
	Rates      []Rate     `json:"rates"`
	Dimensions Dimensions `json:"dimensions"`
	Fallback   bool       `json:"fallback"`
	Attempts   int        `json:"-"`
}

// Quoter fans rate lookups out per mail class, retries empty batches, and
// falls back to the synthetic table when the carrier stays unreachable.
// Individual class failures are soft; only a fully empty batch retries.
type Quoter struct {
	Carrier     Carrier
	OriginZIP   string
	MailClasses []MailClass
	// MaxAttempts bounds full-batch retries, default 3.
	MaxAttempts int
	// RetryBackoff is the pause between batch attempts, default 100ms.
	RetryBackoff time.Duration
	// StaggerStep delays the i-th outbound call by i*StaggerStep so the
	// carrier never sees the whole batch in the same instant. Default 100ms.
	StaggerStep time.Duration
	Logger      zerolog.Logger
	// Progress, when set, receives a monotonic completion percentage. It is
	// held at 99 until the batch settles, then called with 100.
	Progress func(pct int)
}

func (q *Quoter) classes() []MailClass {
	if len(q.MailClasses) > 0 {
		return q.MailClasses
	}
	return DefaultMailClasses()
}

func (q *Quoter) maxAttempts() int {
	if q.MaxAttempts > 0 {
		return q.MaxAttempts
	}
	return 3
}

func (q *Quoter) retryBackoff() time.Duration {
	if q.RetryBackoff > 0 {
		return q.RetryBackoff
	}
	return 100 * time.Millisecond
}

func (q *Quoter) staggerStep() time.Duration {
	if q.StaggerStep > 0 {
		return q.StaggerStep
	}
	return 100 * time.Millisecond
}

type classResult struct {
	class MailClass
	rate  Rate
	err   error
}

// Quote validates the destination, estimates the parcel, and gathers one rate
// per mail class. The ZIP check runs before any network traffic.
func (q *Quoter) Quote(ctx context.Context, destinationZIP string, itemCount int) (Result, error) {
	if !zipRe.MatchString(destinationZIP) {
		q.countBatch("invalid")
		return Result{}, fmt.Errorf("%w: %q", ErrInvalidZIP, destinationZIP)
	}
	if itemCount <= 0 {
		q.countBatch("invalid")
		return Result{}, ErrInvalidItemCount
	}
	if q.Carrier == nil {
		return Result{}, errors.New("shipping: carrier not configured")
	}

	dims := CalculateDimensions(itemCount)
	classes := q.classes()
	maxAttempts := q.maxAttempts()
	tracker := progressTracker{report: q.Progress, totalCalls: len(classes) * maxAttempts}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		rates, err := q.runBatch(ctx, destinationZIP, dims, classes, &tracker)
		if err != nil {
			return Result{}, err
		}
		if len(rates) > 0 {
			rates = Dedupe(rates)
			SortByPrice(rates)
			tracker.done()
			q.countBatch("success")
			return Result{Rates: rates, Dimensions: dims, Attempts: attempt}, nil
		}
		if attempt == maxAttempts {
			break
		}
		q.Logger.Warn().
			Int("attempt", attempt).
			Str("destination_zip", destinationZIP).
			Msg("empty rate batch, retrying")
		timer := time.NewTimer(q.retryBackoff())
		select {
		case <-ctx.Done():
			timer.Stop()
			return Result{}, ctx.Err()
		case <-timer.C:
		}
	}

	q.Logger.Warn().
		Str("destination_zip", destinationZIP).
		Int("attempts", maxAttempts).
		Msg("carrier unreachable, serving fallback rates")
	tracker.done()
	q.countBatch("fallback")
	if obs.ShippingFallbackServedTotal != nil {
		obs.ShippingFallbackServedTotal.Inc()
	}
	return Result{Rates: FallbackRates(dims.WeightLb), Dimensions: dims, Fallback: true, Attempts: maxAttempts}, nil
}

// runBatch launches one staggered call per class and waits for all of them.
// Per-class failures are logged and dropped; only a cancelled context aborts.
func (q *Quoter) runBatch(ctx context.Context, destinationZIP string, dims Dimensions, classes []MailClass, tracker *progressTracker) ([]Rate, error) {
	results := make(chan classResult, len(classes))
	for i, class := range classes {
		go func(index int, mailClass MailClass) {
			if delay := time.Duration(index) * q.staggerStep(); delay > 0 {
				timer := time.NewTimer(delay)
				select {
				case <-ctx.Done():
					timer.Stop()
					results <- classResult{class: mailClass, err: ctx.Err()}
					return
				case <-timer.C:
				}
			}
			rate, err := q.Carrier.Rate(ctx, RateRequest{
				OriginZIP:      q.OriginZIP,
				DestinationZIP: destinationZIP,
				Dimensions:     dims,
				MailClass:      mailClass,
			})
			if err != nil {
				results <- classResult{class: mailClass, err: err}
				return
			}
			results <- classResult{class: mailClass, rate: rate}
		}(i, class)
	}

	rates := make([]Rate, 0, len(classes))
	for i := 0; i < len(classes); i++ {
		res := <-results
		tracker.settle()
		switch {
		case res.err == nil:
			q.countCall(res.rate.MailClass, "success")
			rates = append(rates, res.rate)
		case errors.Is(res.err, ErrNoRate):
			q.countCall(res.class, "no_rate")
		default:
			q.countCall(res.class, "error")
			q.Logger.Warn().Err(res.err).
				Str("mail_class", string(res.class)).
				Str("destination_zip", destinationZIP).
				Msg("rate call failed")
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return rates, nil
}

func (q *Quoter) countCall(class MailClass, result string) {
	if obs.ShippingRateCallTotal == nil {
		return
	}
	label := string(class)
	if label == "" {
		label = "unknown"
	}
	obs.ShippingRateCallTotal.WithLabelValues(label, result).Inc()
}

func (q *Quoter) countBatch(result string) {
	if obs.ShippingRateBatchTotal != nil {
		obs.ShippingRateBatchTotal.WithLabelValues(result).Inc()
	}
}

// progressTracker maps settled calls onto a 0-99 percentage, never moving
// backwards across retries, and jumps to 100 on completion.
type progressTracker struct {
	report     func(pct int)
	totalCalls int
	settled    int
	lastPct    int
}

func (t *progressTracker) settle() {
	if t.report == nil || t.totalCalls == 0 {
		return
	}
	t.settled++
	pct := t.settled * 100 / t.totalCalls
	if pct > 99 {
		pct = 99
	}
	if pct > t.lastPct {
		t.lastPct = pct
		t.report(pct)
	}
}

func (t *progressTracker) done() {
	if t.report == nil {
		return
	}
	t.lastPct = 100
	t.report(100)
}
