package intent

import (
	"context"
	"log/slog"
	"time"
)

// Classifier maps a chat message, with an optional preview of the current
// document, to a section and operation.
type Classifier interface {
	Classify(ctx context.Context, message, preview string) (Result, error)
}

// DefaultLLMTimeout bounds one primary classification attempt.
const DefaultLLMTimeout = 15 * time.Second

// FallbackClassifier tries a primary classifier under a timeout and falls
// back to the rule table when the primary is absent, fails, times out or
// cannot name a section. It never returns an error.
type FallbackClassifier struct {
	primary  Classifier
	fallback *RuleClassifier
	timeout  time.Duration
	log      *slog.Logger
}

// NewFallbackClassifier composes the two tiers. primary may be nil, in which
// case only the rules run.
func NewFallbackClassifier(primary Classifier, fallback *RuleClassifier, timeout time.Duration, log *slog.Logger) *FallbackClassifier {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if fallback == nil {
		fallback = NewRuleClassifier(log)
	}
	if timeout <= 0 {
		timeout = DefaultLLMTimeout
	}
	return &FallbackClassifier{primary: primary, fallback: fallback, timeout: timeout, log: log}
}

// Classify implements Classifier. The error is always nil.
func (c *FallbackClassifier) Classify(ctx context.Context, message, preview string) (Result, error) {
	if c.primary != nil {
		pctx, cancel := context.WithTimeout(ctx, c.timeout)
		res, err := c.primary.Classify(pctx, message, preview)
		cancel()
		switch {
		case err != nil:
			c.log.Warn("primary classifier failed, using rules", "error", err)
		case res.Unclassified():
			c.log.Debug("primary classifier returned unclassified, using rules")
		default:
			return res, nil
		}
	}
	return c.fallback.ClassifyMessage(message), nil
}
