package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"tadwir/internal/advice"
	"tadwir/internal/domain"
	"tadwir/internal/ports"
)

// Advisor turns user requests into parsed advice. Requests are not
// cancelable; each one gets a sequence token and only the most recently
// issued request may update the published outcome.
type Advisor struct {
	generator  ports.AdviceGenerator
	stats      *StatsEngine
	normalizer ports.QueryNormalizer
	events     ports.EventSink
	logger     *zap.Logger

	seq     atomic.Uint64
	mu      sync.Mutex
	current domain.AdviceOutcome
}

func NewAdvisor(
	generator ports.AdviceGenerator,
	stats *StatsEngine,
	normalizer ports.QueryNormalizer,
	events ports.EventSink,
	logger *zap.Logger,
) *Advisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Advisor{
		generator:  generator,
		stats:      stats,
		normalizer: normalizer,
		events:     events,
		logger:     logger.Named("advisor"),
	}
}

// AnalyzeImage asks the model about a photographed item. A successful parse
// counts as one scanned item.
func (a *Advisor) AnalyzeImage(ctx context.Context, image []byte, mimeType string) (domain.AdviceRecord, error) {
	seq := a.seq.Add(1)
	if len(image) == 0 {
		a.publish(seq, nil, domain.ErrEmptyImage)
		return domain.AdviceRecord{}, domain.ErrEmptyImage
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	req := ports.AdviceRequest{Prompt: advice.VisionPrompt(), Image: image, MIMEType: mimeType}
	return a.run(ctx, seq, req, domain.SubjectImage, domain.CounterItemsScanned)
}

// Lookup asks the model about a named item. Library lookups count as a scan
// and a search; voice lookups count as a search only.
func (a *Advisor) Lookup(ctx context.Context, query string, source domain.LookupSource) (domain.AdviceRecord, error) {
	seq := a.seq.Add(1)
	query = strings.TrimSpace(query)
	if a.normalizer != nil && query != "" {
		query = strings.TrimSpace(a.normalizer.Normalize(query))
	}
	if query == "" {
		a.publish(seq, nil, domain.ErrEmptyQuery)
		return domain.AdviceRecord{}, domain.ErrEmptyQuery
	}

	counters := []domain.Counter{domain.CounterSearchesMade}
	if source != domain.LookupSourceVoice {
		counters = []domain.Counter{domain.CounterItemsScanned, domain.CounterSearchesMade}
	}
	req := ports.AdviceRequest{Prompt: advice.LibraryPrompt(query)}
	return a.run(ctx, seq, req, domain.SubjectText, counters...)
}

// Current returns the last outcome applied to visible state.
func (a *Advisor) Current() domain.AdviceOutcome {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

func (a *Advisor) run(ctx context.Context, seq uint64, req ports.AdviceRequest, subject domain.Subject, counters ...domain.Counter) (domain.AdviceRecord, error) {
	if a.generator == nil {
		err := &domain.TransportError{Kind: domain.TransportFailed, Subject: subject, Err: errors.New("no advice generator configured")}
		a.publish(seq, nil, err)
		return domain.AdviceRecord{}, err
	}

	raw, err := a.generator.Generate(ctx, req)
	if err != nil {
		err = classifyTransport(err, subject)
		a.logger.Warn("advice request failed", zap.Uint64("seq", seq), zap.Error(err))
		a.publish(seq, nil, err)
		return domain.AdviceRecord{}, err
	}

	record, err := advice.Parse(raw)
	if err != nil {
		a.logger.Warn("advice response rejected", zap.Uint64("seq", seq), zap.Error(err))
		a.publish(seq, nil, err)
		return domain.AdviceRecord{}, err
	}

	if a.stats != nil {
		if _, err := a.stats.Record(ctx, counters...); err != nil {
			a.logger.Error("record usage failed", zap.Error(err))
		}
	}
	a.publish(seq, &record, nil)
	return record, nil
}

func (a *Advisor) publish(seq uint64, record *domain.AdviceRecord, err error) {
	outcome := domain.AdviceOutcome{Seq: seq, Record: record, Message: domain.UserMessage(err)}

	a.mu.Lock()
	if seq != a.seq.Load() {
		a.mu.Unlock()
		a.logger.Debug("dropping superseded advice outcome", zap.Uint64("seq", seq))
		return
	}
	a.current = outcome
	a.mu.Unlock()

	if a.events == nil {
		return
	}
	if err != nil {
		a.events.AdviceFailed(outcome)
		return
	}
	a.events.AdviceReady(outcome)
}

// classifyTransport keeps generator errors inside the closed taxonomy.
func classifyTransport(err error, subject domain.Subject) error {
	var transport *domain.TransportError
	if errors.As(err, &transport) {
		if transport.Subject == "" {
			tagged := *transport
			tagged.Subject = subject
			return &tagged
		}
		return transport
	}
	return &domain.TransportError{
		Kind:    domain.TransportFailed,
		Subject: subject,
		Err:     fmt.Errorf("generate advice: %w", err),
	}
}
