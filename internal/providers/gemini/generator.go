package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"tadwir/internal/domain"
	"tadwir/internal/ports"
)

const DefaultModel = "gemini-2.5-flash"

// Config configures the Gemini advice generator.
type Config struct {
	APIKey            string
	Model             string
	BaseURL           string
	Timeout           time.Duration
	RequestsPerMinute int
	Burst             int
}

// Generator implements ports.AdviceGenerator on the Gemini API.
type Generator struct {
	client  *genai.Client
	model   string
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewGenerator(ctx context.Context, cfg Config, logger *zap.Logger) (*Generator, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		burst := max(cfg.Burst, 1)
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), burst)
	}

	return &Generator{
		client:  client,
		model:   cfg.Model,
		limiter: limiter,
		logger:  logger.Named("gemini"),
	}, nil
}

// Generate sends one advice request and returns the model text.
func (g *Generator) Generate(ctx context.Context, req ports.AdviceRequest) (string, error) {
	subject := domain.SubjectText
	if len(req.Image) > 0 {
		subject = domain.SubjectImage
	}

	if g.limiter != nil && !g.limiter.Allow() {
		return "", &domain.TransportError{Kind: domain.TransportRateLimited, Subject: subject, Err: errors.New("local request budget exhausted")}
	}

	parts := []*genai.Part{genai.NewPartFromText(req.Prompt)}
	if len(req.Image) > 0 {
		parts = append(parts, genai.NewPartFromBytes(req.Image, req.MIMEType))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	config := &genai.GenerateContentConfig{
		ThinkingConfig: &genai.ThinkingConfig{ThinkingBudget: genai.Ptr[int32](0)},
	}

	started := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return "", classifyError(err, subject)
	}
	g.logger.Debug("generate content",
		zap.String("model", g.model),
		zap.String("subject", string(subject)),
		zap.Duration("elapsed", time.Since(started)),
	)
	return responseText(resp, subject)
}

func classifyError(err error, subject domain.Subject) error {
	kind := domain.TransportFailed

	var apiErr genai.APIError
	switch {
	case errors.As(err, &apiErr):
		if apiErr.Code == http.StatusTooManyRequests || apiErr.Status == "RESOURCE_EXHAUSTED" {
			kind = domain.TransportRateLimited
		}
	case strings.Contains(err.Error(), "429"):
		kind = domain.TransportRateLimited
	}

	return &domain.TransportError{Kind: kind, Subject: subject, Err: err}
}

func responseText(resp *genai.GenerateContentResponse, subject domain.Subject) (string, error) {
	if resp == nil {
		return "", &domain.TransportError{Kind: domain.TransportEmpty, Subject: subject, Err: domain.ErrNoCandidates}
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", &domain.TransportError{
			Kind:    domain.TransportBlocked,
			Subject: subject,
			Err:     fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason),
		}
	}
	if len(resp.Candidates) == 0 {
		return "", &domain.TransportError{Kind: domain.TransportEmpty, Subject: subject, Err: domain.ErrNoCandidates}
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		switch resp.Candidates[0].FinishReason {
		case genai.FinishReasonSafety, genai.FinishReasonBlocklist, genai.FinishReasonProhibitedContent:
			return "", &domain.TransportError{
				Kind:    domain.TransportBlocked,
				Subject: subject,
				Err:     fmt.Errorf("candidate blocked: %s", resp.Candidates[0].FinishReason),
			}
		}
		return "", &domain.TransportError{Kind: domain.TransportEmpty, Subject: subject, Err: errors.New("empty response text")}
	}
	return text, nil
}
