package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"sitebot/internal/domain"
)

const (
	defaultAPIBase       = "http://localhost:11434"
	defaultModel         = "llama3.1:8b"
	defaultTimeout       = 5 * time.Second
	defaultMinConfidence = 0.4
)

// Extractor implements domain.AIExtractor against an Ollama-style
// /api/generate endpoint. One attempt per message, bounded timeout, no
// retry: on any failure the pipeline degrades to Unknown.
type Extractor struct {
	apiBase       string
	model         string
	minConfidence float64
	client        *http.Client
	logger        *slog.Logger
}

type Config struct {
	APIBase        string
	Model          string
	TimeoutSeconds int
	MinConfidence  float64
	Logger         *slog.Logger
}

func New(cfg Config) *Extractor {
	if cfg.APIBase == "" {
		cfg.APIBase = defaultAPIBase
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = defaultMinConfidence
	}
	return &Extractor{
		apiBase:       cfg.APIBase,
		model:         cfg.Model,
		minConfidence: cfg.MinConfidence,
		client:        &http.Client{Timeout: timeout},
		logger:        cfg.Logger,
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// aiResult is the JSON shape the model is asked to produce.
type aiResult struct {
	Intent        string   `json:"intent"`
	Amount        *float64 `json:"amount"`
	Description   string   `json:"description"`
	Priority      string   `json:"priority"`
	Confidence    float64  `json:"confidence"`
	Clarification string   `json:"clarification"`
}

// Extract sends the message plus a short project context to the model and
// parses its structured answer. All failure modes (transport, timeout,
// malformed output, untrustworthy confidence) return ErrAIUnavailable.
func (e *Extractor) Extract(ctx context.Context, text string, acct domain.AccountContext) (*domain.AIExtraction, error) {
	prompt := fmt.Sprintf(extractPromptTemplate, contextBlock(acct), text)

	raw, err := e.generate(ctx, prompt)
	if err != nil {
		if e.logger != nil {
			e.logger.Warn("ai extraction call failed", "err", err)
		}
		return nil, domain.ErrAIUnavailable
	}

	jsonStr := extractJSONObject(raw)
	if jsonStr == "" {
		return nil, domain.ErrAIUnavailable
	}

	var res aiResult
	if err := json.Unmarshal([]byte(jsonStr), &res); err != nil {
		return nil, domain.ErrAIUnavailable
	}

	kind := intentKind(res.Intent)
	if kind == domain.IntentUnknown && res.Clarification == "" {
		return nil, domain.ErrAIUnavailable
	}
	// A hallucinated amount must not be trusted below the confidence floor.
	if res.Confidence < e.minConfidence {
		return nil, domain.ErrAIUnavailable
	}

	intent := domain.ParsedIntent{
		Kind:        kind,
		Amount:      res.Amount,
		Description: strings.TrimSpace(res.Description),
		Priority:    priority(res.Priority),
		Confidence:  clamp01(res.Confidence),
	}
	return &domain.AIExtraction{Intent: intent, Clarification: strings.TrimSpace(res.Clarification)}, nil
}

// Healthy probes the endpoint, matching the upstream /api/tags check.
func (e *Extractor) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.apiBase+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("ai endpoint not reachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ai endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

func (e *Extractor) generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{Model: e.model, Prompt: prompt, Stream: false})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.apiBase+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, string(b))
	}

	var gen generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gen); err != nil {
		return "", err
	}
	return gen.Response, nil
}

// contextBlock renders the account context the model sees: budget, spend
// and the recent category names, largest first.
func contextBlock(acct domain.AccountContext) string {
	var b strings.Builder
	if acct.ProjectName != "" {
		fmt.Fprintf(&b, "- project: %s\n", acct.ProjectName)
	}
	if acct.BudgetAmount > 0 {
		fmt.Fprintf(&b, "- budget: %s\n", domain.FormatAmount(acct.BudgetAmount))
	}
	fmt.Fprintf(&b, "- total spent: %s\n", domain.FormatAmount(acct.TotalSpent))

	if len(acct.CategoryTotals) > 0 {
		names := make([]string, 0, len(acct.CategoryTotals))
		for name := range acct.CategoryTotals {
			names = append(names, name)
		}
		sort.Slice(names, func(i, j int) bool {
			return acct.CategoryTotals[names[i]] > acct.CategoryTotals[names[j]]
		})
		fmt.Fprintf(&b, "- categories: %s\n", strings.Join(names, ", "))
	}
	return b.String()
}

// extractJSONObject locates the first balanced top-level JSON object in s,
// tolerating surrounding prose and code fences.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inStr := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inStr {
			if ch == '\\' {
				i++
				continue
			}
			if ch == '"' {
				inStr = false
			}
			continue
		}
		switch ch {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

func intentKind(s string) domain.IntentKind {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "log_expense":
		return domain.IntentLogExpense
	case "create_task":
		return domain.IntentCreateTask
	case "set_budget":
		return domain.IntentSetBudget
	case "query_expenses":
		return domain.IntentQueryExpenses
	case "log_image":
		return domain.IntentLogImage
	default:
		return domain.IntentUnknown
	}
}

func priority(s string) domain.Priority {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "low":
		return domain.PriorityLow
	case "high":
		return domain.PriorityHigh
	case "medium":
		return domain.PriorityMedium
	default:
		return ""
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
