// Package openai generates analysis programs with an OpenAI compatible chat model.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/thomassthus-stack/Tommytiger/internal/capability"
	"github.com/thomassthus-stack/Tommytiger/internal/domain/analysis"
	"github.com/thomassthus-stack/Tommytiger/internal/ports"
)

const (
	DefaultModel       = "gpt-4o-mini"
	DefaultTemperature = float32(0.1)
)

// ErrEmptyCompletion is returned when the model answers without any code.
var ErrEmptyCompletion = errors.New("model returned no code")

// Config selects the model and endpoint.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	// Capabilities is the allow-list advertised to the model. Nil means capability.Default().
	Capabilities *capability.List
}

type chatClient interface {
	CreateChatCompletion(ctx context.Context, request goopenai.ChatCompletionRequest) (goopenai.ChatCompletionResponse, error)
}

// Generator implements ports.CodeGenerator.
type Generator struct {
	client      chatClient
	model       string
	temperature float32
	caps        *capability.List
}

var _ ports.CodeGenerator = (*Generator)(nil)

// New builds a Generator. An API key is required.
func New(cfg Config) (*Generator, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("openai: api key must be provided")
	}
	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return newGenerator(goopenai.NewClientWithConfig(clientCfg), cfg), nil
}

func newGenerator(client chatClient, cfg Config) *Generator {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.Capabilities == nil {
		cfg.Capabilities = capability.Default()
	}
	return &Generator{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		caps:        cfg.Capabilities,
	}
}

// Generate asks the model for a program answering prompt over the previewed dataset.
func (g *Generator) Generate(ctx context.Context, prompt, preview string, lang analysis.Language) (string, error) {
	if lang == "" {
		lang = analysis.LanguageJavaScript
	}
	resp, err := g.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: g.temperature,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: SystemPrompt(g.caps, lang)},
			{Role: goopenai.ChatMessageRoleUser, Content: userPrompt(prompt, preview)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}

	code := stripFences(resp.Choices[0].Message.Content)
	if code == "" {
		return "", ErrEmptyCompletion
	}
	return code, nil
}

// SystemPrompt renders the instructions given to the model for lang.
func SystemPrompt(caps *capability.List, lang analysis.Language) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a data analyst writing %s.\n", languageName(lang))
	fmt.Fprintf(&b, "A dataset is already bound as '%s'. Analyze it as the user asks.\n\n", capability.DatasetName)
	b.WriteString("Only these names are available:\n")
	b.WriteString(caps.Describe())
	fmt.Fprintf(&b, "Language built-ins you may also use: %s.\n\n", strings.Join(caps.Intrinsics(lang), ", "))
	b.WriteString(languageHints(lang))
	fmt.Fprintf(&b, "\nYou MUST assign '%s' the JSON encoding of an object shaped like:\n", capability.ResultName)
	b.WriteString(`{"text": "<explanation>", "tables": [{"name": "<name>", "data": [{"col": value}]}], "charts": [{"title": "<title>", "description": "<what the chart shows>"}]}`)
	b.WriteString("\n\nRules:\n")
	b.WriteString("- Reply with code only, no prose.\n")
	b.WriteString("- Do not read files, use the network or import modules.\n")
	b.WriteString("- Do not print the result.\n")
	return b.String()
}

func languageName(lang analysis.Language) string {
	if lang == analysis.LanguagePython {
		return "Python"
	}
	return "JavaScript"
}

func languageHints(lang analysis.Language) string {
	if lang == analysis.LanguagePython {
		return "df is a pandas DataFrame; pd, np and plt are pandas, numpy and matplotlib.pyplot.\n"
	}
	return `df is a frame object with columns, length, col(name), head(n), select(names),
where(col, op, value), sortBy(col, ascending), groupBy(by, col, agg), valueCounts(col),
describe(col), sum/mean/min/max/median/count(col) and toRecords().
np has mean, median, std, var, sum, min, max, cumsum, percentile, corr, round, arange and unique.
plt.bar/line/scatter/hist/pie(title, description) return chart descriptions.
pd.DataFrame(records) builds a new frame.
`
}

func userPrompt(prompt, preview string) string {
	return fmt.Sprintf("Request:\n%s\n\nHere is df.head():\n%s", strings.TrimSpace(prompt), preview)
}

// stripFences removes a surrounding markdown code block if the model added one.
func stripFences(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```")
	if newline := strings.IndexByte(content, '\n'); newline >= 0 {
		// drop the language tag
		content = content[newline+1:]
	} else {
		content = ""
	}
	if end := strings.LastIndex(content, "```"); end >= 0 {
		content = content[:end]
	}
	return strings.TrimSpace(content)
}
