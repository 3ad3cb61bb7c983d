// Package openai provides a decision.Evaluator backed by an OpenAI chat model.
//
// The model is asked to answer with a structured verdict object, constrained by
// a JSON schema:
//
//	ev := openai.New(openai.Model("gpt-4o-mini"))
//	gate := decision.NewGate(ev, decision.WithTimeout(10*time.Second))
//
// The client reads OPENAI_API_KEY from the environment unless a client is
// supplied with WithClient. OPENAI_DEFAULT_MODEL overrides the default model.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/casualjim/strix/decision"
	"github.com/casualjim/strix/pkg/slogx"
	"github.com/fogfish/opts"
	"github.com/goccy/go-json"
	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/tidwall/gjson"
)

const defaultInstructions = `You are the decision component of an event-driven agent system.
You receive a context, a yes/no question and a JSON payload.
Answer the question about the payload strictly with true or false and give a one sentence reason.`

// Verdict is the structured answer the model must produce.
type Verdict struct {
	Verdict bool   `json:"verdict" jsonschema:"description=true when the answer to the question is yes"`
	Reason  string `json:"reason" jsonschema:"description=one sentence explaining the verdict"`
}

// Structured outputs accept a subset of JSON schema; these flags keep the
// reflected schema inside it.
var reflector = jsonschema.Reflector{
	AllowAdditionalProperties: false,
	DoNotReference:            true,
}

// VerdictSchema returns the JSON schema of Verdict.
func VerdictSchema() *jsonschema.Schema {
	return reflector.Reflect(Verdict{})
}

// Evaluator asks a chat model to evaluate decisions.
type Evaluator struct {
	client       *openai.Client
	model        string
	instructions string
	logger       *slog.Logger
}

// Option configures an Evaluator.
type Option = opts.Option[Evaluator]

var (
	// Model sets the chat model used for evaluation.
	Model = opts.ForName[Evaluator, string]("model")
	// Instructions replaces the system prompt.
	Instructions = opts.ForName[Evaluator, string]("instructions")
	// WithClient uses a preconfigured client.
	WithClient = opts.ForName[Evaluator, *openai.Client]("client")
	// WithLogger sets the logger.
	WithLogger = opts.ForName[Evaluator, *slog.Logger]("logger")
)

// New creates an evaluator.
func New(options ...Option) *Evaluator {
	e := &Evaluator{
		model:        envStrOrDefault("OPENAI_DEFAULT_MODEL", openai.ChatModelGPT4oMini),
		instructions: defaultInstructions,
		logger:       slog.Default().With(slogx.LoggerName("strix.decision.openai")),
	}
	if err := opts.Apply(e, options); err != nil {
		panic(err)
	}
	if e.client == nil {
		e.client = openai.NewClient()
	}
	return e
}

// Evaluate implements decision.Evaluator.
func (e *Evaluator) Evaluate(ctx context.Context, q decision.Query) (bool, error) {
	prompt, err := buildPrompt(q)
	if err != nil {
		return false, err
	}

	schema, err := json.Marshal(VerdictSchema())
	if err != nil {
		return false, fmt.Errorf("failed to marshal verdict schema: %w", err)
	}
	var schemaValue any
	if err := json.Unmarshal(schema, &schemaValue); err != nil {
		return false, fmt.Errorf("failed to decode verdict schema: %w", err)
	}

	chat, err := e.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: openai.F([]openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(e.instructions),
			openai.UserMessage(prompt),
		}),
		Model:       openai.F(e.model),
		N:           openai.Int(1),
		Temperature: openai.Float(0),
		ResponseFormat: openai.F[openai.ChatCompletionNewParamsResponseFormatUnion](
			openai.ResponseFormatJSONSchemaParam{
				Type: openai.F(openai.ResponseFormatJSONSchemaTypeJSONSchema),
				JSONSchema: openai.F(openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        openai.F("decision_verdict"),
					Description: openai.F("verdict for a yes/no decision"),
					Schema:      openai.F(schemaValue),
					Strict:      openai.Bool(true),
				}),
			},
		),
	})
	if err != nil {
		return false, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(chat.Choices) == 0 {
		return false, errors.New("model returned no choices")
	}

	verdict, reason, err := ParseVerdict(chat.Choices[0].Message.Content)
	if err != nil {
		return false, err
	}
	e.logger.DebugContext(ctx, "decision evaluated",
		slog.String("evaluate", q.Evaluate),
		slog.Bool("verdict", verdict),
		slog.String("reason", reason),
	)
	return verdict, nil
}

// ParseVerdict extracts the verdict from a model answer. It accepts the
// structured object and, for models that ignore the schema, a bare true/false.
func ParseVerdict(content string) (bool, string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return false, "", errors.New("model returned an empty answer")
	}
	if gjson.Valid(content) {
		res := gjson.Parse(content)
		switch res.Type {
		case gjson.True, gjson.False:
			return res.Bool(), "", nil
		case gjson.JSON:
			v := res.Get("verdict")
			if v.Type == gjson.True || v.Type == gjson.False {
				return v.Bool(), res.Get("reason").String(), nil
			}
		}
		return false, "", fmt.Errorf("answer has no boolean verdict: %s", content)
	}
	switch strings.ToLower(strings.Trim(content, " .!\"'")) {
	case "true", "yes":
		return true, "", nil
	case "false", "no":
		return false, "", nil
	}
	return false, "", fmt.Errorf("answer is not a verdict: %q", content)
}

func buildPrompt(q decision.Query) (string, error) {
	data := q.Data
	if data == nil {
		data = map[string]any{}
	}
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal decision data: %w", err)
	}
	var sb strings.Builder
	if q.Context != "" {
		sb.WriteString("Context: ")
		sb.WriteString(q.Context)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Question: ")
	sb.WriteString(q.Evaluate)
	sb.WriteString("\n\nPayload:\n")
	sb.Write(b)
	return sb.String(), nil
}

func envStrOrDefault(key string, def string) string {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	return s
}
