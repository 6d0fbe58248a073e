// Package ai wraps the OpenAI API behind the narrow capabilities the
// pipeline needs: structured extraction, embeddings, and voice transcription.
package ai

import (
	"context"
	"fmt"
	"sort"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/rolograph/rolograph/pkg/graph"
	"github.com/rolograph/rolograph/pkg/logging"
)

const tracerName = "rolograph/ai"

// Client is an OpenAI-backed implementation of the extraction, embedding and
// transcription capabilities.
type Client struct {
	api          *openai.Client
	extractModel string
	embedModel   string
	tracer       trace.Tracer
	logger       logging.Logger
}

// Options configures model selection for a Client.
type Options struct {
	ExtractModel string
	EmbedModel   string
	BaseURL      string
}

// NewClient creates an OpenAI client for the given API key.
func NewClient(apiKey string, opts Options, logger logging.Logger) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}

	return &Client{
		api:          openai.NewClientWithConfig(cfg),
		extractModel: opts.ExtractModel,
		embedModel:   opts.EmbedModel,
		tracer:       otel.Tracer(tracerName),
		logger:       logger.With(logging.F("component", "ai-client")),
	}
}

// Complete sends a chat completion request in JSON mode and returns the raw
// response text for the caller to decode.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	ctx, span := c.tracer.Start(ctx, "ai.complete",
		trace.WithAttributes(attribute.String("model", c.extractModel)))
	defer span.End()

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.extractModel,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: 0.1,
	})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}

	span.SetAttributes(
		attribute.Int("prompt_tokens", resp.Usage.PromptTokens),
		attribute.Int("completion_tokens", resp.Usage.CompletionTokens),
	)
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Reason answers a natural-language query over a set of retrieved facts,
// returning a short ranked explanation in the language of the query. Plain
// text, not JSON: the output goes straight to the user.
func (c *Client) Reason(ctx context.Context, query string, facts []string) (string, error) {
	ctx, span := c.tracer.Start(ctx, "ai.reason",
		trace.WithAttributes(attribute.String("model", c.extractModel)))
	defer span.End()

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.extractModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: reasonSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: reasonUserPrompt(query, facts)},
		},
		Temperature: 0.2,
	})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("reasoning failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("reasoning returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

const reasonSystemPrompt = `You answer questions about the user's personal
contacts using only the facts provided. Rank the most relevant people first
and say in one line each why they match. If nothing matches, say so.
Answer in the language of the question.`

func reasonUserPrompt(query string, facts []string) string {
	var b strings.Builder
	b.WriteString("Question: ")
	b.WriteString(query)
	b.WriteString("\n\nKnown facts:\n")
	for _, f := range facts {
		b.WriteString("- ")
		b.WriteString(f)
		b.WriteString("\n")
	}
	return b.String()
}

// Embed returns the embedding vector for a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch returns one embedding per input text, in input order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	ctx, span := c.tracer.Start(ctx, "ai.embed_batch",
		trace.WithAttributes(
			attribute.String("model", c.embedModel),
			attribute.Int("batch_size", len(texts)),
		))
	defer span.End()

	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model:      openai.EmbeddingModel(c.embedModel),
		Input:      texts,
		Dimensions: graph.EmbeddingDim,
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding response size mismatch: got %d, want %d", len(resp.Data), len(texts))
	}

	// The API documents index-annotated results; sort rather than assume
	// response order matches input order.
	sort.Slice(resp.Data, func(i, j int) bool {
		return resp.Data[i].Index < resp.Data[j].Index
	})

	vectors := make([][]float32, len(texts))
	for i, d := range resp.Data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}

// Transcribe converts a voice recording into text using Whisper.
func (c *Client) Transcribe(ctx context.Context, audioPath string) (string, error) {
	ctx, span := c.tracer.Start(ctx, "ai.transcribe")
	defer span.End()

	resp, err := c.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: audioPath,
	})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("transcription failed: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}
