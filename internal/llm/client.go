package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/meeting-summary-bot/internal/models"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// Client represents a Gemini LLM client
type Client struct {
	model       models.ModelType
	logger      zerolog.Logger
	genaiClient *genai.Client
}

// NewClient creates a new Gemini LLM client. The underlying genai client is
// created once here and shared by every summary request until Close.
// Extra options are passed to the genai client after the API key.
func NewClient(ctx context.Context, apiKey string, model models.ModelType, logger zerolog.Logger, opts ...option.ClientOption) (*Client, error) {
	genaiClient, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	c := &Client{
		model:       model,
		logger:      logger.With().Str("component", "llm").Logger(),
		genaiClient: genaiClient,
	}
	c.logger.Info().Str("model", model.String()).Msg("Gemini client created")
	return c, nil
}

// Close closes the LLM client and releases resources
func (c *Client) Close() error {
	if err := c.genaiClient.Close(); err != nil {
		c.logger.Error().Err(err).Msg("Failed to close Gemini client")
		return err
	}
	c.logger.Info().Msg("Gemini client closed")
	return nil
}

// Model returns the model used for summaries
func (c *Client) Model() models.ModelType {
	return c.model
}

// Summarize asks the model for the key points and action items of a meeting log.
// An empty string with a nil error means the model produced no text,
// including when the prompt or the response was blocked.
func (c *Client) Summarize(ctx context.Context, transcript string) (string, error) {
	startTime := time.Now()

	model := c.genaiClient.GenerativeModel(c.model.String())

	c.logger.Debug().
		Str("model", c.model.String()).
		Int("transcript_length", len(transcript)).
		Msg("Sending meeting log to LLM")

	resp, err := model.GenerateContent(ctx, summaryParts(transcript)...)
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		c.logger.Warn().
			Err(err).
			Str("model", c.model.String()).
			Dur("duration", time.Since(startTime)).
			Msg("LLM response blocked, no summary produced")
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	text := responseText(resp)

	c.logger.Info().
		Str("model", c.model.String()).
		Int("response_length", len([]rune(text))).
		Dur("duration", time.Since(startTime)).
		Msg("LLM summary generated")

	return text, nil
}

// summaryParts attaches the meeting log as a plain text document followed by the instructions
func summaryParts(transcript string) []genai.Part {
	return []genai.Part{
		genai.Blob{
			MIMEType: "text/plain",
			Data:     []byte(transcript),
		},
		genai.Text(SummaryPrompt),
	}
}

// responseText concatenates the text parts of the first candidate
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}

	candidate := resp.Candidates[0]
	if candidate == nil || candidate.Content == nil {
		return ""
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}

	return text.String()
}
