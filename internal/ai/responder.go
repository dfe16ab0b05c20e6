// Package ai generates fallback replies with Gemini when the scripted flow
// is exhausted or disabled.
package ai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"leadbot-gateway/internal/config"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// DisabledReply is sent when no API key is configured, so the user always
// gets some acknowledgement.
const DisabledReply = "Desculpe, meu sistema de IA não está configurado no momento."

const (
	maxRetries = 5
	baseDelay  = time.Second
)

// Turn is one line of conversation history, oldest first.
type Turn struct {
	FromMe bool
	Body   string
}

// Responder tries a preference-ordered list of Gemini models, retrying
// transient failures with exponential backoff before falling through to the
// next model.
type Responder struct {
	client *genai.Client
	models []string

	// call and sleep are swapped out in tests.
	call  func(ctx context.Context, model string, history []Turn, message string) (string, error)
	sleep func(ctx context.Context, d time.Duration) error
}

// sleepContext waits for the backoff delay but aborts as soon as the context
// is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NewResponder builds a Responder. With no GEMINI_API_KEY configured the
// responder is disabled and answers every call with DisabledReply.
func NewResponder(ctx context.Context, cfg *config.Config) (*Responder, error) {
	r := &Responder{
		models: []string{
			"gemini-2.5-flash",
			"gemini-2.5-flash-lite",
			"gemini-2.0-flash",
		},
		sleep: sleepContext,
	}

	if cfg.GeminiAPIKey == "" {
		log.Println("Warning: GEMINI_API_KEY is not set. AI features will be disabled.")
		return r, nil
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	r.client = client
	r.call = r.callModel
	return r, nil
}

// Generate produces a reply from the conversation history plus the new
// message. It returns "" with the last error when every model is exhausted;
// the caller must treat an empty reply as "send nothing".
func (r *Responder) Generate(ctx context.Context, history []Turn, newMessage string) (string, error) {
	if r.call == nil {
		return DisabledReply, nil
	}

	history = trimLeadingBotTurns(history)

	var lastErr error
	for _, model := range r.models {
		text, err := r.generateWithRetry(ctx, model, history, newMessage)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		log.Printf("Model %s exhausted: %v. Trying next model.", model, err)
	}

	return "", lastErr
}

// generateWithRetry runs one model with bounded exponential backoff on
// retryable failures. Non-retryable errors abort immediately so the caller
// can fall through to the next model.
func (r *Responder) generateWithRetry(ctx context.Context, model string, history []Turn, message string) (string, error) {
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		text, err := r.call(ctx, model, history, message)
		if err == nil {
			return text, nil
		}
		lastErr = err

		if !isRetryable(err) || attempt == maxRetries-1 {
			break
		}

		delay := baseDelay<<uint(attempt) + time.Duration(rand.Int63n(int64(time.Second)))
		log.Printf("Attempt %d/%d on %s failed: %v. Retrying in %s...", attempt+1, maxRetries, model, err, delay.Round(time.Millisecond))
		if err := r.sleep(ctx, delay); err != nil {
			return "", err
		}
	}

	return "", lastErr
}

func (r *Responder) callModel(ctx context.Context, model string, history []Turn, message string) (string, error) {
	gm := r.client.GenerativeModel(model)
	gm.SetMaxOutputTokens(200)
	gm.SetTemperature(0.9)

	cs := gm.StartChat()
	for _, turn := range history {
		role := "user"
		if turn.FromMe {
			role = "model"
		}
		cs.History = append(cs.History, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(turn.Body)},
		})
	}

	resp, err := cs.SendMessage(ctx, genai.Text(message))
	if err != nil {
		return "", err
	}
	return extractText(resp)
}

func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("empty response from model")
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return "", errors.New("no text parts in model response")
	}
	return sb.String(), nil
}

// trimLeadingBotTurns drops bot-authored turns from the front so the chat
// history always begins with a user turn, as the API requires.
func trimLeadingBotTurns(history []Turn) []Turn {
	for len(history) > 0 && history[0].FromMe {
		history = history[1:]
	}
	return history
}

// isRetryable reports whether the error is a rate-limit or transient
// overload, worth another backoff round on the same model.
func isRetryable(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == 429 || apiErr.Code == 503
	}
	msg := err.Error()
	return strings.Contains(msg, "429") || strings.Contains(msg, "503") ||
		strings.Contains(strings.ToLower(msg), "overloaded")
}
