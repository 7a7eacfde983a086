package botreply

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"conversa_backend/platform/config"
	"conversa_backend/platform/logger"
)

// kimiGenerator talks to an OpenAI-compatible chat completions API
// (Moonshot/Kimi by default).
type kimiGenerator struct {
	baseURL      string
	apiKey       string
	model        string
	systemPrompt string
	client       *http.Client
	log          *logger.Logger
}

func newKimiGenerator(cfg config.BotConfig, log *logger.Logger) *kimiGenerator {
	return &kimiGenerator{
		baseURL:      strings.TrimRight(cfg.GetBotBaseURL(), "/"),
		apiKey:       cfg.GetBotAPIKey(),
		model:        cfg.GetBotModel(),
		systemPrompt: cfg.GetBotSystemPrompt(),
		client:       &http.Client{Timeout: 30 * time.Second},
		log:          log,
	}
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error interface{} `json:"error"`
}

func (g *kimiGenerator) Reply(ctx context.Context, message string, history []Turn) (string, error) {
	messages := make([]openAIMessage, 0, len(history)+2)
	if g.systemPrompt != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: g.systemPrompt})
	}
	for _, turn := range history {
		messages = append(messages, openAIMessage{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, openAIMessage{Role: "user", Content: message})

	payload := map[string]interface{}{
		"model":    g.model,
		"messages": messages,
	}

	jsonBody, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode model response: %v", err)
	}
	if result.Error != nil {
		return "", fmt.Errorf("model api error: %v", result.Error)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("model api error: empty choices")
	}

	reply := strings.TrimSpace(result.Choices[0].Message.Content)
	if reply == "" {
		return "", fmt.Errorf("model returned an empty reply")
	}
	return reply, nil
}
