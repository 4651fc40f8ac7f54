package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/codebuildervaibhav/creator-analyzer/internal/types"
)

const (
	// Prompt samples are capped so a large job doesn't blow the context window
	maxTitleSamples      = 10
	maxTranscriptSamples = 5
)

// DeepSeekAnalyzer produces a creator style report from video titles and
// transcripts via the DeepSeek chat completions API
type DeepSeekAnalyzer struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewDeepSeekAnalyzer creates a style analyzer
func NewDeepSeekAnalyzer(apiKey, baseURL, model string) *DeepSeekAnalyzer {
	if baseURL == "" {
		baseURL = "https://api.deepseek.com"
	}
	if model == "" {
		model = "deepseek-chat"
	}
	return &DeepSeekAnalyzer{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: 3 * time.Minute},
	}
}

const systemPrompt = `You are a senior content strategy analyst. Given a creator's video titles and
spoken-word transcripts, produce a structured Markdown report covering:
1. Positioning and the core value proposition offered to the audience.
2. Recurring content structure, broken into reusable modules.
3. The rhetorical toolkit: recurring phrases, metaphors, emotional hooks, coined terms.
4. Concrete, actionable recommendations for producing content in a similar style.
Support every claim with short quotes from the provided material. Stay objective.`

// Analyze sends the collected titles and transcripts to DeepSeek and returns
// the generated style report
func (a *DeepSeekAnalyzer) Analyze(ctx context.Context, creatorName string, inputs []types.AnalysisInput) (types.Report, error) {
	if a.apiKey == "" {
		return types.Report{}, fmt.Errorf("analysis API key not configured")
	}
	if len(inputs) == 0 {
		return types.Report{}, fmt.Errorf("no transcribed videos to analyze")
	}

	log.Printf("Analyzing style of %s from %d videos", creatorName, len(inputs))

	reqBody := chatRequest{
		Model: a.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildUserPrompt(creatorName, inputs)},
		},
		Temperature: 0.7,
	}

	encoded, err := json.Marshal(reqBody)
	if err != nil {
		return types.Report{}, fmt.Errorf("failed to encode analysis request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.baseURL+"/v1/chat/completions", bytes.NewReader(encoded))
	if err != nil {
		return types.Report{}, fmt.Errorf("failed to build analysis request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return types.Report{}, fmt.Errorf("analysis request failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.Report{}, fmt.Errorf("failed to read analysis response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		return types.Report{}, fmt.Errorf("analysis API returned HTTP %d: %s",
			resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var completion chatResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return types.Report{}, fmt.Errorf("failed to parse analysis response: %v", err)
	}
	if completion.Error != nil {
		return types.Report{}, fmt.Errorf("analysis API error: %s", completion.Error.Message)
	}
	if len(completion.Choices) == 0 {
		return types.Report{}, fmt.Errorf("analysis API returned no choices")
	}

	content := strings.TrimSpace(completion.Choices[0].Message.Content)
	if content == "" {
		return types.Report{}, fmt.Errorf("analysis API returned empty content")
	}

	log.Printf("Style analysis completed (%d chars)", len(content))
	return types.Report{Body: content, Status: "completed"}, nil
}

// buildUserPrompt assembles a bounded sample of titles and transcripts
func buildUserPrompt(creatorName string, inputs []types.AnalysisInput) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Creator: %s\nTotal videos analyzed: %d\n\n", creatorName, len(inputs))

	sb.WriteString("Video titles:\n")
	for i, in := range inputs {
		if i >= maxTitleSamples {
			break
		}
		fmt.Fprintf(&sb, "%d. %s\n", i+1, in.Title)
	}

	sb.WriteString("\nTranscripts:\n")
	count := 0
	for _, in := range inputs {
		if in.Transcript == "" {
			continue
		}
		count++
		if count > maxTranscriptSamples {
			break
		}
		fmt.Fprintf(&sb, "--- %s ---\n%s\n\n", in.Title, in.Transcript)
	}

	return sb.String()
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}
