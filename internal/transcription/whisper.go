package transcription

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/codebuildervaibhav/creator-analyzer/internal/types"
)

// WhisperTranscriber wraps Python's OpenAI Whisper for transcription
type WhisperTranscriber struct {
	modelName string
	threads   int
	mu        sync.Mutex // one transcription at a time; the model is memory-hungry
}

// NewWhisperTranscriber creates a new transcriber using Python Whisper
func NewWhisperTranscriber(modelName string, threads int) *WhisperTranscriber {
	if modelName == "" {
		modelName = "small"
	}

	log.Printf("Initializing Python Whisper with model: %s", modelName)
	log.Printf("Note: Whisper availability will be verified on first transcription")

	return &WhisperTranscriber{
		modelName: modelName,
		threads:   threads,
	}
}

// Transcribe normalizes the media file to 16kHz mono WAV and runs Whisper on
// it. language may be "auto" to let Whisper detect it.
func (wt *WhisperTranscriber) Transcribe(ctx context.Context, mediaPath, language string) (types.Transcript, error) {
	wt.mu.Lock()
	defer wt.mu.Unlock()

	normalizedPath, err := NormalizeAudio(ctx, mediaPath)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("audio normalization failed: %v", err)
	}
	defer os.Remove(normalizedPath)

	log.Printf("Transcribing with Python Whisper: %s", filepath.Base(mediaPath))

	tempDir, err := os.MkdirTemp("", "whisper_output")
	if err != nil {
		return types.Transcript{}, fmt.Errorf("failed to create whisper output dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	args := []string{
		"-m", "whisper",
		normalizedPath,
		"--model", wt.modelName,
		"--output_dir", tempDir,
		"--output_format", "json",
		"--fp16", "False", // CPU compatibility
		"--threads", fmt.Sprintf("%d", wt.threads),
	}
	if language != "" && language != "auto" {
		args = append(args, "--language", language)
	}

	cmd := exec.CommandContext(ctx, "python", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return types.Transcript{}, fmt.Errorf("whisper transcription failed: %v\nOutput: %s", err, string(output))
	}

	baseName := strings.TrimSuffix(filepath.Base(normalizedPath), filepath.Ext(normalizedPath))
	jsonPath := filepath.Join(tempDir, baseName+".json")

	jsonData, err := os.ReadFile(jsonPath)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("failed to read whisper output: %v", err)
	}

	var whisperOutput WhisperOutput
	if err := json.Unmarshal(jsonData, &whisperOutput); err != nil {
		return types.Transcript{}, fmt.Errorf("failed to parse whisper JSON: %v", err)
	}

	text := strings.TrimSpace(whisperOutput.Text)
	confidence := averageConfidence(whisperOutput.Segments)

	detected := whisperOutput.Language
	if detected == "" {
		detected = language
	}

	log.Printf("Transcription completed: %d segments, confidence %.2f", len(whisperOutput.Segments), confidence)
	return types.Transcript{Text: text, Confidence: confidence, Language: detected}, nil
}

// averageConfidence converts segment log probabilities into a 0-1 confidence
func averageConfidence(segments []WhisperSegment) float64 {
	if len(segments) == 0 {
		return 0
	}
	var total float64
	for _, seg := range segments {
		total += math.Exp(seg.AvgLogProb)
	}
	avg := total / float64(len(segments))
	if avg > 1 {
		avg = 1
	}
	return avg
}

// WhisperOutput matches Python Whisper's JSON output format
type WhisperOutput struct {
	Text     string           `json:"text"`
	Language string           `json:"language"`
	Segments []WhisperSegment `json:"segments"`
}

// WhisperSegment represents a timestamped segment from Whisper
type WhisperSegment struct {
	ID         int     `json:"id"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Text       string  `json:"text"`
	AvgLogProb float64 `json:"avg_logprob"`
}
