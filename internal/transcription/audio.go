package transcription

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"
)

// NormalizeAudio converts any media file to 16kHz mono WAV format, which is
// what Whisper expects
func NormalizeAudio(ctx context.Context, inputPath string) (string, error) {
	outputPath := filepath.Join(os.TempDir(), fmt.Sprintf("normalized_%s.wav", uuid.New().String()))

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-i", inputPath,
		"-ar", "16000", // 16kHz sample rate
		"-ac", "1", // Mono
		"-c:a", "pcm_s16le", // 16-bit PCM
		"-vn", // Drop the video stream
		"-y",  // Overwrite output
		outputPath,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("ffmpeg failed: %v\nOutput: %s", err, string(output))
	}

	return outputPath, nil
}
