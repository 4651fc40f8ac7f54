package fetch

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/codebuildervaibhav/creator-analyzer/internal/types"
)

const fetchUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Fetcher downloads a video's media stream. It opens the video page in
// headless Chrome, reads the <video> element's source URL out of the player,
// then downloads that stream over plain HTTP with the headers the CDN expects.
type Fetcher struct {
	mediaDir    string
	userDataDir string
	timeout     time.Duration
	httpClient  *http.Client
}

// NewFetcher creates a media fetcher writing into mediaDir
func NewFetcher(mediaDir, userDataDir string, timeout time.Duration) *Fetcher {
	return &Fetcher{
		mediaDir:    mediaDir,
		userDataDir: userDataDir,
		timeout:     timeout,
		httpClient:  &http.Client{Timeout: 10 * time.Minute},
	}
}

// Fetch acquires the media for one video. If the file is already on disk from
// an earlier run it is reused without opening a browser.
func (f *Fetcher) Fetch(ctx context.Context, stub types.VideoStub) (types.Media, error) {
	if err := os.MkdirAll(f.mediaDir, 0755); err != nil {
		return types.Media{}, fmt.Errorf("failed to create media directory: %v", err)
	}

	mediaPath := filepath.Join(f.mediaDir, fmt.Sprintf("%s.m4a", stub.VideoID))
	if info, err := os.Stat(mediaPath); err == nil && info.Size() > 0 {
		log.Printf("Media for %s already on disk, skipping download", stub.VideoID)
		return types.Media{Path: mediaPath, Size: info.Size()}, nil
	}

	streamURL, err := f.resolveStreamURL(ctx, stub.URL)
	if err != nil {
		return types.Media{}, err
	}

	size, err := f.downloadStream(ctx, streamURL, stub.URL, mediaPath)
	if err != nil {
		return types.Media{}, err
	}

	log.Printf("Media downloaded: %s (%d bytes)", filepath.Base(mediaPath), size)
	return types.Media{Path: mediaPath, Size: size}, nil
}

// resolveStreamURL opens the video page and pulls the player's source URL
func (f *Fetcher) resolveStreamURL(ctx context.Context, pageURL string) (string, error) {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("mute-audio", true),
		chromedp.UserAgent(fetchUserAgent),
	)
	if f.userDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(f.userDataDir))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	browserCtx, cancelTimeout := context.WithTimeout(browserCtx, f.timeout)
	defer cancelTimeout()

	var streamURL string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitVisible("video", chromedp.ByQuery),
		chromedp.Sleep(2*time.Second), // give the player time to attach a source
		chromedp.Evaluate(`(() => {
			const v = document.querySelector('video');
			if (!v) return '';
			return v.currentSrc || v.src || '';
		})()`, &streamURL),
	)
	if err != nil {
		return "", fmt.Errorf("failed to resolve video source: %v", err)
	}
	if streamURL == "" {
		return "", fmt.Errorf("no video source found on page %s", pageURL)
	}
	return streamURL, nil
}

// downloadStream saves the media stream to outputPath and returns its size
func (f *Fetcher) downloadStream(ctx context.Context, streamURL, referer, outputPath string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build download request: %v", err)
	}
	req.Header.Set("User-Agent", fetchUserAgent)
	req.Header.Set("Referer", referer)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to download media stream: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("media stream returned HTTP %d", resp.StatusCode)
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create media file: %v", err)
	}
	defer out.Close()

	size, err := io.Copy(out, resp.Body)
	if err != nil {
		os.Remove(outputPath) // don't leave truncated files for the reuse check
		return 0, fmt.Errorf("failed to write media file: %v", err)
	}
	return size, nil
}
