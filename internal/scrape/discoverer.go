package scrape

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/codebuildervaibhav/creator-analyzer/internal/types"
)

// Discoverer walks a creator's public feed page with headless Chrome and
// collects video links. It opens one browser session per call; the feed page
// tolerates only a single active navigation, which is also why videos within
// a job are processed sequentially downstream.
type Discoverer struct {
	userDataDir string
	maxScrolls  int
	headless    bool
	timeout     time.Duration
}

// NewDiscoverer creates a feed discoverer
func NewDiscoverer(userDataDir string, maxScrolls int, headless bool, timeout time.Duration) *Discoverer {
	return &Discoverer{
		userDataDir: userDataDir,
		maxScrolls:  maxScrolls,
		headless:    headless,
		timeout:     timeout,
	}
}

var videoIDPattern = regexp.MustCompile(`/video/(\d+)`)

// pageVideo matches the JSON shape produced by the collection script below
type pageVideo struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

const collectScript = `
Array.from(document.querySelectorAll('a[href*="/video/"]')).map(a => ({
	url: a.href,
	title: (a.getAttribute('title') || a.textContent || '').trim()
}))
`

// Discover loads the creator page, scrolls until enough videos are collected
// or maxScrolls is reached, and returns up to max stubs whose ids are not in
// excludeIDs. Page order is preserved.
func (d *Discoverer) Discover(ctx context.Context, targetURL string, max int, excludeIDs []string) ([]types.VideoStub, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, d.allocatorOptions()...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	browserCtx, cancelTimeout := context.WithTimeout(browserCtx, d.timeout)
	defer cancelTimeout()

	log.Printf("Discovering videos: %s (max %d, %d excluded)", targetURL, max, len(excludeIDs))

	err := chromedp.Run(browserCtx,
		chromedp.Navigate(targetURL),
		chromedp.WaitReady("body"),
		chromedp.Sleep(3*time.Second), // let the feed grid render
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open creator page: %v", err)
	}

	excluded := make(map[string]bool, len(excludeIDs))
	for _, id := range excludeIDs {
		excluded[id] = true
	}

	seen := make(map[string]bool)
	var stubs []types.VideoStub

	for scroll := 0; scroll <= d.maxScrolls; scroll++ {
		var found []pageVideo
		err := chromedp.Run(browserCtx,
			chromedp.Evaluate(collectScript, &found, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
				return p.WithReturnByValue(true)
			}),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to collect video links: %v", err)
		}

		for _, pv := range found {
			matches := videoIDPattern.FindStringSubmatch(pv.URL)
			if len(matches) < 2 {
				continue
			}
			id := matches[1]
			if seen[id] || excluded[id] {
				continue
			}
			seen[id] = true

			title := pv.Title
			if title == "" {
				title = "video_" + id
			}
			stubs = append(stubs, types.VideoStub{VideoID: id, Title: title, URL: pv.URL})
			if len(stubs) >= max {
				log.Printf("Discovery reached cap of %d videos after %d scrolls", max, scroll)
				return stubs, nil
			}
		}

		if scroll == d.maxScrolls {
			break
		}

		err = chromedp.Run(browserCtx,
			chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
			chromedp.Sleep(2*time.Second),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scroll feed: %v", err)
		}
	}

	log.Printf("Discovery finished: %d new videos (%d already processed)", len(stubs), len(excludeIDs))
	return stubs, nil
}

// allocatorOptions mirrors the anti-automation flags the feed page checks for
func (d *Discoverer) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", d.headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("mute-audio", true),
		chromedp.UserAgent("Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
	)
	if d.userDataDir != "" {
		// Reuse the profile so a logged-in session survives restarts
		opts = append(opts, chromedp.UserDataDir(d.userDataDir))
	}
	return opts
}
