package fetch

import (
	"context"
	"time"

	"github.com/chromedp/chromedp"
)

const renderTimeout = 60 * time.Second

var (
	chromedpExecAllocator = chromedp.NewExecAllocator
	chromedpContext       = chromedp.NewContext
	chromedpRunner        = chromedp.Run
)

// renderPage loads the address in a headless browser and returns the
// document markup after scripts have run. Only used as a fallback when the
// plain markup comes back without the embedded data payload.
func renderPage(ctx context.Context, url string) ([]byte, error) {
	allocCtx, cancelAllocator := chromedpExecAllocator(ctx, buildRenderOptions()...)
	defer cancelAllocator()

	browserCtx, cancelBrowser := chromedpContext(allocCtx)
	defer cancelBrowser()

	runCtx, cancelRun := context.WithTimeout(browserCtx, renderTimeout)
	defer cancelRun()

	var html string
	err := chromedpRunner(runCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return nil, err
	}
	return []byte(html), nil
}

func buildRenderOptions() []chromedp.ExecAllocatorOption {
	return []chromedp.ExecAllocatorOption{
		chromedp.NoDefaultBrowserCheck,
		chromedp.NoFirstRun,
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("mute-audio", true),
	}
}
