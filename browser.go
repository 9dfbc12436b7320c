package livepager

import (
	"fmt"

	"github.com/go-rod/rod/lib/launcher"
)

// resolveBrowser downloads a compatible Chromium binary if one is not
// already cached and returns the path to the executable. The binary is
// stored in ~/.cache/rod/browser (Unix) or %APPDATA%\rod\browser (Windows).
func resolveBrowser() (string, error) {
	path, err := launcher.NewBrowser().Get()
	if err != nil {
		return "", fmt.Errorf("livepager: downloading browser: %w", err)
	}
	return path, nil
}

// browserPath picks the executable the allocator should start: an explicit
// path wins, then a downloaded one, then chromedp's own lookup.
func (c *config) browserPath() (string, error) {
	if c.chromePath != "" {
		return c.chromePath, nil
	}
	if !c.autoDownload {
		return "", nil
	}
	if path, has := launcher.LookPath(); has {
		return path, nil
	}
	return resolveBrowser()
}
