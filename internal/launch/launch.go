// Package launch opens review links in the user's browser.
package launch

import (
	"context"
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
)

// Runner starts a command without waiting for it to exit.
type Runner func(ctx context.Context, name string, args ...string) error

// StartCommand is the default Runner. The opener outlives ctx.
func StartCommand(_ context.Context, name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

// Opener opens URLs with the platform's default handler.
type Opener struct {
	goos string
	run  Runner
}

// NewOpener creates an Opener for the current platform.
func NewOpener() *Opener {
	return &Opener{goos: runtime.GOOS, run: StartCommand}
}

// NewOpenerFor creates an Opener for goos using run. Used in tests.
func NewOpenerFor(goos string, run Runner) *Opener {
	return &Opener{goos: goos, run: run}
}

// Open launches link. Only http and https links are opened.
func (o *Opener) Open(ctx context.Context, link string) error {
	u, err := url.Parse(link)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("refusing to open %q: not an http(s) link", link)
	}
	name, args := command(o.goos, u.String())
	if err := o.run(ctx, name, args...); err != nil {
		return fmt.Errorf("open %s with %s: %w", link, name, err)
	}
	return nil
}

func command(goos, link string) (string, []string) {
	switch goos {
	case "darwin":
		return "open", []string{link}
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", link}
	default:
		return "xdg-open", []string{link}
	}
}
