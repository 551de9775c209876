// Package camera takes the node's per-cycle still through rpicam-still and hands the
// file to the hub.
package camera

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/smartcrop/sensor-node/internal/clock"
	"github.com/smartcrop/sensor-node/internal/config"
)

// nameLayout is the timestamp file name the hub sorts images by.
const nameLayout = "01-02-2006@15:04:05"

// run executes an external command and returns its combined output.
var run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

type Camera struct {
	cfg   config.Camera
	clock clock.Clock
}

func New(cfg config.Camera, clk clock.Clock) *Camera {
	return &Camera{cfg: cfg, clock: clk}
}

// Path returns where the next capture is written.
func (c *Camera) Path() string {
	name := "test1"
	if !c.cfg.TestName {
		name = c.clock.Now().Format(nameLayout)
	}
	return filepath.Join(c.cfg.Dir, name+"."+c.cfg.Format)
}

func (c *Camera) args(path string) []string {
	args := []string{
		"--nopreview",
		"--output", path,
		"--width", strconv.Itoa(c.cfg.Width),
		"--height", strconv.Itoa(c.cfg.Height),
		"--encoding", c.cfg.Format,
		"--timeout", strconv.FormatInt(c.cfg.Settle.Milliseconds(), 10),
	}
	if c.cfg.VFlip {
		args = append(args, "--vflip")
	}
	if c.cfg.HFlip {
		args = append(args, "--hflip")
	}
	return args
}

// Capture takes one still and returns the path of the written file. The settle time
// is spent inside rpicam-still, so the call blocks for at least that long.
func (c *Camera) Capture(ctx context.Context) (string, error) {
	if err := os.MkdirAll(c.cfg.Dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create image directory: %w", err)
	}
	path := c.Path()
	log.Info().Str("path", path).Msg("Capturing image")
	out, err := run(ctx, c.cfg.Command, c.args(path)...)
	if err != nil {
		return "", fmt.Errorf("%s failed: %w: %s", c.cfg.Command, err, strings.TrimSpace(string(out)))
	}
	log.Info().Str("path", path).Msg("Image successfully captured")
	return path, nil
}

// Copier copies each captured image to the hub with scp.
type Copier struct {
	// Target is an scp destination such as pi@10.42.0.1:/home/pi/images/.
	Target    string
	KeepLocal bool
}

func (c *Copier) Name() string { return "scp" }

func (c *Copier) HandleImage(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("image %s not found: %w", path, err)
	}
	log.Info().Str("path", path).Str("target", c.Target).Msg("Copying image to hub")
	if out, err := run(ctx, "scp", path, c.Target); err != nil {
		return fmt.Errorf("scp to %s failed: %w: %s", c.Target, err, strings.TrimSpace(string(out)))
	}
	if c.KeepLocal {
		return nil
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to remove local image: %w", err)
	}
	return nil
}
