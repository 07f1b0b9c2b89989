// Package pandoc converts between Word documents and HTML with the pandoc binary.
package pandoc

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"time"

	"github.com/yungbote/docsync-backend/internal/pkg/ctxutil"
	"github.com/yungbote/docsync-backend/internal/platform/envutil"
	"github.com/yungbote/docsync-backend/internal/platform/logger"
)

// Converter requires pandoc in PATH (or PANDOC_BIN).
type Converter interface {
	AssertReady(ctx context.Context) error
	// DocxToHTML renders docx as HTML. Embedded media is extracted under the
	// media directory in a folder named after itemID.
	DocxToHTML(ctx context.Context, itemID string, docx []byte) (string, error)
	// HTMLToDocx renders html as docx, taking styles from the reference document.
	HTMLToDocx(ctx context.Context, html string, reference []byte) ([]byte, error)
}

type Config struct {
	Bin      string
	MediaDir string
	WorkDir  string
	Timeout  time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		Bin:      envutil.String("PANDOC_BIN", "pandoc"),
		MediaDir: envutil.String("PANDOC_MEDIA_DIR", "./public/media"),
		WorkDir:  envutil.String("PANDOC_WORK_DIR", os.TempDir()),
		Timeout:  envutil.Duration("PANDOC_TIMEOUT", 60*time.Second),
	}
}

type converter struct {
	log *logger.Logger
	cfg Config
}

func New(log *logger.Logger, cfg Config) Converter {
	if cfg.Bin == "" {
		cfg.Bin = "pandoc"
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &converter{log: log.With("service", "Pandoc"), cfg: cfg}
}

func (c *converter) AssertReady(ctx context.Context) error {
	if _, err := exec.LookPath(c.cfg.Bin); err != nil {
		return fmt.Errorf("missing required binary %q in PATH: %w", c.cfg.Bin, err)
	}
	if c.cfg.MediaDir != "" {
		if err := os.MkdirAll(c.cfg.MediaDir, 0o755); err != nil {
			return fmt.Errorf("create media dir: %w", err)
		}
	}
	return nil
}

var unsafeDirChars = regexp.MustCompile(`[^A-Za-z0-9_.!-]`)

func (c *converter) DocxToHTML(ctx context.Context, itemID string, docx []byte) (string, error) {
	if len(docx) == 0 {
		return "", fmt.Errorf("pandoc: empty docx input")
	}
	args := []string{"-f", "docx", "-t", "html"}
	if c.cfg.MediaDir != "" && itemID != "" {
		dir := filepath.Join(c.cfg.MediaDir, unsafeDirChars.ReplaceAllString(itemID, "_"))
		args = append(args, "--extract-media", dir)
	}
	out, err := c.run(ctx, docx, args...)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (c *converter) HTMLToDocx(ctx context.Context, html string, reference []byte) ([]byte, error) {
	work, err := os.MkdirTemp(c.cfg.WorkDir, "pandoc-*")
	if err != nil {
		return nil, fmt.Errorf("pandoc: create work dir: %w", err)
	}
	defer os.RemoveAll(work)

	outPath := filepath.Join(work, "out.docx")
	args := []string{"-f", "html", "-t", "docx", "-o", outPath}
	if len(reference) > 0 {
		refPath := filepath.Join(work, "reference.docx")
		if err := os.WriteFile(refPath, reference, 0o600); err != nil {
			return nil, fmt.Errorf("pandoc: write reference doc: %w", err)
		}
		args = append(args, "--reference-doc", refPath)
	}
	if _, err := c.run(ctx, []byte(html), args...); err != nil {
		return nil, err
	}
	out, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("pandoc: read output: %w", err)
	}
	return out, nil
}

func (c *converter) run(ctx context.Context, stdin []byte, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctxutil.Default(ctx), c.cfg.Timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.cfg.Bin, args...)
	cmd.Stdin = bytes.NewReader(stdin)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	start := time.Now()
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("pandoc %v failed: %w; stderr=%s", args[:4], err, stderr.String())
	}
	c.log.Debug("pandoc conversion", "from", args[1], "to", args[3], "duration_ms", time.Since(start).Milliseconds())
	return stdout.Bytes(), nil
}
