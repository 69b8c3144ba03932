// Command preflight checks local print files and prints one JSON result per
// file. The exit status is 2 when any file failed or could not be read, 1
// when any file only has warnings, and 0 otherwise.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/tendant/print-preflight/internal/config"
	"github.com/tendant/print-preflight/internal/engine"
	"github.com/tendant/print-preflight/internal/policy"
	"github.com/tendant/print-preflight/pkg/preflight"
)

const (
	exitOK      = 0
	exitWarning = 1
	exitFailed  = 2
)

// options are the parsed command line flags
type options struct {
	Tier     string
	MIME     string
	ThumbDir string
	Jobs     int
}

// fileResult is one line of output
type fileResult struct {
	File      string            `json:"file"`
	RunID     string            `json:"run_id,omitempty"`
	Result    *preflight.Result `json:"result,omitempty"`
	Thumbnail string            `json:"thumbnail,omitempty"`
	Error     string            `json:"error,omitempty"`
}

func main() {
	cfg := config.Load()

	var opts options
	fs := flag.NewFlagSet("preflight", flag.ExitOnError)
	fs.StringVar(&opts.Tier, "tier", cfg.DefaultTier, "policy tier (free, pro, business)")
	fs.StringVar(&opts.MIME, "mime", "", "declared MIME type for every file")
	fs.StringVar(&opts.ThumbDir, "thumb", "", "directory to write thumbnails into")
	fs.IntVar(&opts.Jobs, "j", cfg.Concurrency, "files to check in parallel")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: preflight [-tier t] [-mime m] [-thumb dir] [-j n] file...\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(os.Args[1:])

	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(exitFailed)
	}

	// Logs go to stderr, results to stdout
	log.SetOutput(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng := cfg.Engine(nil, nil, nil)
	code := run(ctx, eng, cfg.Resolver(), opts, fs.Args(), os.Stdout)
	stop()
	os.Exit(code)
}

// run checks every file and writes the results in argument order
func run(ctx context.Context, eng *engine.Engine, resolver *policy.Resolver, opts options, files []string, stdout io.Writer) int {
	if opts.ThumbDir != "" {
		if err := os.MkdirAll(opts.ThumbDir, 0755); err != nil {
			log.Printf("Failed to create thumbnail dir: %v", err)
			return exitFailed
		}
	}

	p := resolver.Resolve(opts.Tier)
	results := make([]fileResult, len(files))

	g, gctx := errgroup.WithContext(ctx)
	if opts.Jobs > 0 {
		g.SetLimit(opts.Jobs)
	}
	for i, file := range files {
		g.Go(func() error {
			results[i] = checkFile(gctx, eng, p, opts, file)
			// One bad file never stops the others
			return nil
		})
	}
	_ = g.Wait()

	enc := json.NewEncoder(stdout)
	code := exitOK
	for _, r := range results {
		if err := enc.Encode(r); err != nil {
			log.Printf("Failed to write result: %v", err)
			return exitFailed
		}
		code = max(code, exitCode(r))
	}
	return code
}

func checkFile(ctx context.Context, eng *engine.Engine, p policy.Config, opts options, file string) fileResult {
	res := fileResult{File: file}

	info, err := os.Stat(file)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	if info.IsDir() {
		res.Error = "is a directory"
		return res
	}

	out, err := eng.Run(ctx, engine.Request{
		Path:         file,
		DeclaredMIME: opts.MIME,
		Size:         info.Size(),
		Policy:       p,
		Thumbnail:    opts.ThumbDir != "",
	})
	if out == nil {
		res.Error = err.Error()
		return res
	}
	defer out.Cleanup()

	res.RunID = out.RunID
	if err != nil {
		log.Printf("[%s] %v", out.RunID, err)
	}

	result := out.Result
	if result.ThumbnailPath != "" {
		dst := filepath.Join(opts.ThumbDir, thumbName(file))
		if err := copyFile(result.ThumbnailPath, dst); err != nil {
			log.Printf("[%s] Failed to keep thumbnail: %v", out.RunID, err)
		} else {
			res.Thumbnail = dst
		}
	}
	// The run directory is removed on return
	result.ThumbnailPath = ""
	result.ConvertedPath = ""
	res.Result = &result
	return res
}

func exitCode(r fileResult) int {
	if r.Result == nil {
		return exitFailed
	}
	switch r.Result.Overall {
	case preflight.StatusError:
		return exitFailed
	case preflight.StatusWarning:
		return exitWarning
	}
	return exitOK
}

// thumbName derives a stable thumbnail name from the source file name
func thumbName(file string) string {
	base := filepath.Base(file)
	return base[:len(base)-len(filepath.Ext(base))] + ".thumb.jpg"
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
