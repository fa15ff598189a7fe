// Command typeimage-convert builds a flashcard import file from local images.
//
// Each argument is word=path. Images are scaled down to fit -max pixels and
// embedded as data URLs:
//
//	typeimage-convert -o fruits.json apple=apple.jpg banana=banana.png
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"github.com/maruel/typeimage/internal/cards"
)

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "typeimage-convert: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	maxSize := flag.Int("max", cards.DefaultOptions.MaxSize, "Largest width or height in pixels")
	quality := flag.Int("quality", cards.DefaultOptions.JPEGQuality, "JPEG quality for JPEG sources")
	output := flag.String("o", "", "Output file (default: stdout)")
	verbose := flag.Bool("v", false, "Log each converted image")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: typeimage-convert [flags] word=path...\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:   level,
		NoColor: !isatty.IsTerminal(os.Stderr.Fd()),
	})))

	if flag.NArg() == 0 {
		flag.Usage()
		return errors.New("no images")
	}
	opts := cards.Options{MaxSize: *maxSize, JPEGQuality: *quality}
	if opts.MaxSize <= 0 || opts.JPEGQuality < 1 || opts.JPEGQuality > 100 {
		return errors.New("-max must be positive and -quality within 1..100")
	}
	items := make([]*cards.Item, 0, flag.NArg())
	for _, arg := range flag.Args() {
		word, path, ok := strings.Cut(arg, "=")
		if !ok {
			return fmt.Errorf("expected word=path, got %q", arg)
		}
		data, err := os.ReadFile(path) //nolint:gosec // G304: user supplied path.
		if err != nil {
			return err
		}
		it, err := cards.Convert(word, data, opts)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		slog.Info("Converted", "word", it.Word, "path", path, "bytes", len(it.Image))
		items = append(items, it)
	}
	return write(*output, items)
}

func write(path string, items []*cards.Item) (err error) {
	var w io.Writer = os.Stdout
	if path != "" {
		f, err := os.Create(path) //nolint:gosec // G304: user supplied path.
		if err != nil {
			return err
		}
		defer func() {
			if cerr := f.Close(); err == nil {
				err = cerr
			}
		}()
		w = f
	}
	return cards.Export(w, items)
}
