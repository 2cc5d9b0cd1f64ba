package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"context-capture/src/config"
	"context-capture/src/llm"
	"context-capture/src/logutil"
	"context-capture/src/ocr"
	"context-capture/src/runtimeinit"
	"context-capture/src/screenshot"
)

const (
	maxFileSizeMB = 10
	maxFileSize   = maxFileSizeMB * 1024 * 1024
)

var (
	pngMagic  = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}
	jpegMagic = []byte{0xff, 0xd8, 0xff}
)

type cliOptions struct {
	filePath   string
	jsonOutput bool
	verbose    bool
	ocrOnly    bool
	optimize   bool
	envPath    string
	ocrService string
	llmService string
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	return runWithArgs(normalizeLegacyArgs(os.Args))
}

func runWithArgs(args []string) error {
	if len(args) == 0 {
		args = []string{"capture-file"}
	}

	opts := &cliOptions{}
	cmd := newRootCmd(opts)
	cmd.SetArgs(args[1:])
	return cmd.Execute()
}

func newRootCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "capture-file",
		Short:         "Run OCR and a three-line summary on a PNG or JPEG image",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithOptions(cmd.Context(), *opts, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.filePath, "file", "", "Path to PNG/JPEG file (use '-' for stdin)")
	f.BoolVar(&opts.jsonOutput, "json", false, "Output results as JSON")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose output to stderr")
	f.BoolVar(&opts.ocrOnly, "ocr-only", false, "Print the recognized text and skip the summary")
	f.BoolVar(&opts.optimize, "optimize", false, "Downscale and re-encode the image before OCR")
	f.StringVar(&opts.envPath, "env", "", "Path to a .env file (highest precedence)")
	f.StringVar(&opts.ocrService, "ocr", "", "OCR provider override")
	f.StringVar(&opts.llmService, "llm", "", "LLM provider override")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runWithOptions(ctx context.Context, opts cliOptions, stdout io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	// Configure logging BEFORE any other operations.
	if !opts.verbose {
		log.SetOutput(io.Discard)
	} else {
		log.SetOutput(os.Stderr)
		fmt.Fprintf(os.Stderr, "[verbose] Starting capture-file\n")
	}

	rt, err := runtimeinit.Bootstrap(ctx, runtimeinit.Options{LoadOptions: config.LoadOptions{
		EnvPathOverride:    opts.envPath,
		OCRServiceOverride: opts.ocrService,
		LLMServiceOverride: opts.llmService,
	}})
	if err != nil {
		return err
	}

	s, err := rt.Store.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to read settings: %w", err)
	}
	// Explicit flags win over saved settings.
	if opts.ocrService != "" {
		s.OCRService = rt.Config.OCRService
	}
	if opts.llmService != "" {
		s.LLMService = rt.Config.LLMService
	}

	if opts.verbose {
		fmt.Fprintf(os.Stderr, "[verbose] OCR provider: %s (key %s)\n", s.OCRService, logutil.RedactKey(s.APIKeys[s.OCRService]))
		fmt.Fprintf(os.Stderr, "[verbose] LLM provider: %s (key %s)\n", s.LLMService, logutil.RedactKey(s.APIKeys[s.LLMService]))
	}

	p := &pipeline{ocr: ocr.NewService(), llm: llm.NewService(), optimize: opts.optimize, skipSummary: opts.ocrOnly}
	if err := p.ocr.Configure(ocr.Config{Provider: s.OCRService, APIKeys: s.APIKeys, HTTPClient: rt.HTTPClient}); err != nil {
		return fmt.Errorf("OCR provider: %w", err)
	}
	if !opts.ocrOnly {
		if err := p.llm.Configure(llm.Config{Provider: s.LLMService, APIKeys: s.APIKeys, Models: rt.LLMModels(), HTTPClient: rt.HTTPClient}); err != nil {
			return fmt.Errorf("LLM provider: %w", err)
		}
	}

	img, err := readImage(opts.filePath, os.Stdin, opts.verbose)
	if err != nil {
		return err
	}
	res, err := p.run(ctx, img)
	if err != nil {
		return err
	}
	res.Source = opts.filePath
	return outputResult(stdout, res, opts.jsonOutput)
}

// normalizeLegacyArgs maps single-dash long flags to their cobra form.
func normalizeLegacyArgs(args []string) []string {
	if len(args) == 0 {
		return args
	}
	normalized := make([]string, len(args))
	copy(normalized, args)
	for i := 1; i < len(normalized); i++ {
		arg := normalized[i]
		if strings.HasPrefix(arg, "-") && !strings.HasPrefix(arg, "--") && len(arg) > 2 && arg[2] != '=' {
			normalized[i] = "-" + arg
		}
	}
	return normalized
}

// readImage loads path ('-' for r) and checks size and format.
func readImage(path string, r io.Reader, verbose bool) (screenshot.ImagePayload, error) {
	var data []byte
	var err error
	if path == "-" {
		if verbose {
			fmt.Fprintf(os.Stderr, "[verbose] Reading image from stdin\n")
		}
		data, err = io.ReadAll(io.LimitReader(r, maxFileSize+1))
		if err != nil {
			return screenshot.ImagePayload{}, fmt.Errorf("failed to read from stdin: %w", err)
		}
	} else {
		if verbose {
			fmt.Fprintf(os.Stderr, "[verbose] Reading image from file: %s\n", path)
		}
		data, err = os.ReadFile(path)
		if err != nil {
			return screenshot.ImagePayload{}, fmt.Errorf("failed to read file %s: %w", path, err)
		}
	}
	return validateImage(data)
}

func validateImage(data []byte) (screenshot.ImagePayload, error) {
	if len(data) == 0 {
		return screenshot.ImagePayload{}, fmt.Errorf("input file is empty")
	}
	if len(data) > maxFileSize {
		return screenshot.ImagePayload{}, fmt.Errorf("input file exceeds maximum size of %d MB", maxFileSizeMB)
	}
	switch {
	case bytes.HasPrefix(data, pngMagic):
		return screenshot.ImagePayload{MIMEType: screenshot.MIMEPNG, Data: data}, nil
	case bytes.HasPrefix(data, jpegMagic):
		return screenshot.ImagePayload{MIMEType: screenshot.MIMEJPEG, Data: data}, nil
	}
	return screenshot.ImagePayload{}, fmt.Errorf("input is not a valid PNG or JPEG file (invalid magic number)")
}

type pipeline struct {
	ocr         *ocr.Service
	llm         *llm.Service
	optimize    bool
	skipSummary bool
}

// CaptureResult is the JSON output shape.
type CaptureResult struct {
	Text       string  `json:"text"`
	Summary    string  `json:"summary,omitempty"`
	Confidence int     `json:"confidence"`
	Source     string  `json:"source"`
	Timestamp  string  `json:"timestamp"`
	Duration   float64 `json:"duration_seconds"`
	CharCount  int     `json:"character_count"`
}

func (p *pipeline) run(ctx context.Context, img screenshot.ImagePayload) (CaptureResult, error) {
	start := time.Now()
	if p.optimize {
		img = screenshot.OptimizeForOCR(img)
	}

	ocrRes := p.ocr.ExtractText(ctx, img)
	if !ocrRes.Success {
		return CaptureResult{}, fmt.Errorf("OCR failed: %s", ocrRes.Error)
	}
	if strings.TrimSpace(ocrRes.Text) == "" {
		return CaptureResult{}, fmt.Errorf("%s", ocr.MsgNoText)
	}
	log.Printf("OCR: extracted %d characters (confidence %d)", len(ocrRes.Text), ocrRes.Confidence)

	res := CaptureResult{
		Text:       ocrRes.Text,
		Confidence: ocrRes.Confidence,
		CharCount:  len([]rune(ocrRes.Text)),
	}
	if !p.skipSummary {
		sum := p.llm.GenerateSummary(ctx, ocrRes.Text)
		if !sum.Success {
			return CaptureResult{}, fmt.Errorf("summary failed: %s", sum.Error)
		}
		res.Summary = sum.Summary
	}
	res.Duration = time.Since(start).Seconds()
	res.Timestamp = time.Now().UTC().Format(time.RFC3339)
	return res, nil
}

func outputResult(w io.Writer, res CaptureResult, jsonOutput bool) error {
	if jsonOutput {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(res); err != nil {
			return fmt.Errorf("failed to encode JSON output: %w", err)
		}
		return nil
	}
	if res.Summary != "" {
		_, err := fmt.Fprint(w, res.Summary)
		return err
	}
	_, err := fmt.Fprint(w, res.Text)
	return err
}
