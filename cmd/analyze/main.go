package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"ats-matcher/internal/analyses"
	"ats-matcher/internal/bootstrap"
	"ats-matcher/internal/export"
	"ats-matcher/internal/shared/config"
	"ats-matcher/internal/shared/telemetry"
)

func main() {
	resumePath := flag.String("resume", "", "Path to the resume PDF")
	jd := flag.String("jd", "", "Job description text, or @path to read it from a file")
	mode := flag.String("mode", "match", "Analysis mode: match or review")
	extractMode := flag.String("extract", "", "Extraction mode: text or image (default from config)")
	model := flag.String("model", "", "Pin a model instead of resolving one")
	truncate := flag.Bool("truncate", false, "Truncate resume and job description to the configured limits")
	exportPath := flag.String("export", "", "Write the analysis as indented JSON to this path")
	noColor := flag.Bool("no-color", false, "Disable colored output")
	verbose := flag.Bool("v", false, "Log pipeline events to stderr")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		exitErr(err.Error())
	}

	telemetry.SetOutput(os.Stderr)
	if *verbose {
		telemetry.SetLevel("debug")
	} else {
		telemetry.SetLevel("error")
	}

	if strings.TrimSpace(*resumePath) == "" {
		exitErr("resume path is required")
	}
	resume, err := os.ReadFile(*resumePath)
	if err != nil {
		exitErr(fmt.Sprintf("read resume: %v", err))
	}
	jobDescription, err := readJobDescription(*jd)
	if err != nil {
		exitErr(err.Error())
	}

	if *model != "" {
		cfg.LLMModel = *model
	}
	if *extractMode != "" {
		cfg.ExtractMode = *extractMode
	}
	if *truncate {
		cfg.TruncateInputs = true
	}
	if err := cfg.Validate(); err != nil {
		exitErr(err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		exitErr(fmt.Sprintf("bootstrap: %v", err))
	}

	analysis, err := app.Service.Analyze(ctx, analyses.Request{
		Mode:           *mode,
		JobDescription: jobDescription,
		Resume:         resume,
		FileName:       filepath.Base(*resumePath),
	})
	if err != nil {
		exitErr(err.Error())
	}

	writeReport(os.Stdout, analysis, !*noColor && isTerminal(os.Stdout))

	if *exportPath != "" {
		data, err := export.Render(analysis)
		if err != nil {
			exitErr(fmt.Sprintf("render export: %v", err))
		}
		if err := os.WriteFile(*exportPath, data, 0o644); err != nil {
			exitErr(fmt.Sprintf("write export: %v", err))
		}
		fmt.Fprintf(os.Stderr, "wrote %s\n", *exportPath)
	}
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

func exitErr(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
