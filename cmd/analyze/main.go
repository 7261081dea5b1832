// Command analyze reads a JSON array of observations and writes the state
// report to stdout.
//
//	analyze -in prices.json -symbol BTCUSDT -classifier hmm -vectors
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

	"MarketState/internal/di"
	"MarketState/internal/domain/models"
	"MarketState/internal/usecase"
	"MarketState/pkg/config"
	applogger "MarketState/pkg/logger"
)

func main() {
	var (
		configPath = flag.String("config", "", "optional config file path")
		in         = flag.String("in", "-", "observations file, - for stdin")
		symbol     = flag.String("symbol", "ADHOC", "symbol the observations belong to")
		classifier = flag.String("classifier", "", "rule or hmm (default from config)")
		window     = flag.Int("window", 0, "percentile window (default from config)")
		hindsight  = flag.Bool("hindsight", false, "rank against the whole series")
		vectors    = flag.Bool("vectors", false, "include every state vector")
		pretty     = flag.Bool("pretty", true, "indent the report")
	)
	flag.Parse()

	if err := run(*configPath, *in, usecase.AnalyzeParams{
		Symbol:           *symbol,
		Classifier:       *classifier,
		PercentileWindow: *window,
		Hindsight:        *hindsight,
		IncludeVectors:   *vectors,
	}, *pretty, os.Stdout); err != nil {
		log.Fatalf("analyze: %v", err)
	}
}

func run(configPath, in string, p usecase.AnalyzeParams, pretty bool, out io.Writer) error {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	// Logs go to stderr so stdout carries only the report.
	cfg.Logger.Output = "stderr"
	l, err := applogger.New(&cfg.Logger)
	if err != nil {
		return err
	}

	obs, err := readObservations(in)
	if err != nil {
		return err
	}

	c, err := di.ProvideCache(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	svc, err := di.ProvideAnalysisService(cfg, nil, di.ProvideModelStore(c, cfg), di.ProvideNarrator(cfg), nil, l)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rep, err := svc.AnalyzeObservations(ctx, p, obs)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(rep)
}

func readObservations(path string) ([]models.Observation, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open observations: %w", err)
		}
		defer f.Close()
		r = f
	}

	var obs []models.Observation
	if err := json.NewDecoder(r).Decode(&obs); err != nil {
		return nil, fmt.Errorf("decode observations: %w", err)
	}
	return obs, nil
}
