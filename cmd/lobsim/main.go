// Command lobsim drives one or more books' matching engines over
// normalized event streams to completion and reports each book's
// resulting trade tape, execution reports, and per-order impact
// costs. Simplified from the teacher's cmd/server/server.go (which
// starts a long-running TCP listener under a signal.NotifyContext) to
// a one-shot batch run, since network I/O is out of scope here.
//
// A single book is the common case (-config/-events/-symbol). Extra
// books run concurrently under internal/runner.Supervisor when one or
// more -book SYMBOL=config.yaml=events.jsonl flags are given, per
// SPEC_FULL.md §6's multi-instrument parallel execution allowance.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"

	"lobsim/internal/book"
	"lobsim/internal/common"
	"lobsim/internal/config"
	"lobsim/internal/dispatcher"
	"lobsim/internal/impact"
	"lobsim/internal/matching"
	"lobsim/internal/publisher"
	"lobsim/internal/runner"
	"lobsim/internal/wire"
)

// bookSpec names one book to simulate: its symbol, config file, and
// normalized event stream.
type bookSpec struct {
	symbol     string
	configPath string
	eventsPath string
}

// bookSpecList is a repeatable flag.Value collecting "-book
// SYMBOL=config.yaml=events.jsonl" entries.
type bookSpecList []bookSpec

func (l *bookSpecList) String() string {
	if l == nil {
		return ""
	}
	parts := make([]string, len(*l))
	for i, s := range *l {
		parts[i] = fmt.Sprintf("%s=%s=%s", s.symbol, s.configPath, s.eventsPath)
	}
	return strings.Join(parts, ",")
}

func (l *bookSpecList) Set(value string) error {
	fields := strings.SplitN(value, "=", 3)
	if len(fields) != 3 {
		return fmt.Errorf("expected SYMBOL=config.yaml=events.jsonl, got %q", value)
	}
	*l = append(*l, bookSpec{symbol: fields[0], configPath: fields[1], eventsPath: fields[2]})
	return nil
}

// bookResult is what one book's run leaves behind for the final report.
type bookResult struct {
	symbol string
	pub    *publisher.Publisher
	ledger *impact.Ledger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	configPath := flag.String("config", "configs/book.yaml", "path to the primary book's configuration file")
	eventsPath := flag.String("events", "", "path to the primary book's normalized newline-delimited JSON event stream")
	symbol := flag.String("symbol", "SIM", "instrument symbol for the primary book")
	var extraBooks bookSpecList
	flag.Var(&extraBooks, "book", "additional book to run concurrently, as SYMBOL=config.yaml=events.jsonl (repeatable)")
	flag.Parse()

	if *eventsPath == "" && len(extraBooks) == 0 {
		log.Fatal().Msg("-events is required (or supply one or more -book entries)")
	}

	specs := []bookSpec{}
	if *eventsPath != "" {
		specs = append(specs, bookSpec{symbol: *symbol, configPath: *configPath, eventsPath: *eventsPath})
	}
	specs = append(specs, extraBooks...)

	var (
		mu      sync.Mutex
		results []bookResult
	)

	books := make(map[string]runner.BookRunner, len(specs))
	for _, spec := range specs {
		spec := spec
		disp, result, err := buildBook(spec)
		if err != nil {
			log.Fatal().Err(err).Str("symbol", spec.symbol).Msg("failed to construct book")
		}
		books[spec.symbol] = func() error {
			disp.Drain()
			mu.Lock()
			results = append(results, result)
			mu.Unlock()
			return nil
		}
	}

	sup := runner.NewSupervisor()
	go func() {
		<-ctx.Done()
		log.Info().Msg("shutdown requested, waiting for in-flight books to finish their event drains")
	}()

	if err := sup.Run(books); err != nil {
		log.Error().Err(err).Msg("one or more books failed")
	}

	for _, r := range results {
		report(r)
	}
}

// buildBook wires one book's OrderBook, matching.Engine,
// dispatcher.Dispatcher, publisher.Publisher, and impact.Accountant
// together, and primes the dispatcher's event heap from spec's
// normalized event file.
func buildBook(spec bookSpec) (*dispatcher.Dispatcher, bookResult, error) {
	cfg, err := config.Load(spec.configPath)
	if err != nil {
		return nil, bookResult{}, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, bookResult{}, fmt.Errorf("invalid config: %w", err)
	}

	f, err := os.Open(spec.eventsPath)
	if err != nil {
		return nil, bookResult{}, fmt.Errorf("open event stream: %w", err)
	}
	defer f.Close()

	events, err := wire.DecodeEventStream(f)
	if err != nil {
		return nil, bookResult{}, fmt.Errorf("decode event stream: %w", err)
	}

	b := book.New(spec.symbol)
	pub := publisher.New(b)

	var seq uint64
	nextSeq := func() uint64 {
		seq++
		return seq
	}
	engine := matching.New(b, cfg.MatchingConfig(), nextSeq)

	disp := dispatcher.New(engine, pub, cfg.DispatcherConfig())
	symbol := spec.symbol
	disp.SubscribeReports(func(r common.ExecutionReport) {
		log.Info().Str("symbol", symbol).Msg(r.String())
	})

	ledger := impact.NewLedger()
	disp.EnableImpactAccounting(impact.New(cfg.ImpactParams()), ledger)

	for _, ev := range events {
		id := ev.OrderID
		if ev.Order != nil {
			id = ev.Order.OrderID
		}
		if !disp.Submit(ev) {
			log.Warn().Str("symbol", symbol).Str("orderID", id).Msg("event rejected at submission")
		}
	}

	return disp, bookResult{symbol: spec.symbol, pub: pub, ledger: ledger}, nil
}

func report(r bookResult) {
	snap := r.pub.Snapshot(10)
	log.Info().
		Str("symbol", r.symbol).
		Bool("haveBid", snap.HaveBid).
		Int64("bestBid", int64(snap.BestBid)).
		Bool("haveAsk", snap.HaveAsk).
		Int64("bestAsk", int64(snap.BestAsk)).
		Msg("final snapshot")

	seen := make(map[string]bool)
	for _, t := range r.pub.Tape() {
		log.Info().Str("symbol", r.symbol).Msg(t.String())
		if seen[t.TakerOrderID] {
			continue
		}
		seen[t.TakerOrderID] = true
		cost := r.ledger.For(t.TakerOrderID)
		log.Info().
			Str("symbol", r.symbol).
			Str("orderID", t.TakerOrderID).
			Float64("spreadCost", cost.SpreadCost).
			Float64("temporaryImpact", cost.TemporaryImpact).
			Float64("permanentImpact", cost.PermanentImpact).
			Float64("latencyCost", cost.LatencyCost).
			Msg("impact accounting")
	}
}
