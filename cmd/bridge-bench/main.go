// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Command bridge-bench times encrypted algorithms end to end and checks
// every lane against its plaintext reference.
//
// Usage:
//
//	bridge-bench -algo sort -strategy B -bits 6,8 -size 4,8 -reps 3
//	bridge-bench -quick
//	bridge-bench -algo tree -cpuprofile cpu.prof -memprofile mem.prof
//	bridge-bench -algo floyd -parallel 4 -batches 8 -mutexprofile mutex.prof
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/luxfi/bridge"
	"github.com/luxfi/bridge/circuits"
	"github.com/luxfi/bridge/internal/profile"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		algo       = flag.String("algo", "all", "algorithm: tree, sort, floyd, db, workload or all")
		strategy   = flag.String("strategy", "B", "comparison strategy: A (scheme switching) or B (encoding switching)")
		bitsFlag   = flag.String("bits", "6,8", "comma separated integer bit widths")
		sizeFlag   = flag.String("size", "", "comma separated sizes (tree depth, array length, nodes, rows)")
		slots      = flag.Int("slots", 4, "instances per ciphertext")
		seed       = flag.Uint64("seed", circuits.DefaultSeed, "input generator seed")
		workload   = flag.String("workload", "W1", "workload for -algo workload: W1, W2 or W3")
		reps       = flag.Int("reps", 1, "repetitions per configuration")
		batches    = flag.Int("batches", 1, "independent batches per run")
		parallel   = flag.Int("parallel", 1, "batches evaluated concurrently")
		quick      = flag.Bool("quick", false, "smallest sizes, one repetition, insecure parameters")
		insecure   = flag.Bool("insecure", false, "use small insecure rings")
		jsonOut    = flag.Bool("json", false, "print reports as JSON lines")
		cpuProfile = flag.String("cpuprofile", "", "write cpu profile to file")
		memProfile = flag.String("memprofile", "", "write memory profile to file")
		blockProf  = flag.String("blockprofile", "", "write goroutine blocking profile to file")
		mutexProf  = flag.String("mutexprofile", "", "write mutex contention profile to file")
	)
	flag.Parse()

	strat, err := bridge.ParseStrategy(*strategy)
	if err != nil {
		return err
	}
	w, err := circuits.ParseWorkload(*workload)
	if err != nil {
		return err
	}
	bitWidths, err := parseInts(*bitsFlag)
	if err != nil {
		return fmt.Errorf("-bits: %w", err)
	}
	var sizes []int
	if *sizeFlag != "" {
		if sizes, err = parseInts(*sizeFlag); err != nil {
			return fmt.Errorf("-size: %w", err)
		}
	}
	algos := circuits.Algorithms
	if *algo != "all" {
		a, err := circuits.ParseAlgorithm(*algo)
		if err != nil {
			return err
		}
		algos = []circuits.Algorithm{a}
	}
	if *quick {
		*reps = 1
		*insecure = true
	}

	prof := profile.New(profile.Config{
		CPUProfile:   *cpuProfile,
		MemProfile:   *memProfile,
		BlockProfile: *blockProf,
		MutexProfile: *mutexProf,
	})
	if err := prof.Start(); err != nil {
		return err
	}
	defer func() {
		d, err := prof.Stop()
		if err != nil {
			log.Printf("profile: %v", err)
		}
		log.Printf("profiled %s, %s", formatDuration(d), profile.MemSummary())
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if !*jsonOut {
		fmt.Fprintln(tw, "ALGO\tSTRATEGY\tBITS\tSIZE\tSLOTS\tLOGN\tLEVELS\tSETUP\tEVAL MEAN\tEVAL MEDIAN\tEVAL STDDEV\tVERIFIED")
	}
	for _, a := range algos {
		for _, bits := range bitWidths {
			for _, size := range sizesFor(a, sizes, *quick) {
				cfg := circuits.RunConfig{
					Algorithm: a,
					Strategy:  strat,
					BitWidth:  bits,
					Size:      size,
					Slots:     *slots,
					Seed:      *seed,
					Workload:  w,
					Insecure:  *insecure,
					Batches:   *batches,
					Parallel:  *parallel,
				}
				if a == circuits.AlgorithmDatabase && bits < 16 {
					cfg.BitWidth = 16
				}
				reports, err := repeat(ctx, cfg, *reps)
				if errors.Is(err, context.Canceled) {
					tw.Flush()
					return err
				}
				if err != nil {
					var pe *bridge.ParameterError
					if errors.As(err, &pe) {
						log.Printf("%s bits=%d size=%d: skipped: %v", a, cfg.BitWidth, size, err)
						continue
					}
					return err
				}
				if *jsonOut {
					enc := json.NewEncoder(os.Stdout)
					for _, r := range reports {
						if err := enc.Encode(r); err != nil {
							return err
						}
					}
					continue
				}
				printRow(tw, reports)
			}
		}
	}
	return tw.Flush()
}

func repeat(ctx context.Context, cfg circuits.RunConfig, reps int) ([]*circuits.Report, error) {
	out := make([]*circuits.Report, 0, reps)
	for i := 0; i < reps; i++ {
		r, err := circuits.Run(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if !r.Verified() {
			log.Printf("%s bits=%d size=%d: %d of %d lanes disagree with the reference",
				cfg.Algorithm, cfg.BitWidth, cfg.Size, r.Mismatches, r.Lanes)
		}
		out = append(out, r)
	}
	return out, nil
}

// sizesFor returns the sizes to sweep for an algorithm.
func sizesFor(a circuits.Algorithm, sizes []int, quick bool) []int {
	if len(sizes) > 0 {
		return sizes
	}
	if quick {
		switch a {
		case circuits.AlgorithmTree, circuits.AlgorithmSort:
			return []int{2}
		case circuits.AlgorithmFloyd:
			return []int{3}
		}
		return []int{4}
	}
	switch a {
	case circuits.AlgorithmTree:
		return []int{2, 4, 6, 8}
	case circuits.AlgorithmSort:
		return []int{4, 8, 16}
	case circuits.AlgorithmFloyd:
		return []int{4, 8}
	case circuits.AlgorithmDatabase:
		return []int{64, 128, 256, 512}
	}
	return []int{1}
}

func printRow(tw *tabwriter.Writer, reports []*circuits.Report) {
	var evals []float64
	verified := true
	var setup time.Duration
	for _, r := range reports {
		for _, d := range r.Eval {
			evals = append(evals, d.Seconds())
		}
		verified = verified && r.Verified()
		setup += r.Setup
	}
	mean, _ := stats.Mean(evals)
	median, _ := stats.Median(evals)
	stddev, _ := stats.StandardDeviation(evals)

	r := reports[0]
	fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\t%s\t%s\t%s\t%t\n",
		label(r), r.Strategy, r.BitWidth, r.Size, r.Slots, r.LogN, r.MaxLevel,
		formatDuration(setup/time.Duration(len(reports))),
		formatDuration(seconds(mean)), formatDuration(seconds(median)), formatDuration(seconds(stddev)),
		verified)
}

func label(r *circuits.Report) string {
	if r.Workload != "" {
		return string(r.Algorithm) + "/" + r.Workload
	}
	return string(r.Algorithm)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func parseInts(s string) ([]int, error) {
	var out []int
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no values in %q", s)
	}
	return out, nil
}
