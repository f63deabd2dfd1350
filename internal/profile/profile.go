// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package profile wraps runtime/pprof for the command line tools.
package profile

import (
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"time"
)

// Config names the profile files to write. Empty names are skipped.
type Config struct {
	CPUProfile   string
	MemProfile   string
	BlockProfile string
	MutexProfile string
}

// Profiler collects the profiles named in its Config between Start and
// Stop.
type Profiler struct {
	config    Config
	cpuFile   *os.File
	startTime time.Time
}

// New creates a profiler with the given configuration.
func New(config Config) *Profiler {
	return &Profiler{config: config}
}

// Start begins profiling.
func (p *Profiler) Start() error {
	p.startTime = time.Now()
	if p.config.BlockProfile != "" {
		runtime.SetBlockProfileRate(1)
	}
	if p.config.MutexProfile != "" {
		runtime.SetMutexProfileFraction(1)
	}
	if p.config.CPUProfile != "" {
		f, err := os.Create(p.config.CPUProfile)
		if err != nil {
			return fmt.Errorf("create CPU profile: %w", err)
		}
		p.cpuFile = f
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			p.cpuFile = nil
			return fmt.Errorf("start CPU profile: %w", err)
		}
	}
	return nil
}

// Stop ends profiling, writes every requested profile and returns the
// profiled duration.
func (p *Profiler) Stop() (time.Duration, error) {
	d := time.Since(p.startTime)

	if p.cpuFile != nil {
		pprof.StopCPUProfile()
		p.cpuFile.Close()
		p.cpuFile = nil
	}
	if p.config.MemProfile != "" {
		runtime.GC() // Get up-to-date statistics
		if err := writeProfile(p.config.MemProfile, "heap"); err != nil {
			return d, err
		}
	}
	if p.config.BlockProfile != "" {
		err := writeProfile(p.config.BlockProfile, "block")
		runtime.SetBlockProfileRate(0)
		if err != nil {
			return d, err
		}
	}
	if p.config.MutexProfile != "" {
		err := writeProfile(p.config.MutexProfile, "mutex")
		runtime.SetMutexProfileFraction(0)
		if err != nil {
			return d, err
		}
	}
	return d, nil
}

func writeProfile(path, name string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s profile: %w", name, err)
	}
	defer f.Close()
	if err := pprof.Lookup(name).WriteTo(f, 0); err != nil {
		return fmt.Errorf("write %s profile: %w", name, err)
	}
	return nil
}

// MemSummary returns a one-line summary of the current memory statistics.
func MemSummary() string {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return fmt.Sprintf("alloc=%dMB total=%dMB sys=%dMB gc=%d heap_objects=%d",
		m.Alloc>>20, m.TotalAlloc>>20, m.Sys>>20, m.NumGC, m.HeapObjects)
}
