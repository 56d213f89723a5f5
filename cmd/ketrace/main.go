// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command ketrace starts a kernel trace session, applies an optional
// filter, and dumps the captured events as a table once the session
// stops.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/tracehound/ketrace/filter"
	"github.com/tracehound/ketrace/schema"
	"github.com/tracehound/ketrace/system"
	"github.com/tracehound/ketrace/trace"
)

func main() {
	var (
		flagMajors   = flag.String("majors", "Process,Thread", "comma-separated list of kernel event majors to enable")
		flagDuration = flag.Duration("duration", 5*time.Second, "how long to capture before stopping")
		flagFilter   = flag.String("filter", "", "single-event filter expression applied before printing")
		flagPairs    = flag.String("pairs", "", "pair-matching expression (handle, memory, or custom(...))")
	)
	flag.Parse()
	if flag.NArg() > 0 {
		flag.Usage()
		os.Exit(1)
	}

	reg := schema.DefaultRegistry
	ctrl := trace.New(reg, newPlatformBackend(reg))
	sys := system.New(reg, ctrl, system.Options{})

	if err := enableMajors(sys, *flagMajors); err != nil {
		log.Fatal(err)
	}

	if *flagFilter != "" {
		expr, err := filter.ParseSingle(*flagFilter)
		if err != nil {
			log.Fatalf("ketrace: invalid -filter: %v", err)
		}
		sys.Filter.SetSingle(expr)
	}
	if *flagPairs != "" {
		rules, err := filter.ParsePairs(*flagPairs, reg)
		if err != nil {
			log.Fatalf("ketrace: invalid -pairs: %v", err)
		}
		sys.Filter.SetPairs(rules)
	}

	onComplete := func(err error) {
		if err != nil {
			log.Printf("ketrace: session ended: %v", err)
		}
	}
	if err := sys.Start("", onComplete); err != nil {
		log.Fatalf("ketrace: start: %v", err)
	}

	fmt.Fprintf(os.Stderr, "ketrace: capturing for %s (majors: %s)\n", *flagDuration, *flagMajors)
	time.Sleep(*flagDuration)

	if err := sys.Stop(); err != nil {
		log.Printf("ketrace: stop: %v", err)
	}

	dumpTable(sys)
}

// enableMajors toggles each comma-separated major name on in sys's
// controller, with every minor of that major enabled.
func enableMajors(sys *system.System, csv string) error {
	es := sys.Controller.Enables()
	for _, name := range strings.Split(csv, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		idx, ok := sys.Registry.MajorIndex(name)
		if !ok {
			return fmt.Errorf("ketrace: unknown major %q", name)
		}
		if err := es.ToggleMajor(idx, true); err != nil {
			return err
		}
		for _, minor := range sys.Registry.Majors[idx].Minors {
			j, _ := sys.Registry.MinorIndex(idx, minor.Name)
			if err := es.ToggleMinor(idx, j, true); err != nil {
				return err
			}
		}
	}
	return nil
}
