// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/tracehound/ketrace/rowmodel"
	"github.com/tracehound/ketrace/system"
)

var (
	colorOpcode = color.New(color.FgCyan)
	colorPID    = color.New(color.FgYellow)
)

// dumpTable renders every captured event in sys.Events as a six-column
// table, in the same append order the controller delivered them.
func dumpTable(sys *system.System) {
	n := sys.Events.Len()
	if n == 0 {
		fmt.Fprintln(os.Stderr, "ketrace: no events captured")
		return
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"datetime", "pid", "tid", "event", "opcode", "properties"})
	table.SetAutoWrapText(false)
	table.SetRowLine(false)

	for i := 0; i < n; i++ {
		entry, ok := sys.Events.Get(i)
		if !ok {
			continue
		}
		row, err := rowmodel.ProjectRow(&entry.Event)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ketrace: project row %d: %v\n", i, err)
			continue
		}
		table.Append([]string{
			row.Datetime,
			colorPID.Sprintf("%d", row.ProcessID),
			fmt.Sprintf("%d", row.ThreadID),
			row.EventName,
			colorOpcode.Sprint(row.OpcodeName),
			truncate(row.Properties, 120),
		})
	}
	table.Render()
}

// truncate keeps the first n runes of s and appends "..." when it cut
// anything off.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
