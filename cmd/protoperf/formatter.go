package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/netforge/protoperf/internal/results"
	"github.com/netforge/protoperf/pkg/diagnostic"
	"github.com/netforge/protoperf/pkg/types"
)

// printResults renders the run for a human or a pipe. JSON mode emits the
// row schema plus comparisons verbatim; otherwise a fixed-width table, with
// the rule separators dropped when stdout is not a terminal or -plain is
// set.
func printResults(sink *results.Sink, plan *types.ExperimentPlan, cfg *cliConfig) error {
	rows := sink.Rows()

	if cfg.JSON {
		return printJSON(sink, plan, rows)
	}

	pretty := !cfg.Plain && term.IsTerminal(int(os.Stdout.Fd()))
	if pretty {
		fmt.Println(strings.Repeat("=", 104))
		fmt.Println("Protocol Latency Comparison Results")
		fmt.Println(strings.Repeat("=", 104))
	}

	fmt.Printf("%-8s %-9s %-8s %-8s %-8s %-8s %-9s %-9s %-9s %-9s %-9s %-6s\n",
		"Protocol", "Delay(ms)", "Loss(%)", "BW(mbps)", "Requests", "Success",
		"Min(ms)", "Mean(ms)", "Med(ms)", "P95(ms)", "P99(ms)", "Flags")
	if pretty {
		fmt.Println(strings.Repeat("-", 104))
	}

	for _, row := range rows {
		fmt.Printf("%-8s %-9d %-8d %-8d %-8d %-8d %-9.3f %-9.3f %-9.3f %-9.3f %-9.3f %-6s\n",
			row.Protocol, row.DelayMs, row.LossPercent, row.BandwidthMbps,
			row.Requests, row.Successes,
			row.MinMs, row.MeanMs, row.MedianMs, row.P95Ms, row.P99Ms,
			rowFlags(row))
	}

	printComparisons(sink, plan, pretty)
	return nil
}

func rowFlags(row types.ResultRow) string {
	var flags []string
	if row.Filtered {
		flags = append(flags, "F")
	}
	if row.Degraded {
		flags = append(flags, "D")
	}
	if row.Missing {
		flags = append(flags, "M")
	}
	if len(flags) == 0 {
		return "-"
	}
	return strings.Join(flags, "")
}

func printComparisons(sink *results.Sink, plan *types.ExperimentPlan, pretty bool) {
	if len(plan.Protocols) < 2 {
		return
	}

	if pretty {
		fmt.Println(strings.Repeat("=", 104))
		fmt.Println("Pairwise Comparison (positive = second protocol slower)")
		fmt.Println(strings.Repeat("-", 104))
	}

	for i := 0; i < len(plan.Protocols); i++ {
		for j := i + 1; j < len(plan.Protocols); j++ {
			a, b := plan.Protocols[i].Name, plan.Protocols[j].Name
			comparisons, err := sink.Compare(a, b)
			if err != nil {
				continue
			}
			for _, c := range comparisons {
				fmt.Printf("%s vs %s @ %s: mean %+.1f%%, p95 %+.1f%%\n",
					a, b, c.Profile, c.MeanRatio*100, c.P95Ratio*100)
				v := diagnostic.Interpret(diagnostic.Params{
					Comparison: c,
					RowA:       findRow(sink, a, c.Profile),
					RowB:       findRow(sink, b, c.Profile),
				})
				fmt.Printf("  -> %s\n", v.Summary)
				if len(v.Concerns) > 0 {
					fmt.Printf("     concerns: %s\n", strings.Join(v.Concerns, ", "))
				}
			}
		}
	}
}

// findRow locates the result row for one protocol under one profile. The
// zero row is returned when the protocol never ran under that profile.
func findRow(sink *results.Sink, protocol string, profile types.NetworkProfile) types.ResultRow {
	for _, row := range sink.Rows() {
		if row.Protocol == protocol &&
			row.DelayMs == profile.DelayMs &&
			row.LossPercent == profile.LossPercent &&
			row.BandwidthMbps == profile.BandwidthMbps {
			return row
		}
	}
	return types.ResultRow{}
}

func printJSON(sink *results.Sink, plan *types.ExperimentPlan, rows []types.ResultRow) error {
	out := struct {
		Rows        []types.ResultRow  `json:"rows"`
		Comparisons []types.Comparison `json:"comparisons,omitempty"`
	}{Rows: rows}

	for i := 0; i < len(plan.Protocols); i++ {
		for j := i + 1; j < len(plan.Protocols); j++ {
			comparisons, err := sink.Compare(plan.Protocols[i].Name, plan.Protocols[j].Name)
			if err != nil {
				continue
			}
			out.Comparisons = append(out.Comparisons, comparisons...)
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
