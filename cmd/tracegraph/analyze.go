package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tracegraph/tracegraph/internal/graph"
)

var (
	analyzeFormat string
	analyzeOutput string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [gaps|adoption|breadth]",
	Short: "Run read-only analytics over the graph",
	Long: `Compute derived metrics from the committed graph:

  gaps      open strategy items with no tracked implementation work,
            most urgent first
  adoption  per-technology percentage of open implementation work
            relative to open strategy work
  breadth   per-component reach across repository categories

Output formats: table (default), json, csv.`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeFormat, "format", "f", "table", "output format: table, json, csv")
	analyzeCmd.Flags().StringVarP(&analyzeOutput, "output", "o", "", "write to file instead of stdout")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	client, err := connectGraph(ctx)
	if err != nil {
		return err
	}
	defer client.Close(ctx)

	analytics := graph.NewAnalytics(client)

	var result any
	var headers []string
	var rows [][]string

	switch args[0] {
	case "gaps":
		items, err := analytics.GapAnalysis(ctx)
		if err != nil {
			return err
		}
		result = items
		headers = []string{"key", "priority", "status", "updated", "summary"}
		for _, it := range items {
			rows = append(rows, []string{it.Key, it.Priority, it.Status,
				it.Updated.Format("2006-01-02"), it.Summary})
		}
	case "adoption":
		ratios, err := analytics.AdoptionRatios(ctx)
		if err != nil {
			return err
		}
		result = ratios
		headers = []string{"technology", "open_impl", "open_strategy", "ratio_pct"}
		for _, r := range ratios {
			rows = append(rows, []string{r.Technology, strconv.Itoa(r.OpenImplementations),
				strconv.Itoa(r.OpenStrategies), strconv.FormatFloat(r.Ratio, 'f', 2, 64)})
		}
	case "breadth":
		breadth, err := analytics.EcosystemBreadth(ctx)
		if err != nil {
			return err
		}
		result = breadth
		headers = []string{"component", "categories", "repositories"}
		for _, b := range breadth {
			rows = append(rows, []string{b.Component, strings.Join(b.Categories, ";"),
				strconv.Itoa(b.Repositories)})
		}
	default:
		return fmt.Errorf("unknown analysis %q, want gaps, adoption or breadth", args[0])
	}

	out := os.Stdout
	if analyzeOutput != "" {
		f, err := os.Create(analyzeOutput)
		if err != nil {
			return fmt.Errorf("cannot create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	switch analyzeFormat {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case "csv":
		w := csv.NewWriter(out)
		if err := w.Write(headers); err != nil {
			return err
		}
		if err := w.WriteAll(rows); err != nil {
			return err
		}
		w.Flush()
		return w.Error()
	case "table":
		printTable(out, headers, rows)
		return nil
	default:
		return fmt.Errorf("unknown format %q, want table, json or csv", analyzeFormat)
	}
}

func printTable(out *os.File, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	printRow := func(cells []string) {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			parts[i] = fmt.Sprintf("%-*s", widths[i], cell)
		}
		fmt.Fprintln(out, strings.TrimRight(strings.Join(parts, "  "), " "))
	}

	printRow(headers)
	for _, row := range rows {
		printRow(row)
	}
	fmt.Fprintf(out, "\n%d rows\n", len(rows))
}
