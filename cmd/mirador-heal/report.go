package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/miradorstack/mirador-heal/internal/models"
	"github.com/miradorstack/mirador-heal/internal/patterns"
	"github.com/miradorstack/mirador-heal/internal/storage"
	"github.com/miradorstack/mirador-heal/internal/utils"
)

const (
	reportTopPatterns = 10
	// reportRetentionDays keeps every snapshot record regardless of age.
	reportRetentionDays = 36500
)

func reportCmd(opts *rootOptions) *cobra.Command {
	var in string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarise records, patterns and clusters from a snapshot or the persisted store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadCLIConfig(cmd, opts)
			if err != nil {
				return err
			}
			var records []models.ErrorRecord
			if in != "" {
				records, err = readSnapshotFile(in)
				if err != nil {
					return err
				}
			} else {
				store, closeStore, err := openPersistedStore(cmd, cfg, logger)
				if err != nil {
					return err
				}
				records = store.Export()
				closeStore()
			}
			fixes, err := patterns.LoadFixRules(cfg.Rules.Path, logger)
			if err != nil {
				return err
			}
			return writeReport(cmd.Context(), cmd.OutOrStdout(), records, patterns.NewAnalyzer(logger, fixes), time.Now())
		},
	}
	cmd.Flags().StringVar(&in, "in", "", "Snapshot file to summarise instead of the persisted store")
	return cmd
}

var severityColors = map[models.Severity]*color.Color{
	models.SeverityCritical: color.New(color.FgRed, color.Bold),
	models.SeverityHigh:     color.New(color.FgRed),
	models.SeverityMedium:   color.New(color.FgYellow),
	models.SeverityLow:      color.New(color.FgCyan),
}

func severityLabel(s models.Severity) string {
	if c, ok := severityColors[s]; ok {
		return c.Sprint(strings.ToUpper(string(s)))
	}
	return strings.ToUpper(string(s))
}

func writeReport(ctx context.Context, w io.Writer, records []models.ErrorRecord, analyzer *patterns.Analyzer, now time.Time) error {
	store := storage.NewStore(storage.Options{MaxRecords: len(records) + 1, RetentionDays: reportRetentionDays})
	if _, err := store.Import(ctx, records); err != nil {
		return utils.NewAppError("report", "index records", err)
	}
	stats := store.Stats()
	byType, bySeverity := store.Counts()
	header := color.New(color.Bold)

	header.Fprintln(w, "Error telemetry report")
	fmt.Fprintf(w, "  Records    : %s (%s resolved, %s open)\n",
		humanize.Comma(int64(stats.Total)), humanize.Comma(int64(stats.Resolved)), humanize.Comma(int64(stats.Unresolved)))
	fmt.Fprintf(w, "  Size       : %s\n", humanize.Bytes(uint64(stats.SizeBytes)))
	if stats.Total == 0 {
		fmt.Fprintln(w, "  No records.")
		return nil
	}

	all := store.Export()
	oldest, newest := all[0].Timestamp, all[0].Timestamp
	for _, rec := range all[1:] {
		if rec.Timestamp.Before(oldest) {
			oldest = rec.Timestamp
		}
		if rec.Timestamp.After(newest) {
			newest = rec.Timestamp
		}
	}
	fmt.Fprintf(w, "  Span       : %s to %s (%.0f minutes)\n",
		humanize.RelTime(oldest, now, "ago", "from now"), humanize.RelTime(newest, now, "ago", "from now"), utils.DurationMinutes(oldest, newest))

	header.Fprintln(w, "\nBy severity")
	for i := len(models.Severities) - 1; i >= 0; i-- {
		sev := models.Severities[i]
		if n := bySeverity[sev]; n > 0 {
			fmt.Fprintf(w, "  %-10s %s\n", severityLabel(sev), humanize.Comma(int64(n)))
		}
	}

	header.Fprintln(w, "\nBy type")
	types := make([]string, 0, len(byType))
	for t := range byType {
		types = append(types, string(t))
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Fprintf(w, "  %-12s %s\n", t, humanize.Comma(int64(byType[models.ErrorType(t)])))
	}

	result := analyzer.Analyze(ctx, all)
	header.Fprintln(w, "\nTop patterns")
	top := result.Patterns
	if len(top) > reportTopPatterns {
		top = top[:reportTopPatterns]
	}
	for _, p := range top {
		fmt.Fprintf(w, "  %6s  %-10s %s (last %s)\n",
			humanize.Comma(int64(p.Count)), severityLabel(p.Severity), p.PatternTemplate, humanize.RelTime(p.LastSeen, now, "ago", "from now"))
		if p.SuggestedFix != "" {
			fmt.Fprintf(w, "          fix: %s\n", p.SuggestedFix)
		}
		if cause, ok := analyzer.Explain(p.Signature); ok {
			fmt.Fprintf(w, "          cause: %s\n", cause)
		}
	}

	if len(result.Clusters) > 0 {
		header.Fprintln(w, "\nClusters")
		for _, c := range result.Clusters {
			fmt.Fprintf(w, "  %d patterns, %.0f%% common: %s\n", c.Size, c.Commonality*100, c.Centroid)
		}
	}
	if trending := analyzer.Trending(now); len(trending) > 0 {
		header.Fprintln(w, "\nTrending")
		for _, t := range trending {
			fmt.Fprintf(w, "  x%.1f  %s\n", t.Ratio, t.Pattern.PatternTemplate)
		}
	}
	if len(result.Recommendations) > 0 {
		header.Fprintln(w, "\nRecommendations")
		for _, r := range result.Recommendations {
			fmt.Fprintf(w, "  - %s\n", r)
		}
	}
	return nil
}
