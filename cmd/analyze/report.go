package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/f-sync/followdiff/internal/connections"
	"github.com/f-sync/followdiff/internal/reconcile"
)

const (
	reportFormatText     = reportFormat("text")
	reportFormatJSON     = reportFormat("json")
	accountHandlePrefix  = "@"
	statsSectionTitle    = "Summary"
	listSectionFormat    = "%s (%d)"
	searchSuffixFormat   = " matching %q"
	insightsSectionTitle = "Insights"
	emptyListText        = "  (none)"
	statLineFormat       = "%s\t%s\n"
	recordLineFormat     = "  %s\t%s\n"
	jsonIndent           = "  "
	writeReportErrFormat = "write report: %w"
)

type reportFormat string

func parseReportFormat(value string) (reportFormat, bool) {
	switch reportFormat(strings.ToLower(strings.TrimSpace(value))) {
	case "", reportFormatText:
		return reportFormatText, true
	case reportFormatJSON:
		return reportFormatJSON, true
	default:
		return "", false
	}
}

// analysisReport is the rendered outcome of a single analysis run.
type analysisReport struct {
	Stats    reconcile.Stats      `json:"stats"`
	List     reconcile.ListKind   `json:"list"`
	Search   string               `json:"search,omitempty"`
	Records  []connections.Record `json:"records"`
	Insights string               `json:"insights,omitempty"`
}

func writeReport(writer io.Writer, format reportFormat, report analysisReport) error {
	var err error
	if format == reportFormatJSON {
		encoder := json.NewEncoder(writer)
		encoder.SetIndent("", jsonIndent)
		err = encoder.Encode(report)
	} else {
		err = writeTextReport(writer, report)
	}
	if err != nil {
		return fmt.Errorf(writeReportErrFormat, err)
	}
	return nil
}

func writeTextReport(writer io.Writer, report analysisReport) error {
	var builder strings.Builder

	builder.WriteString(statsSectionTitle + "\n")
	table := tabwriter.NewWriter(&builder, 0, 0, 2, ' ', 0)
	stats := report.Stats
	fmt.Fprintf(table, statLineFormat, "Following", fmt.Sprint(stats.FollowingCount))
	fmt.Fprintf(table, statLineFormat, "Followers", fmt.Sprint(stats.FollowersCount))
	fmt.Fprintf(table, statLineFormat, "Not following back", fmt.Sprintf("%d (%.1f%%)", stats.NotFollowingBackCount, stats.NotFollowingBackShare()))
	fmt.Fprintf(table, statLineFormat, "Fans", fmt.Sprintf("%d (%.1f%%)", stats.FansCount, stats.FansShare()))
	fmt.Fprintf(table, statLineFormat, "Mutual", fmt.Sprint(stats.MutualCount))
	fmt.Fprintf(table, statLineFormat, "Follow ratio", fmt.Sprintf("%.2f (%s)", stats.FollowRatio, stats.RatioLabel()))
	if err := table.Flush(); err != nil {
		return err
	}

	builder.WriteString("\n")
	heading := fmt.Sprintf(listSectionFormat, listTitle(report.List), len(report.Records))
	if report.Search != "" {
		heading += fmt.Sprintf(searchSuffixFormat, report.Search)
	}
	builder.WriteString(heading + "\n")
	if len(report.Records) == 0 {
		builder.WriteString(emptyListText + "\n")
	} else {
		records := tabwriter.NewWriter(&builder, 0, 0, 2, ' ', 0)
		for _, record := range report.Records {
			fmt.Fprintf(records, recordLineFormat, accountHandlePrefix+record.Username, record.ProfileURL)
		}
		if err := records.Flush(); err != nil {
			return err
		}
	}

	if report.Insights != "" {
		builder.WriteString("\n" + insightsSectionTitle + "\n")
		builder.WriteString(report.Insights + "\n")
	}

	_, err := io.WriteString(writer, builder.String())
	return err
}

func listTitle(kind reconcile.ListKind) string {
	switch kind {
	case reconcile.ListFollowing:
		return "Following"
	case reconcile.ListFollowers:
		return "Followers"
	case reconcile.ListNotFollowingBack:
		return "Not following back"
	case reconcile.ListFans:
		return "Fans"
	case reconcile.ListMutual:
		return "Mutual"
	default:
		return string(kind)
	}
}
