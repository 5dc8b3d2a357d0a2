// Package query renders stored charts and live rates for the command line.
package query

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"codeberg.org/mutker/thrud/internal/collector"
	"codeberg.org/mutker/thrud/internal/errors"
	"codeberg.org/mutker/thrud/internal/metrics"
	"codeberg.org/mutker/thrud/internal/rate"
	"gopkg.in/yaml.v3"
)

type Format string

const (
	FormatCompact Format = "compact"
	FormatText    Format = "text"
	FormatYAML    Format = "yaml"
)

// ParseFormat accepts "verbose" as an alias of text.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatCompact, FormatText, FormatYAML:
		return f, nil
	case "verbose":
		return FormatText, nil
	}
	return "", errors.New().WithData(ErrInvalidFormat, s)
}

var prefixes = map[string]string{
	collector.ChartPerformance: "P:",
	collector.ChartEfficiency:  "E:",
	collector.ChartGPU:         "G:",
}

// Compact joins the charts of the newest round into one status line, for
// example "P:▂▄..30%|E:▁▁..10%|G:▇█..90%". The trailing delimiter is
// dropped.
func Compact(charts []metrics.Chart) string {
	if len(charts) == 0 {
		return ""
	}
	newest := charts[0].RoundID

	var b strings.Builder
	for _, name := range collector.ChartMetrics {
		for _, c := range charts {
			if c.RoundID == newest && c.MetricName == name {
				b.WriteString(prefixes[name])
				b.WriteString(c.Data)
				break
			}
		}
	}
	return strings.TrimRight(b.String(), "|")
}

type chartDoc struct {
	Round      string `yaml:"round"`
	Metric     string `yaml:"metric"`
	Encoding   string `yaml:"encoding"`
	DataPoints int    `yaml:"data_points"`
	Timestamp  string `yaml:"timestamp"`
	Chart      string `yaml:"chart"`
}

// WriteCharts renders charts in the given format.
func WriteCharts(w io.Writer, charts []metrics.Chart, f Format) error {
	errFactory := errors.New()

	if len(charts) == 0 {
		return errFactory.WithMessage(ErrNoCharts,
			"No charts found. Make sure the collector is running and has generated data.")
	}

	var err error
	switch f {
	case FormatCompact:
		_, err = fmt.Fprintln(w, Compact(charts))
	case FormatText:
		for _, c := range charts {
			_, err = fmt.Fprintf(w, "Collection Round: %s\nMetric: %s\nChart Type: %s\nData Points: %d\nTimestamp: %s\nChart: %s\n---\n",
				c.RoundID, c.MetricName, c.Encoding, c.DataPoints, c.Timestamp.Format(time.RFC3339), c.Data)
			if err != nil {
				break
			}
		}
	case FormatYAML:
		docs := make([]chartDoc, 0, len(charts))
		for _, c := range charts {
			docs = append(docs, chartDoc{
				Round:      c.RoundID,
				Metric:     c.MetricName,
				Encoding:   string(c.Encoding),
				DataPoints: c.DataPoints,
				Timestamp:  c.Timestamp.Format(time.RFC3339),
				Chart:      c.Data,
			})
		}
		err = encodeYAML(w, docs)
	default:
		return errFactory.WithData(ErrInvalidFormat, string(f))
	}

	if err != nil {
		return errFactory.Wrap(ErrWriteFailed, err)
	}
	return nil
}

type coreDoc struct {
	Core        int                `yaml:"core"`
	Type        string             `yaml:"type"`
	Cluster     int                `yaml:"cluster"`
	Utilization float64            `yaml:"utilization"`
	Rates       map[string]float64 `yaml:"rates"`
}

type classDoc struct {
	Class       string  `yaml:"class"`
	Cores       int     `yaml:"cores"`
	Active      float64 `yaml:"active"`
	Idle        float64 `yaml:"idle"`
	Utilization float64 `yaml:"utilization"`
}

type issueDoc struct {
	Code   string `yaml:"code"`
	Metric string `yaml:"metric,omitempty"`
	Core   int    `yaml:"core"`
	Reason string `yaml:"reason"`
}

type ratesDoc struct {
	Window    string     `yaml:"window"`
	Cores     []coreDoc  `yaml:"cores"`
	CoreTypes []classDoc `yaml:"core_types"`
	Clusters  []classDoc `yaml:"clusters"`
	Issues    []issueDoc `yaml:"issues,omitempty"`
}

// WriteRates renders a rate result. The compact format prints one
// "type NN%" pair per core type.
func WriteRates(w io.Writer, res rate.Result, f Format) error {
	errFactory := errors.New()

	var err error
	switch f {
	case FormatCompact:
		parts := make([]string, 0, len(res.CoreTypes))
		for _, agg := range res.CoreTypes {
			parts = append(parts, fmt.Sprintf("%s %.0f%%", agg.Key(), agg.Utilization))
		}
		_, err = fmt.Fprintln(w, strings.Join(parts, " "))
	case FormatText:
		err = writeRatesText(w, res)
	case FormatYAML:
		err = encodeYAML(w, ratesDocument(res))
	default:
		return errFactory.WithData(ErrInvalidFormat, string(f))
	}

	if err != nil {
		return errFactory.Wrap(ErrWriteFailed, err)
	}
	return nil
}

func writeRatesText(w io.Writer, res rate.Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "CORE\tTYPE\tCLUSTER\tUSER/s\tSYSTEM/s\tNICE/s\tIDLE/s\tUTIL\n")
	for _, c := range res.Cores {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%.1f\t%.1f\t%.1f\t%.1f\t%.1f%%\n",
			c.CoreID, c.CoreType, c.ClusterID,
			c.Rates[metrics.MetricCPUUserTicks], c.Rates[metrics.MetricCPUSystemTicks],
			c.Rates[metrics.MetricCPUNiceTicks], c.Rates[metrics.MetricCPUIdleTicks],
			c.Utilization)
	}
	fmt.Fprintf(tw, "\nCLASS\tCORES\tACTIVE/s\tIDLE/s\tUTIL\n")
	for _, group := range [][]rate.ClassAggregate{res.CoreTypes, res.Clusters} {
		for _, agg := range group {
			fmt.Fprintf(tw, "%s\t%d\t%.1f\t%.1f\t%.1f%%\n",
				agg.Key(), agg.CoreCount, agg.Active, agg.Idle, agg.Utilization)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, issue := range res.Issues {
		if _, err := fmt.Fprintf(w, "issue: %s core=%d %s %s\n", issue.Code, issue.CoreID, issue.Metric, issue.Reason); err != nil {
			return err
		}
	}
	return nil
}

func ratesDocument(res rate.Result) ratesDoc {
	doc := ratesDoc{Window: res.Window.String()}
	for _, c := range res.Cores {
		doc.Cores = append(doc.Cores, coreDoc{
			Core:        c.CoreID,
			Type:        c.CoreType.String(),
			Cluster:     c.ClusterID,
			Utilization: c.Utilization,
			Rates:       c.Rates,
		})
	}
	for _, agg := range res.CoreTypes {
		doc.CoreTypes = append(doc.CoreTypes, classDocOf(agg))
	}
	for _, agg := range res.Clusters {
		doc.Clusters = append(doc.Clusters, classDocOf(agg))
	}
	for _, issue := range res.Issues {
		doc.Issues = append(doc.Issues, issueDoc{
			Code:   string(issue.Code),
			Metric: issue.Metric,
			Core:   issue.CoreID,
			Reason: issue.Reason,
		})
	}
	return doc
}

func classDocOf(agg rate.ClassAggregate) classDoc {
	return classDoc{
		Class:       agg.Key(),
		Cores:       agg.CoreCount,
		Active:      agg.Active,
		Idle:        agg.Idle,
		Utilization: agg.Utilization,
	}
}

func encodeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
