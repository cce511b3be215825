package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	rpcadapter "github.com/zallek/galaxy/internal/adapters/rpcjson"
	"github.com/zallek/galaxy/internal/domain"
)

var stdout io.Writer = os.Stdout

var (
	statusColors = map[domain.GroupStatus]*color.Color{
		domain.GroupSuccess:   color.New(color.FgGreen),
		domain.GroupComputing: color.New(color.FgYellow),
		domain.GroupFailed:    color.New(color.FgRed),
	}
	readyColor    = color.New(color.FgGreen)
	notReadyColor = color.New(color.Faint)
)

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, string(b))
	return err
}

func printKV(rows [][2]string) {
	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	for _, row := range rows {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", row[0], row[1])
	}
	_ = w.Flush()
}

// printTable aligns every column but the last, which may carry color codes.
func printTable(headers []string, rows [][]string) {
	if len(rows) == 0 {
		_, _ = fmt.Fprintln(stdout, "no results")
		return
	}
	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, strings.Join(headers, "\t"))
	for _, row := range rows {
		_, _ = fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	_ = w.Flush()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05")
}

func formatCount(v *int64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatInt(*v, 10)
}

func formatReady(ready bool) string {
	if ready {
		return readyColor.Sprint("ready")
	}
	return notReadyColor.Sprint("not ready")
}

func formatStatus(status domain.GroupStatus) string {
	if c, ok := statusColors[status]; ok {
		return c.Sprint(string(status))
	}
	return string(status)
}

func formatDimensions(d domain.Dimensions) string {
	out := d.GroupBy1
	if d.GroupBy2 != "" {
		out += " x " + d.GroupBy2
	}
	if d.Follow != domain.FollowAny {
		out += " [" + string(d.Follow) + "]"
	}
	return out
}

func formatKey(key *string) string {
	switch {
	case key == nil:
		return "(not crawled)"
	case *key == "":
		return "(none)"
	default:
		return *key
	}
}

func printAnalysis(a domain.Analysis) {
	printKV([][2]string{
		{"id", strconv.FormatUint(uint64(a.ID), 10)},
		{"url", a.URL},
		{"source", string(a.Source)},
		{"crawled_urls", strconv.FormatInt(a.CrawledURLs, 10)},
		{"known_urls", strconv.FormatInt(a.KnownURLs, 10)},
		{"unknown_urls", strconv.FormatInt(a.UnknownURLs(), 10)},
		{"segments", strings.Join(a.SegmentNames, ",")},
		{"links", formatCount(a.Links)},
		{"state", formatReady(a.Ready)},
	})
}

func printAnalyses(items []domain.Analysis) {
	rows := make([][]string, 0, len(items))
	for _, a := range items {
		rows = append(rows, []string{
			strconv.FormatUint(uint64(a.ID), 10),
			a.URL,
			string(a.Source),
			strconv.FormatInt(a.CrawledURLs, 10),
			formatCount(a.Links),
			formatTime(a.CreatedAt),
			formatReady(a.Ready),
		})
	}
	printTable([]string{"ID", "URL", "SOURCE", "CRAWLED", "LINKS", "CREATED", "STATE"}, rows)
}

func printGroupStates(items []domain.GroupState) {
	rows := make([][]string, 0, len(items))
	for _, s := range items {
		id := "-"
		if s.ID != 0 {
			id = strconv.FormatUint(uint64(s.ID), 10)
		}
		status := formatStatus(s.Status)
		if s.Error != "" {
			status += ": " + s.Error
		}
		rows = append(rows, []string{id, formatDimensions(s.Dimensions), status})
	}
	printTable([]string{"ID", "DIMENSIONS", "STATUS"}, rows)
}

func printGroup(g rpcadapter.GroupResult) {
	printKV([][2]string{
		{"id", strconv.FormatUint(uint64(g.Group.ID), 10)},
		{"dimensions", formatDimensions(g.Group.Dimensions())},
		{"status", formatStatus(g.Group.Status)},
		{"updated", formatTime(g.Group.UpdatedAt)},
	})
	if g.Group.Error != "" {
		printKV([][2]string{{"error", g.Group.Error}})
	}
	_, _ = fmt.Fprintln(stdout)

	keys := make(map[int64]string, len(g.Nodes))
	nodes := make([][]string, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		label := formatKey(n.Key1)
		if g.Group.GroupBy2 != nil && n.Key1 != nil {
			label += " / " + formatKey(n.Key2)
		}
		keys[n.ID] = label
		nodes = append(nodes, []string{strconv.FormatInt(n.ID, 10), strconv.FormatInt(n.Count, 10), label})
	}
	printTable([]string{"NODE", "PAGES", "KEY"}, nodes)
	_, _ = fmt.Fprintln(stdout)

	links := make([][]string, 0, len(g.Links))
	for _, l := range g.Links {
		links = append(links, []string{keys[l.From], keys[l.To], strconv.FormatInt(l.Count, 10)})
	}
	printTable([]string{"FROM", "TO", "LINKS"}, links)
}
