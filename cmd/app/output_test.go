package main

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	rpcadapter "github.com/zallek/galaxy/internal/adapters/rpcjson"
	"github.com/zallek/galaxy/internal/domain"
)

func captureStdout(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	prev, prevNoColor := stdout, color.NoColor
	stdout, color.NoColor = buf, true
	t.Cleanup(func() { stdout, color.NoColor = prev, prevNoColor })
	return buf
}

func strPtr(s string) *string { return &s }

func TestFormatDimensions(t *testing.T) {
	assert.Equal(t, "segment1", formatDimensions(domain.Dimensions{GroupBy1: "segment1"}))
	assert.Equal(t, "segment1 x http_code [nofollow]", formatDimensions(domain.Dimensions{
		GroupBy1: "segment1",
		GroupBy2: "http_code",
		Follow:   domain.FollowNoFollow,
	}))
}

func TestFormatKey(t *testing.T) {
	assert.Equal(t, "(not crawled)", formatKey(nil))
	assert.Equal(t, "(none)", formatKey(strPtr("")))
	assert.Equal(t, "blog", formatKey(strPtr("blog")))
}

func TestPrintGroupLabelsLinksByNodeKey(t *testing.T) {
	buf := captureStdout(t)

	printGroup(rpcadapter.GroupResult{
		Group: domain.Group{ID: 3, GroupBy1: "segment1", Status: domain.GroupSuccess},
		Nodes: []domain.GroupNode{
			{ID: 1, Group: 3, Key1: strPtr("blog"), Count: 2},
			{ID: 2, Group: 3, Count: 5},
		},
		Links: []domain.GroupLink{{ID: 1, Group: 3, From: 1, To: 2, Count: 7}},
	})

	out := buf.String()
	assert.Contains(t, out, "segment1")
	assert.Contains(t, out, "success")
	assert.Regexp(t, `blog\s+\(not crawled\)\s+7`, out)
}

func TestPrintTableEmpty(t *testing.T) {
	buf := captureStdout(t)
	printGroupStates(nil)
	assert.Equal(t, "no results\n", buf.String())
}

func TestPrintJSON(t *testing.T) {
	buf := captureStdout(t)
	require.NoError(t, printJSON(domain.GroupState{Dimensions: domain.Dimensions{GroupBy1: "segment1"}, Status: domain.GroupFailed, Error: "too many nodes"}))
	assert.Contains(t, buf.String(), `"status": "failed"`)
	assert.Contains(t, buf.String(), `"error": "too many nodes"`)
}

func TestProgressReporterLogsWithoutTerminal(t *testing.T) {
	logger, hook := test.NewNullLogger()
	r := newProgressReporter(progressConfig{Enabled: false, Writer: &bytes.Buffer{}}, logger)

	r.Notify(domain.Progress{Stage: domain.StagePages, Done: 10, Fraction: 0.1})
	r.Notify(domain.Progress{Stage: domain.StagePages, Done: 20, Fraction: 0.2})
	r.Notify(domain.Progress{Stage: domain.StageLinks, Done: 5, Fraction: 0.5})
	r.Finish()

	entries := hook.AllEntries()
	require.Len(t, entries, 3)
	assert.Equal(t, domain.StagePages, entries[0].Data["stage"])
	assert.Equal(t, int64(10), entries[0].Data["done"])
	assert.Equal(t, domain.StageLinks, entries[1].Data["stage"])
	assert.Equal(t, "ingestion complete", entries[2].Message)
	assert.Equal(t, logrus.InfoLevel, entries[2].Level)
}
