package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
	"github.com/zallek/galaxy/internal/application"
	"github.com/zallek/galaxy/internal/config"
)

func TestOpenAppUsesDataDirFlag(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")

	cmd := &cli.Command{
		Name: "galaxy",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config"},
			&cli.StringFlag{Name: "data-dir"},
			&cli.StringFlag{Name: "log-level"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			a, err := openApp(ctx, c, nil)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			assert.Equal(t, dir, a.cfg.DataDir)
			assert.Equal(t, logrus.DebugLevel, a.logger.GetLevel())

			created, err := a.catalog.CreateLocal(ctx, application.LocalAnalysis{Dir: t.TempDir(), CrawledURLs: 1, KnownURLs: 1})
			if err != nil {
				return err
			}
			items, err := a.catalog.List(ctx)
			if err != nil {
				return err
			}
			require.Len(t, items, 1)
			assert.Equal(t, created.ID, items[0].ID)
			return nil
		},
	}

	require.NoError(t, cmd.Run(context.Background(), []string{"galaxy", "--data-dir", dir, "--log-level", "debug"}))
	assert.FileExists(t, filepath.Join(dir, "analyses.db"))
}

func TestNewLoggerRejectsUnknownFormat(t *testing.T) {
	_, err := newLogger(config.LogConfig{Level: "info", Format: "xml"})
	assert.Error(t, err)

	logger, err := newLogger(config.LogConfig{Level: "warn", Format: "json"})
	require.NoError(t, err)
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)
}
