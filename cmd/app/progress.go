package main

import (
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/zallek/galaxy/internal/domain"
	"golang.org/x/time/rate"
)

// barScale is the resolution of the bars, fed from Progress.Fraction.
const barScale = 1000

type progressConfig struct {
	Enabled bool
	Writer  io.Writer
}

// newProgressConfig enables bars only when stderr is a terminal.
func newProgressConfig(quiet bool) progressConfig {
	return progressConfig{
		Enabled: !quiet && isatty.IsTerminal(os.Stderr.Fd()),
		Writer:  os.Stderr,
	}
}

func newProgressBar(cfg progressConfig, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(barScale,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(cfg.Writer),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

func newSpinner(cfg progressConfig, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(cfg.Writer),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
}

// progressReporter renders ingestion progress as one bar per stage on a
// terminal and as throttled log lines otherwise.
type progressReporter struct {
	cfg       progressConfig
	logger    logrus.FieldLogger
	sometimes *rate.Sometimes

	stage domain.Stage
	bar   *progressbar.ProgressBar
}

func newProgressReporter(cfg progressConfig, logger logrus.FieldLogger) *progressReporter {
	return &progressReporter{
		cfg:       cfg,
		logger:    logger,
		sometimes: &rate.Sometimes{First: 1, Interval: 2 * time.Second},
	}
}

func (r *progressReporter) Notify(p domain.Progress) {
	if p.Stage != r.stage {
		r.closeBar()
		r.stage = p.Stage
		r.sometimes = &rate.Sometimes{First: 1, Interval: 2 * time.Second}
		if r.cfg.Enabled {
			r.bar = r.openBar(p.Stage)
		}
	}

	if r.bar == nil {
		r.sometimes.Do(func() {
			r.logger.WithFields(logrus.Fields{
				"stage":    p.Stage,
				"done":     p.Done,
				"progress": int(p.Fraction * 100),
			}).Info("ingesting")
		})
		return
	}
	switch p.Stage {
	case domain.StagePages, domain.StageLinks:
		_ = r.bar.Set64(int64(p.Fraction * barScale))
	default:
		_ = r.bar.Add(1)
	}
}

func (r *progressReporter) openBar(stage domain.Stage) *progressbar.ProgressBar {
	switch stage {
	case domain.StagePages, domain.StageLinks:
		return newProgressBar(r.cfg, string(stage))
	case domain.StageGroup:
		return newSpinner(r.cfg, "default group")
	default:
		return nil
	}
}

func (r *progressReporter) closeBar() {
	if r.bar == nil {
		return
	}
	_ = r.bar.Finish()
	_, _ = io.WriteString(r.cfg.Writer, "\n")
	r.bar = nil
}

func (r *progressReporter) Finish() {
	r.closeBar()
	if !r.cfg.Enabled {
		r.logger.Info("ingestion complete")
	}
}

func (r *progressReporter) Abort() {
	if r.bar != nil {
		_ = r.bar.Exit()
		r.bar = nil
	}
}
