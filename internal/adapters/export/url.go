package export

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/zallek/galaxy/internal/domain"
)

// ParseAnalysisURL reads an analysis reference out of a Botify app URL such as
// https://app.botify.com/<owner>/<project>/<analysis>.
func ParseAnalysisURL(raw string) (domain.AnalysisRef, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return domain.AnalysisRef{}, fmt.Errorf("parse analysis url: %w", err)
	}
	labels := strings.Split(u.Hostname(), ".")
	if len(labels) < 2 {
		return domain.AnalysisRef{}, fmt.Errorf("analysis url %q: unexpected host", raw)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return domain.AnalysisRef{}, fmt.Errorf("analysis url %q: expected /<owner>/<project>/<analysis>", raw)
	}

	env := labels[1]
	if env == "botify" {
		env = "production"
	}
	return domain.AnalysisRef{
		Env:          env,
		Owner:        parts[0],
		ProjectSlug:  parts[1],
		AnalysisSlug: parts[2],
	}, nil
}
