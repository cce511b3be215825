package domain

import (
	"fmt"
	"strconv"
)

const DefaultDimension = "segment1"

var dimensionNames = []string{
	"segment1", "segment2",
	"extract1", "extract2", "extract3", "extract4",
	"compliant", "http_code", "response_time",
	"pagerank", "pagerank_position", "nb_inlinks", "nb_outlinks",
}

func DimensionNames() []string {
	out := make([]string, len(dimensionNames))
	copy(out, dimensionNames)
	return out
}

func ValidDimension(name string) bool {
	for _, n := range dimensionNames {
		if n == name {
			return true
		}
	}
	return false
}

func (d Dimensions) Validate() error {
	if !ValidDimension(d.GroupBy1) {
		return fmt.Errorf("%w: %q", ErrUnknownDimension, d.GroupBy1)
	}
	if d.GroupBy2 != "" && !ValidDimension(d.GroupBy2) {
		return fmt.Errorf("%w: %q", ErrUnknownDimension, d.GroupBy2)
	}
	switch d.Follow {
	case FollowAny, FollowOnly, FollowNoFollow:
	default:
		return fmt.Errorf("%w: follow filter %q", ErrUnknownDimension, d.Follow)
	}
	return nil
}

// FollowValue converts the filter to the store's optional follow predicate.
func (d Dimensions) FollowValue() *bool {
	switch d.Follow {
	case FollowOnly:
		v := true
		return &v
	case FollowNoFollow:
		v := false
		return &v
	default:
		return nil
	}
}

// Dimension returns the page attribute used as a grouping key, nil when unset.
func (p Page) Dimension(name string) *string {
	switch name {
	case "segment1":
		return p.Segment1
	case "segment2":
		return p.Segment2
	case "extract1":
		return p.Extract1
	case "extract2":
		return p.Extract2
	case "extract3":
		return p.Extract3
	case "extract4":
		return p.Extract4
	case "compliant":
		return strPtr(strconv.FormatBool(p.Compliant))
	case "http_code":
		return strPtr(strconv.Itoa(p.HTTPCode))
	case "response_time":
		return strPtr(strconv.Itoa(p.ResponseTimeMs))
	case "pagerank":
		return strPtr(strconv.FormatFloat(p.Pagerank, 'f', -1, 64))
	case "pagerank_position":
		return strPtr(strconv.Itoa(p.PagerankPosition))
	case "nb_inlinks":
		return strPtr(strconv.Itoa(p.NbInlinks))
	case "nb_outlinks":
		return strPtr(strconv.Itoa(p.NbOutlinks))
	}
	return nil
}

func strPtr(s string) *string { return &s }
