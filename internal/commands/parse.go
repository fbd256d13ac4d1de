package commands

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/basket/pixivbot-go/internal/model"
)

// parseIDArgs splits "<id[,id…]> [+tag -tag …]" into the id list and the
// remaining whitespace-separated tag tokens.
func parseIDArgs(args string) (ids []int64, rest []string, err error) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return nil, nil, fmt.Errorf("expected at least one id")
	}
	for _, raw := range strings.Split(fields[0], ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid id %q", raw)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, nil, fmt.Errorf("expected at least one id")
	}
	return ids, fields[1:], nil
}

// parseTagFilter reads +tag/-tag tokens into a TagFilter. Tokens without a
// leading +/- are treated as include tags.
func parseTagFilter(tokens []string) model.TagFilter {
	var f model.TagFilter
	for _, tok := range tokens {
		switch {
		case strings.HasPrefix(tok, "+"):
			if tag := strings.TrimPrefix(tok, "+"); tag != "" {
				f.Include = append(f.Include, tag)
			}
		case strings.HasPrefix(tok, "-"):
			if tag := strings.TrimPrefix(tok, "-"); tag != "" {
				f.Exclude = append(f.Exclude, tag)
			}
		default:
			f.Include = append(f.Include, tok)
		}
	}
	return f
}

// parseTagList splits a free-form comma/space separated tag list.
func parseTagList(args string) []string {
	fields := strings.FieldsFunc(args, func(r rune) bool { return r == ',' || r == ' ' })
	var out []string
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

var trailingDigits = regexp.MustCompile(`(\d+)\D*$`)

// parseWorkRef resolves "<url|id>" (as accepted by /download) to a work id.
func parseWorkRef(args string) (int64, error) {
	args = strings.TrimSpace(args)
	if id, err := strconv.ParseInt(args, 10, 64); err == nil {
		return id, nil
	}
	m := trailingDigits.FindStringSubmatch(args)
	if m == nil {
		return 0, fmt.Errorf("could not find a work id in %q", args)
	}
	return strconv.ParseInt(m[1], 10, 64)
}

func parseRankingMode(s string) (model.RankingMode, error) {
	switch model.RankingMode(strings.ToLower(strings.TrimSpace(s))) {
	case model.RankingDaily:
		return model.RankingDaily, nil
	case model.RankingWeekly:
		return model.RankingWeekly, nil
	case model.RankingMonthly:
		return model.RankingMonthly, nil
	default:
		return "", fmt.Errorf("mode must be daily, weekly, or monthly")
	}
}

func onOff(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on":
		return true, nil
	case "off":
		return false, nil
	default:
		return false, fmt.Errorf("expected on or off")
	}
}
