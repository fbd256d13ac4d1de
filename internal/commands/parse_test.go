package commands

import (
	"reflect"
	"testing"

	"github.com/basket/pixivbot-go/internal/model"
)

func TestParseIDArgs_CommaSeparatedWithTags(t *testing.T) {
	ids, rest, err := parseIDArgs("123,456 +Genshin -R18")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(ids, []int64{123, 456}) {
		t.Fatalf("got ids %v", ids)
	}
	if !reflect.DeepEqual(rest, []string{"+Genshin", "-R18"}) {
		t.Fatalf("got rest %v", rest)
	}
}

func TestParseIDArgs_RejectsGarbage(t *testing.T) {
	if _, _, err := parseIDArgs("not-an-id"); err == nil {
		t.Fatal("expected error")
	}
	if _, _, err := parseIDArgs(""); err == nil {
		t.Fatal("expected error on empty args")
	}
}

func TestParseTagFilter_SplitsIncludeExclude(t *testing.T) {
	f := parseTagFilter([]string{"+Genshin", "-R18", "plain"})
	want := model.TagFilter{Include: []string{"Genshin", "plain"}, Exclude: []string{"R18"}}
	if !reflect.DeepEqual(f, want) {
		t.Fatalf("got %+v, want %+v", f, want)
	}
}

func TestParseWorkRef_AcceptsBareIDAndURL(t *testing.T) {
	id, err := parseWorkRef("12345")
	if err != nil || id != 12345 {
		t.Fatalf("got %d, %v", id, err)
	}
	id, err = parseWorkRef("https://www.pixiv.net/en/artworks/98765")
	if err != nil || id != 98765 {
		t.Fatalf("got %d, %v", id, err)
	}
}

func TestParseWorkRef_RejectsNonNumeric(t *testing.T) {
	if _, err := parseWorkRef("https://example.com/no-id-here"); err == nil {
		t.Fatal("expected error")
	}
}

func TestParseRankingMode_ValidatesInput(t *testing.T) {
	mode, err := parseRankingMode("Daily")
	if err != nil || mode != model.RankingDaily {
		t.Fatalf("got %v, %v", mode, err)
	}
	if _, err := parseRankingMode("yearly"); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestOnOff_ParsesBoolean(t *testing.T) {
	on, err := onOff("on")
	if err != nil || !on {
		t.Fatalf("got %v, %v", on, err)
	}
	off, err := onOff("off")
	if err != nil || off {
		t.Fatalf("got %v, %v", off, err)
	}
	if _, err := onOff("maybe"); err == nil {
		t.Fatal("expected error")
	}
}

func TestParseTagList_SplitsOnCommaOrSpace(t *testing.T) {
	got := parseTagList("R-18, NSFW gore")
	want := []string{"R-18", "NSFW", "gore"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}
