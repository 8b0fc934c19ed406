package scoring

import (
	"testing"
	"time"

	"github.com/hsinlab/cogscreen/internal/model"
)

func intPtr(v int) *int { return &v }

// 2024-05-10 is a Friday; noon UTC stays on May 10 in UTC+8.
var fixedNow = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func testExpander() *Expander {
	return NewExpander(Defaults{
		Timezone:          "Asia/Taipei",
		PresidentCurrent:  "賴清德",
		PresidentPrevious: "蔡英文",
	})
}

func containsCandidate(candidates []string, want string) bool {
	for _, c := range candidates {
		if c == want {
			return true
		}
	}
	return false
}

func TestExpandDateTokens(t *testing.T) {
	e := testExpander()
	ctx := Context{Now: fixedNow}

	tests := []struct {
		name  string
		token string
		wants []string
	}{
		{"year", TokenCurrentYear, []string{"2024", "2024年"}},
		{"month", TokenCurrentMonth, []string{"5", "05", "5月", "05月"}},
		{"day", TokenCurrentDay, []string{"10日", "10號"}},
		{"weekday", TokenWeekday, []string{"星期五", "週五", "禮拜五"}},
		{"season", TokenSeason, []string{"春天", "春季"}},
		{"full date", TokenTodayDate, []string{"2024年5月10日", "2024/5/10", "2024-05-10", "2024.5.10"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Expand([]string{tt.token}, ctx)
			for _, want := range tt.wants {
				if !containsCandidate(got, want) {
					t.Errorf("Expand(%s) = %v, missing %q", tt.token, got, want)
				}
			}
		})
	}
}

func TestExpandPatientTokens(t *testing.T) {
	e := testExpander()
	ctx := Context{
		Now:        fixedNow,
		Age:        intPtr(78),
		Phone:      "0912345678",
		MotherName: "陳美麗",
	}

	got := e.Expand([]string{TokenPatientAge, TokenPatientPhone, TokenMotherName}, ctx)
	for _, want := range []string{"78", "78歲", "0912345678", "陳美麗"} {
		if !containsCandidate(got, want) {
			t.Errorf("Expand = %v, missing %q", got, want)
		}
	}
}

func TestExpandMissingAttributesContributeNothing(t *testing.T) {
	e := testExpander()
	got := e.Expand([]string{TokenPatientAge, TokenPatientPhone, TokenPatientAddress}, Context{Now: fixedNow})
	if len(got) != 0 {
		t.Errorf("Expand with no patient attributes = %v, want empty", got)
	}
}

func TestExpandPresidentFallsBackToDefaults(t *testing.T) {
	e := testExpander()

	got := e.Expand([]string{TokenPresidentCurrent, TokenPresidentPrevious}, Context{Now: fixedNow})
	if !containsCandidate(got, "賴清德") || !containsCandidate(got, "蔡英文") {
		t.Errorf("Expand = %v, want process defaults", got)
	}

	// Session-level values win over the defaults.
	got = e.Expand([]string{TokenPresidentCurrent}, Context{Now: fixedNow, PresidentCurrent: "某某人"})
	if !containsCandidate(got, "某某人") || containsCandidate(got, "賴清德") {
		t.Errorf("Expand = %v, want session value to shadow default", got)
	}
}

func TestExpandLiteralPassthroughAndDedupe(t *testing.T) {
	e := testExpander()
	got := e.Expand([]string{"TAIPEI", "taipei", "  taipei  ", "台北"}, Context{Now: fixedNow})
	if len(got) != 2 {
		t.Fatalf("Expand = %v, want 2 candidates after normalized dedupe", got)
	}
	// First surface form wins.
	if got[0] != "TAIPEI" || got[1] != "台北" {
		t.Errorf("Expand = %v, want [TAIPEI 台北]", got)
	}
}

func TestExpandDropsBlanks(t *testing.T) {
	e := testExpander()
	got := e.Expand([]string{"", "   ", "taipei"}, Context{Now: fixedNow})
	if len(got) != 1 || got[0] != "taipei" {
		t.Errorf("Expand = %v, want blanks dropped", got)
	}
}

func TestPrepareSkipsUnexpandableRules(t *testing.T) {
	e := testExpander()

	// A rule whose only expected entry depends on a missing attribute must be
	// skipped, not evaluated against an empty list.
	rule := model.ScoringRule{Type: model.RuleContainsAny, Expected: []string{TokenMotherName}}
	_, skip := e.Prepare(rule, Context{Now: fixedNow})
	if !skip {
		t.Error("expected skip when expansion empties a non-empty expected list")
	}

	// Rules with no expected answers at all are not skipped.
	rule = model.ScoringRule{Type: model.RuleNumericRange}
	_, skip = e.Prepare(rule, Context{Now: fixedNow})
	if skip {
		t.Error("rule without expected answers must not be skipped")
	}

	// Resolvable tokens expand in place.
	rule = model.ScoringRule{Type: model.RuleExact, Expected: []string{TokenCurrentYear}}
	prepared, skip := e.Prepare(rule, Context{Now: fixedNow})
	if skip {
		t.Fatal("unexpected skip")
	}
	if !containsCandidate(prepared.Expected, "2024") {
		t.Errorf("prepared.Expected = %v, missing 2024", prepared.Expected)
	}
}

func TestLocalNowTimezoneFallback(t *testing.T) {
	e := NewExpander(Defaults{})

	// A bogus zone degrades to fixed UTC+8 instead of failing.
	got := e.localNow(Context{Now: fixedNow, Timezone: "Not/AZone"})
	if got.Day() != 10 {
		t.Errorf("localNow day = %d, want 10", got.Day())
	}
	_, offset := got.Zone()
	if offset != 8*60*60 {
		t.Errorf("offset = %d, want UTC+8", offset)
	}
}
