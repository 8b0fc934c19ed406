package scoring

import (
	"fmt"
	"time"

	"github.com/hsinlab/cogscreen/internal/model"
)

// Placeholder tokens recognized in a rule's expected-answer list. Anything
// else is treated as a literal candidate.
const (
	TokenCurrentYear       = "__CURRENT_YEAR__"
	TokenCurrentMonth      = "__CURRENT_MONTH__"
	TokenCurrentDay        = "__CURRENT_DAY__"
	TokenWeekday           = "__WEEKDAY__"
	TokenSeason            = "__SEASON__"
	TokenTodayDate         = "__TODAY_DATE__"
	TokenPatientAge        = "__PATIENT_AGE__"
	TokenPatientPhone      = "__PATIENT_PHONE__"
	TokenPatientAddress    = "__PATIENT_ADDRESS__"
	TokenPatientBirthday   = "__PATIENT_BIRTHDAY__"
	TokenMotherName        = "__MOTHER_NAME__"
	TokenPresidentCurrent  = "__PRESIDENT_CURRENT__"
	TokenPresidentPrevious = "__PRESIDENT_PREVIOUS__"
)

// DefaultTimezone is used when neither the session nor the process defaults
// name one.
const DefaultTimezone = "Asia/Taipei"

// weekday names indexed 0=Monday, combined with the three colloquial prefixes.
var weekdayNames = [7]string{"一", "二", "三", "四", "五", "六", "日"}

var weekdayPrefixes = [3]string{"星期", "週", "禮拜"}

// Defaults is the read-only process-wide configuration injected into the
// expander at construction. Fixed at process start, never mutated.
type Defaults struct {
	Timezone          string
	PresidentCurrent  string
	PresidentPrevious string
}

// Context is the per-response evaluation context tokens expand against.
// A zero Now means the current instant; supplying it makes expansion
// deterministic. Absent attributes make their dependent tokens contribute
// nothing.
type Context struct {
	Now      time.Time
	Timezone string

	Age        *int
	Phone      string
	Address    string
	Birthday   string
	MotherName string

	PresidentCurrent  string
	PresidentPrevious string
}

// ContextFromSession builds an evaluation context from a session's
// configuration blob.
func ContextFromSession(cfg model.SessionConfig) Context {
	return Context{
		Timezone:          cfg.Timezone,
		Age:               cfg.Age,
		Phone:             cfg.Phone,
		Address:           cfg.Address,
		Birthday:          cfg.Birthday,
		MotherName:        cfg.MotherName,
		PresidentCurrent:  cfg.PresidentCurrent,
		PresidentPrevious: cfg.PresidentPrevious,
	}
}

// Expander resolves placeholder tokens into literal candidate answers.
type Expander struct {
	defaults Defaults
}

// NewExpander creates an expander carrying the process-wide defaults.
func NewExpander(defaults Defaults) *Expander {
	return &Expander{defaults: defaults}
}

// Prepare expands a rule's expected list against the context. The returned
// skip flag is set when the rule expects answers but expansion produced no
// usable candidate, in which case the rule must not be evaluated (an empty
// expected set would turn an unknowable answer into a false negative).
func (e *Expander) Prepare(rule model.ScoringRule, ctx Context) (model.ScoringRule, bool) {
	if len(rule.Expected) == 0 {
		return rule, false
	}
	expanded := e.Expand(rule.Expected, ctx)
	rule.Expected = expanded
	return rule, len(expanded) == 0
}

// Expand resolves each entry: recognized tokens produce their candidate
// expansions, other entries pass through as literals. Candidates are
// concatenated in order, de-duplicated by normalized form (first surface form
// wins) and blanks are dropped. Expansion never fails.
func (e *Expander) Expand(expected []string, ctx Context) []string {
	var out []string
	seen := make(map[string]bool)

	add := func(candidates ...string) {
		for _, c := range candidates {
			key := Normalize(c)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, c)
		}
	}

	now := e.localNow(ctx)

	for _, entry := range expected {
		switch entry {
		case TokenCurrentYear:
			add(fmt.Sprintf("%d", now.Year()), fmt.Sprintf("%d年", now.Year()))
		case TokenCurrentMonth:
			m := int(now.Month())
			add(
				fmt.Sprintf("%d", m),
				fmt.Sprintf("%02d", m),
				fmt.Sprintf("%d月", m),
				fmt.Sprintf("%02d月", m),
			)
		case TokenCurrentDay:
			d := now.Day()
			add(
				fmt.Sprintf("%d日", d),
				fmt.Sprintf("%02d日", d),
				fmt.Sprintf("%d號", d),
				fmt.Sprintf("%02d號", d),
			)
		case TokenWeekday:
			name := weekdayNames[(int(now.Weekday())+6)%7]
			for _, prefix := range weekdayPrefixes {
				add(prefix + name)
			}
		case TokenSeason:
			add(seasonNames(now.Month())...)
		case TokenTodayDate:
			y, m, d := now.Year(), int(now.Month()), now.Day()
			add(
				fmt.Sprintf("%d年%d月%d日", y, m, d),
				fmt.Sprintf("%d/%d/%d", y, m, d),
				fmt.Sprintf("%04d-%02d-%02d", y, m, d),
				fmt.Sprintf("%d.%d.%d", y, m, d),
			)
		case TokenPatientAge:
			if ctx.Age != nil {
				add(fmt.Sprintf("%d", *ctx.Age), fmt.Sprintf("%d歲", *ctx.Age))
			}
		case TokenPatientPhone:
			add(ctx.Phone)
		case TokenPatientAddress:
			add(ctx.Address)
		case TokenPatientBirthday:
			add(ctx.Birthday)
		case TokenMotherName:
			add(ctx.MotherName)
		case TokenPresidentCurrent:
			add(firstNonEmpty(ctx.PresidentCurrent, e.defaults.PresidentCurrent))
		case TokenPresidentPrevious:
			add(firstNonEmpty(ctx.PresidentPrevious, e.defaults.PresidentPrevious))
		default:
			add(entry)
		}
	}

	return out
}

// localNow resolves the evaluation instant in the context's timezone,
// falling back to the process default, then Asia/Taipei. An unloadable
// timezone degrades to a fixed UTC+8 zone rather than failing.
func (e *Expander) localNow(ctx Context) time.Time {
	now := ctx.Now
	if now.IsZero() {
		now = time.Now()
	}
	tz := firstNonEmpty(ctx.Timezone, e.defaults.Timezone, DefaultTimezone)
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.FixedZone("UTC+8", 8*60*60)
	}
	return now.In(loc)
}

// seasonNames maps a month to its season labels: {3,4,5} spring, {6,7,8}
// summer, {9,10,11} autumn, everything else winter.
func seasonNames(m time.Month) []string {
	switch m {
	case time.March, time.April, time.May:
		return []string{"春天", "春季"}
	case time.June, time.July, time.August:
		return []string{"夏天", "夏季"}
	case time.September, time.October, time.November:
		return []string{"秋天", "秋季"}
	default:
		return []string{"冬天", "冬季"}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
