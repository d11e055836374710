package scenario

import (
	"context"
	"slices"
	"strings"

	"marketconformance/config"
)

// Step is one phrase of a scenario and the code behind it.
type Step struct {
	Phrase string
	Run    func(ctx context.Context, sc *Context) error
}

type Scenario struct {
	Name  string
	Tags  []string
	Steps []Step
}

type Feature struct {
	Name      string
	Scenarios []Scenario
}

// Filter selects scenarios. Feature and Scenario match case-insensitive
// substrings; Tag must match one tag exactly. Empty fields match everything.
type Filter struct {
	Feature  string
	Scenario string
	Tag      string
}

// FilterFrom builds a Filter from the run section of the configuration.
func FilterFrom(run config.RunConfig) Filter {
	return Filter{Feature: run.Feature, Scenario: run.Scenario, Tag: run.Tag}
}

func (f Filter) Match(feature Feature, s Scenario) bool {
	if f.Feature != "" && !containsFold(feature.Name, f.Feature) {
		return false
	}
	if f.Scenario != "" && !containsFold(s.Name, f.Scenario) {
		return false
	}
	if f.Tag != "" && !slices.Contains(s.Tags, strings.TrimPrefix(f.Tag, "@")) {
		return false
	}
	return true
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func given(phrase string, run func(context.Context, *Context) error) Step {
	return Step{Phrase: "Given " + phrase, Run: run}
}

func when(phrase string, run func(context.Context, *Context) error) Step {
	return Step{Phrase: "When " + phrase, Run: run}
}

func then(phrase string, run func(context.Context, *Context) error) Step {
	return Step{Phrase: "Then " + phrase, Run: run}
}
