package scenario

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/logrusorgru/aurora"
)

// Print writes the report grouped by feature, failures with their step and
// error, and a closing summary line.
func (r *Report) Print(w io.Writer, au aurora.Aurora) {
	feature := ""
	for _, res := range r.Results {
		if res.Feature != feature {
			feature = res.Feature
			fmt.Fprintf(w, "\n%s %s\n", au.Bold("Feature:"), au.Bold(feature))
		}
		elapsed := au.Blue("(" + res.Duration.Round(time.Millisecond).String() + ")")
		if res.Passed {
			fmt.Fprintf(w, "  %s %s %s\n", au.Green("✓"), res.Scenario, elapsed)
			continue
		}
		fmt.Fprintf(w, "  %s %s %s\n", au.Red("✗"), au.Red(res.Scenario), elapsed)
		fmt.Fprintf(w, "      %s\n", au.Yellow(res.FailedStep))
		fmt.Fprintf(w, "      %s\n", res.Err)
	}

	summary := fmt.Sprintf("%d scenarios (%d passed, %d failed) in %s",
		len(r.Results), r.Passed(), r.Failed(), r.Duration.Round(time.Millisecond))
	if r.OK() {
		fmt.Fprintf(w, "\n%s\n", au.Bold(au.Green(summary)))
	} else {
		fmt.Fprintf(w, "\n%s\n", au.Bold(au.Red(summary)))
	}
}

// PrintCatalog lists the scenarios filter selects, with their tags and steps.
func PrintCatalog(w io.Writer, features []Feature, filter Filter) {
	for _, f := range features {
		header := false
		for _, s := range f.Scenarios {
			if !filter.Match(f, s) {
				continue
			}
			if !header {
				fmt.Fprintf(w, "Feature: %s\n", f.Name)
				header = true
			}
			fmt.Fprintf(w, "  Scenario: %s  @%s\n", s.Name, strings.Join(s.Tags, " @"))
			for _, step := range s.Steps {
				fmt.Fprintf(w, "    %s\n", step.Phrase)
			}
		}
	}
}
