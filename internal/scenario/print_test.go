package scenario

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"marketconformance/config"

	"github.com/logrusorgru/aurora"
	"github.com/stretchr/testify/assert"
)

// go test -v --run TestReportPrint
func TestReportPrint(t *testing.T) {
	report := &Report{
		Duration: 1500 * time.Millisecond,
		Results: []Result{
			{Feature: "Candlestick API", Scenario: "basic", Passed: true, Duration: 20 * time.Millisecond},
			{Feature: "Candlestick API", Scenario: "broken", FailedStep: "Then the response status should be 200",
				Err: errors.New("status 500"), Duration: 10 * time.Millisecond},
			{Feature: "Instruments API", Scenario: "list", Passed: true},
		},
	}

	var buf bytes.Buffer
	report.Print(&buf, aurora.NewAurora(false))
	out := buf.String()

	assert.Equal(t, 1, strings.Count(out, "Feature: Candlestick API"))
	assert.Contains(t, out, "✓ basic (20ms)")
	assert.Contains(t, out, "✗ broken (10ms)")
	assert.Contains(t, out, "Then the response status should be 200\n      status 500")
	assert.Contains(t, out, "3 scenarios (2 passed, 1 failed) in 1.5s")
	assert.NotContains(t, out, "\x1b[")
}

// go test -v --run TestPrintCatalog
func TestPrintCatalog(t *testing.T) {
	var buf bytes.Buffer
	PrintCatalog(&buf, Catalog(DefaultTiming(config.RunConfig{}), 10), Filter{Tag: "smoke"})
	out := buf.String()

	assert.Equal(t, 3, strings.Count(out, "Scenario:"))
	assert.Contains(t, out, "@smoke")
	assert.NotContains(t, out, "Feature: Order Book API")
}
