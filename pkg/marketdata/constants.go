package marketdata

import (
	"fmt"
	"time"
)

// REST resources relative to the configured base URL.
const (
	EndpointCandlestick            = "public/get-candlestick"
	EndpointInstruments            = "public/get-instruments"
	EndpointBook                   = "public/get-book"
	EndpointTrades                 = "public/get-trades"
	EndpointTickers                = "public/get-tickers"
	EndpointInsurance              = "public/get-insurance"
	EndpointValuations             = "public/get-valuations"
	EndpointExpiredSettlementPrice = "public/get-expired-settlement-price"
	EndpointRiskParameters         = "public/get-risk-parameters"
	EndpointAnnouncements          = "public/get-announcements"
)

// Timeframe is the candlestick interval as sent in the timeframe parameter.
type Timeframe string

const (
	Timeframe1Min   Timeframe = "1m"
	Timeframe5Min   Timeframe = "5m"
	Timeframe15Min  Timeframe = "15m"
	Timeframe30Min  Timeframe = "30m"
	Timeframe1Hour  Timeframe = "1h"
	Timeframe2Hour  Timeframe = "2h"
	Timeframe4Hour  Timeframe = "4h"
	Timeframe12Hour Timeframe = "12h"
	Timeframe1Day   Timeframe = "1D"
	Timeframe7Day   Timeframe = "7D"
	Timeframe14Day  Timeframe = "14D"
	Timeframe1Month Timeframe = "1M"
)

// MaxCandlestickCount is the largest count the candlestick endpoint honours.
const MaxCandlestickCount = 300

var timeframeDurations = map[Timeframe]time.Duration{
	Timeframe1Min:   time.Minute,
	Timeframe5Min:   5 * time.Minute,
	Timeframe15Min:  15 * time.Minute,
	Timeframe30Min:  30 * time.Minute,
	Timeframe1Hour:  time.Hour,
	Timeframe2Hour:  2 * time.Hour,
	Timeframe4Hour:  4 * time.Hour,
	Timeframe12Hour: 12 * time.Hour,
	Timeframe1Day:   24 * time.Hour,
	Timeframe7Day:   7 * 24 * time.Hour,
	Timeframe14Day:  14 * 24 * time.Hour,
	Timeframe1Month: 30 * 24 * time.Hour, // TODO: calendar months once the API documents how 1M buckets align
}

// IsValid checks if the Timeframe is one the API documents.
func (tf Timeframe) IsValid() bool {
	_, ok := timeframeDurations[tf]
	return ok
}

// Duration returns the bucket width of the timeframe.
func (tf Timeframe) Duration() time.Duration {
	return timeframeDurations[tf]
}

// ParseTimeframe parses a string into a documented Timeframe.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if !tf.IsValid() {
		return "", fmt.Errorf("invalid timeframe: %s", s)
	}
	return tf, nil
}
