package scenario

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"marketconformance/internal/fixtures"
	"marketconformance/internal/poll"
	"marketconformance/internal/stream"
	"marketconformance/internal/validate"

	"go.uber.org/zap"
)

func wsClientReady() Step {
	return given("the WebSocket client is initialized", func(_ context.Context, sc *Context) error {
		if sc.WS == nil {
			return errors.New("WebSocket client not initialized")
		}
		return nil
	})
}

func connect() Step {
	return when("I connect to the WebSocket server", func(ctx context.Context, sc *Context) error {
		sc.ConnectErr = sc.WS.Connect(ctx)
		return nil
	})
}

func connectionEstablished() Step {
	return then("the connection should be established successfully", func(_ context.Context, sc *Context) error {
		if sc.ConnectErr != nil {
			return fmt.Errorf("failed to establish WebSocket connection: %w", sc.ConnectErr)
		}
		if !sc.WS.IsConnected() {
			return fmt.Errorf("WebSocket client is %s, want connected", sc.WS.State())
		}
		return nil
	})
}

func subscribeBook(instrument string, depth int) Step {
	phrase := fmt.Sprintf("I subscribe to order book for %q with depth %d", instrument, depth)
	return when(phrase, func(_ context.Context, sc *Context) error {
		sc.Instrument = instrument
		sc.Channel = stream.BookChannel(instrument, depth)
		sc.SubscribeErr = sc.WS.SubscribeToBook(instrument, depth)
		return nil
	})
}

// subscribeCase sends the subscription a fixture describes. Book-update
// cases carry their own channel, type and frequency.
func subscribeCase(kind fixtures.Kind, name string) Step {
	phrase := fmt.Sprintf("I subscribe to order book with parameters %q", name)
	if kind == fixtures.NegativeSubscription {
		phrase = fmt.Sprintf("I subscribe to order book with invalid parameters %q", name)
	}
	return when(phrase, func(_ context.Context, sc *Context) error {
		tc, err := fixtures.Lookup(kind, name)
		if err != nil {
			return err
		}
		sc.Case = tc

		if kind == fixtures.BookUpdateSubscription {
			sc.Channel = tc.ChannelOr("")
			sc.Instrument, _, _ = stream.ParseBookChannel(sc.Channel)
			subType := "SNAPSHOT_AND_UPDATE"
			if tc.SubscriptionType != nil {
				subType = *tc.SubscriptionType
			}
			freq := 10
			if tc.UpdateFrequency != nil {
				freq = *tc.UpdateFrequency
			}
			sc.SubscribeErr = sc.WS.SubscribeToBookUpdate(sc.Channel, subType, freq)
			return nil
		}

		sc.Instrument = tc.InstrumentOr(fixtures.Instrument)
		depth := tc.DepthOr(fixtures.DefaultDepth)
		sc.Channel = tc.ChannelOr(stream.BookChannel(sc.Instrument, depth))
		sc.SubscribeErr = sc.WS.SubscribeToBook(sc.Instrument, depth)
		return nil
	})
}

func subscriptionConfirmed(timeout time.Duration) Step {
	return then("I should receive subscription confirmation", func(ctx context.Context, sc *Context) error {
		if sc.SubscribeErr != nil {
			return fmt.Errorf("subscription request failed: %w", sc.SubscribeErr)
		}
		ok := poll.Until(ctx, timeout, poll.DefaultInterval, func() bool {
			return sc.WS.IsSubscribed(sc.Channel)
		})
		if !ok {
			return fmt.Errorf("no confirmation received for %s within %s (confirmed: %v)",
				sc.Channel, timeout, sc.WS.SubscribedChannels())
		}
		return nil
	})
}

func bookUpdatesFor(instrument string, timeout time.Duration) Step {
	phrase := fmt.Sprintf("I should receive order book updates for %q", instrument)
	return then(phrase, func(ctx context.Context, sc *Context) error {
		poll.Until(ctx, timeout, poll.DefaultInterval, func() bool {
			sc.BookUpdates = booksFor(sc.WS.GetReceivedMessages(stream.MethodBook), instrument)
			return len(sc.BookUpdates) > 0
		})
		if len(sc.BookUpdates) == 0 {
			return fmt.Errorf("no order book updates received for %s within %s", instrument, timeout)
		}
		sc.Logger.Debug("book updates collected", zap.String("instrument", instrument), zap.Int("count", len(sc.BookUpdates)))
		return nil
	})
}

// booksFor keeps the pushes whose channel or payload names instrument.
func booksFor(msgs []stream.Message, instrument string) []stream.Message {
	var out []stream.Message
	for _, m := range msgs {
		book, err := m.Book()
		if err != nil {
			out = append(out, m) // let the structure check report it
			continue
		}
		if inst, _, ok := stream.ParseBookChannel(book.Channel); ok && inst == instrument {
			out = append(out, m)
			continue
		}
		if len(book.Data) > 0 && book.Data[0].InstrumentName == instrument {
			out = append(out, m)
		}
	}
	return out
}

// eachUpdate applies check to every collected book update.
func eachUpdate(phrase string, check func(stream.Message) error) Step {
	return then(phrase, func(_ context.Context, sc *Context) error {
		if len(sc.BookUpdates) == 0 {
			return errors.New("no order book updates collected")
		}
		for i, m := range sc.BookUpdates {
			if err := check(m); err != nil {
				return fmt.Errorf("update[%d]: %w", i, err)
			}
		}
		return nil
	})
}

func bookStructureValid() Step {
	return eachUpdate("the order book data should have valid structure", validate.BookStructure)
}

func bookInstrumentIs(instrument string) Step {
	phrase := fmt.Sprintf("the order book data should be for %q", instrument)
	return eachUpdate(phrase, func(m stream.Message) error {
		return validate.BookInstrument(m, instrument)
	})
}

func bookOrdered() Step {
	return eachUpdate("the bid and ask prices should be in correct order", validate.BookOrdering)
}

func bookPositive() Step {
	return eachUpdate("all price and quantity values should be positive", validate.BookPositive)
}

func bookDepthAtMost(n int) Step {
	return eachUpdate(fmt.Sprintf("the depth should not exceed %d levels", n), func(m stream.Message) error {
		return validate.BookDepthAtMost(m, n)
	})
}

func errorReceived(timeout time.Duration) Step {
	return then("I should receive an error message", func(ctx context.Context, sc *Context) error {
		poll.Until(ctx, timeout, poll.DefaultInterval, func() bool {
			sc.ErrorMessages = sc.ErrorMessages[:0]
			for _, m := range sc.WS.GetReceivedMessages("") {
				if m.IsError() {
					sc.ErrorMessages = append(sc.ErrorMessages, m)
				}
			}
			return len(sc.ErrorMessages) > 0
		})
		if len(sc.ErrorMessages) == 0 {
			return fmt.Errorf("no error message received within %s", timeout)
		}
		return nil
	})
}

var invalidParamHints = []string{"unknown", "invalid", "error", "parameter"}

func errorIndicatesInvalidParams() Step {
	return then("the error should indicate invalid parameters", func(_ context.Context, sc *Context) error {
		for _, m := range sc.ErrorMessages {
			text := strings.ToLower(m.Message + " " + string(m.Raw))
			for _, hint := range invalidParamHints {
				if strings.Contains(text, hint) {
					return nil
				}
			}
		}
		if len(sc.ErrorMessages) == 0 {
			return errors.New("no error message collected")
		}
		return fmt.Errorf("error %q does not indicate invalid parameters", sc.ErrorMessages[0].Message)
	})
}

func unsubscribeBook(instrument string, depth int) Step {
	phrase := fmt.Sprintf("I unsubscribe from order book for %q with depth %d", instrument, depth)
	return when(phrase, func(_ context.Context, sc *Context) error {
		sc.Channel = stream.BookChannel(instrument, depth)
		return sc.WS.UnsubscribeFromBook(instrument, depth)
	})
}

func unsubscribeAcknowledged(timeout time.Duration) Step {
	return then("the unsubscription should be acknowledged", func(ctx context.Context, sc *Context) error {
		msg, ok := sc.WS.WaitForMessage(ctx, timeout, func(m stream.Message) bool {
			return m.Method == stream.MethodUnsubscribe
		})
		if !ok {
			return fmt.Errorf("no unsubscribe response within %s", timeout)
		}
		if msg.IsError() {
			return fmt.Errorf("unsubscribe rejected: code %d %s", msg.Code, msg.Message)
		}
		return nil
	})
}

func disconnect() Step {
	return when("I disconnect from the WebSocket server", func(_ context.Context, sc *Context) error {
		sc.WS.Disconnect()
		return nil
	})
}

func closedGracefully(timeout time.Duration) Step {
	return then("the connection should be closed gracefully", func(ctx context.Context, sc *Context) error {
		ok := poll.Until(ctx, timeout, poll.DefaultInterval, func() bool {
			return !sc.WS.IsConnected()
		})
		if !ok {
			return errors.New("WebSocket still connected after disconnect")
		}
		return nil
	})
}

func updatesWithin(timeout time.Duration) Step {
	phrase := fmt.Sprintf("I should receive order book updates within %s", timeout)
	return then(phrase, func(ctx context.Context, sc *Context) error {
		if !sc.WS.WaitForMessages(ctx, timeout) {
			return fmt.Errorf("no updates received within %s", timeout)
		}
		return nil
	})
}

func updatesContinuous(window time.Duration) Step {
	return then("updates should be received continuously", func(ctx context.Context, sc *Context) error {
		initial := len(sc.WS.GetReceivedMessages(stream.MethodBook))
		if err := poll.Sleep(ctx, window); err != nil {
			return err
		}
		final := len(sc.WS.GetReceivedMessages(stream.MethodBook))
		if final <= initial {
			return fmt.Errorf("no continuous updates received: %d book messages before and %d after %s", initial, final, window)
		}
		return nil
	})
}
