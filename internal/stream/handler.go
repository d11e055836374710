package stream

import (
	"time"

	"go.uber.org/zap"
)

// MakeMessageHandler returns a function that decodes inbound frames and
// stores them in the inbox. Frames that fail to decode are logged and
// dropped; they never stop the caller's loop. The decoded message is
// returned so the caller can react to it (e.g. heartbeats); ok is false
// for dropped frames.
func MakeMessageHandler(logger *zap.Logger, inbox *Inbox) func(frame []byte) (Message, bool) {
	return func(frame []byte) (Message, bool) {
		msg, err := Decode(frame)
		if err != nil {
			logger.Warn("failed to parse message", zap.Error(err), zap.Int("bytes", len(frame)))
			return Message{}, false
		}
		msg.ReceivedAt = time.Now()

		inbox.Add(msg)

		if ch := msg.ConfirmedChannels(); len(ch) > 0 {
			logger.Info("subscription confirmed", zap.Strings("channels", ch))
		} else if msg.IsError() {
			logger.Warn("server reported error",
				zap.String("method", msg.Method),
				zap.Int("code", msg.Code),
				zap.String("message", msg.Message))
		}
		logger.Debug("received message", zap.String("method", msg.Method), zap.ByteString("frame", frame))

		return msg, true
	}
}
