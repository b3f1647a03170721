package workers

import (
	"citychat/contract"
	"citychat/domain/event"
	"context"
	"log/slog"
)

// TelemetryChannel implements contract.ITelemetry on top of a buffered channel.
// Record never blocks: when the buffer is full the event is lost.
type TelemetryChannel struct {
	log *slog.Logger
	ch  chan event.Event
}

func NewTelemetryChannel(log *slog.Logger, capacity int) *TelemetryChannel {
	return &TelemetryChannel{log: log, ch: make(chan event.Event, capacity)}
}

func (t *TelemetryChannel) Record(e event.Event) {
	select {
	case t.ch <- e:
	default:
		t.log.Debug("Telemetry event lost", "type", e.Type)
	}
}

// TelemetryWorker drains a TelemetryChannel into the telemetry consumer,
// off the hot path of broadcasts.
type TelemetryWorker struct {
	log      *slog.Logger
	channel  *TelemetryChannel
	consumer contract.ITelemetry
}

func NewTelemetryWorker(log *slog.Logger, channel *TelemetryChannel, consumer contract.ITelemetry) *TelemetryWorker {
	return &TelemetryWorker{log: log, channel: channel, consumer: consumer}
}

func (w *TelemetryWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping telemetry")
			return nil
		case e := <-w.channel.ch:
			w.consumer.Record(e)
		}
	}
}
