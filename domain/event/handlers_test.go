package event

import (
	"fmt"
	"log/slog"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func TestHandlers_Count_Only_Their_Events(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	counter := NewCounter()
	handlers := []Handler{
		NewMessageSentHandler(log, counter),
		NewFailureHandler(log, counter),
		NewWorkerRestartedAfterPanicHandler(log, counter),
	}
	events := []Event{
		{Type: MessageSentType, Payload: MessageSent{Room: "Oslo::Norway", Recipients: 2}},
		{Type: MessageSentType, Payload: MessageSent{Room: "Oslo::Norway", Recipients: 1}},
		{Type: PersistenceFailedType, Payload: PersistenceFailed{Room: "Oslo::Norway", Err: fmt.Errorf("disk full")}},
		{Type: DeliveryFailedType, Payload: DeliveryFailed{Room: "Oslo::Norway", ConnectionID: "c1", Err: fmt.Errorf("slow")}},
		{Type: RestartedAfterPanicType, Payload: WorkerRestartedAfterPanic{WorkerName: "HubWorker"}},
		// Wrong payload is ignored
		{Type: MessageSentType, Payload: "oops"},
	}

	// When every event goes through the whole chain
	for _, e := range events {
		for _, h := range handlers {
			h.Handle(e)
		}
	}

	// Then
	req.EqualValues(2, counter.Get(MessageSentType))
	req.EqualValues(1, counter.Get(PersistenceFailedType))
	req.EqualValues(1, counter.Get(DeliveryFailedType))
	req.EqualValues(1, counter.Get(RestartedAfterPanicType))
}
