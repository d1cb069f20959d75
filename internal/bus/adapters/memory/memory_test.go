package memory

import (
	"testing"

	"github.com/chris-alexander-pop/agentfabric/internal/bus"
	"github.com/chris-alexander-pop/agentfabric/internal/bus/bustest"
)

func TestMemoryBus(t *testing.T) {
	var root *Bus
	bustest.Run(t, bustest.Factory{
		New: func() bus.Bus {
			root = New()
			return root
		},
		Grouped: func(group, consumer string) bus.Bus {
			return root.WithGroup(group, consumer)
		},
	})
}
