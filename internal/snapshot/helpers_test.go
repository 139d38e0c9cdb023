package snapshot

import (
	"context"
	"sync"
	"testing"

	"github.com/nerrad567/gray-logic-device/pkg/iotdevice"
)

// countingTransport is a minimal iotdevice.Transport.
type countingTransport struct {
	mu      sync.Mutex
	reports int
}

func (c *countingTransport) Connect(context.Context, iotdevice.Identity) error { return nil }

func (c *countingTransport) Report(context.Context, iotdevice.ServiceChanges) error {
	c.mu.Lock()
	c.reports++
	c.mu.Unlock()
	return nil
}

func (c *countingTransport) SubscribeCommands(iotdevice.CommandHandler) error { return nil }

func (c *countingTransport) Close() error { return nil }

func (c *countingTransport) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reports
}

func (c *countingTransport) fire(ctx context.Context, d *iotdevice.Device) error {
	return d.FireAllServicesChanged(ctx)
}

type testDevice struct {
	device    *iotdevice.Device
	transport *countingTransport
}

func newDevice(t *testing.T, store *SQLiteStore, svc iotdevice.Service) testDevice {
	t.Helper()
	transport := &countingTransport{}
	d := iotdevice.NewWithTransport(iotdevice.Identity{
		ServerURI:  "ssl://iot.example.com:8883",
		DeviceID:   "smoke-01",
		Credential: iotdevice.SharedSecret("secret"),
	}, transport, iotdevice.WithSnapshotStore(store))
	if err := d.AddService("smokeDetector", svc); err != nil {
		t.Fatalf("AddService() error = %v", err)
	}
	if err := d.Init(context.Background()); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	return testDevice{device: d, transport: transport}
}
