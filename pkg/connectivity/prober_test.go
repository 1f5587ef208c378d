package connectivity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/gyanpath/gyanpath-agent/pkg/events"
	"github.com/gyanpath/gyanpath-agent/pkg/types"
)

func testConfig() Config {
	return Config{
		Interval:         time.Hour, // probes driven manually in tests
		Timeout:          time.Second,
		FailureThreshold: 2,
		SuccessThreshold: 1,
	}
}

func TestProberFlipsOfflineAtThreshold(t *testing.T) {
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	sub := broker.Subscribe()

	failing := errors.New("connection refused")
	prober := NewProber(func(ctx context.Context) error { return failing }, broker, testConfig())

	assert.True(t, prober.Online(), "assume online until proven otherwise")

	prober.probe()
	assert.True(t, prober.Online(), "one failure is below the threshold")

	prober.probe()
	assert.False(t, prober.Online())

	select {
	case ev := <-sub:
		assert.Equal(t, types.EventNetworkOffline, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("expected an offline event")
	}
}

func TestProberRecovers(t *testing.T) {
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	sub := broker.Subscribe()

	var err error
	prober := NewProber(func(ctx context.Context) error { return err }, broker, testConfig())

	err = errors.New("timeout")
	prober.probe()
	prober.probe()
	assert.False(t, prober.Online())
	<-sub // offline event

	err = nil
	prober.probe()
	assert.True(t, prober.Online())

	select {
	case ev := <-sub:
		assert.Equal(t, types.EventNetworkOnline, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("expected an online event")
	}
}

func TestProberSuccessResetsFailureCount(t *testing.T) {
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	var err error
	prober := NewProber(func(ctx context.Context) error { return err }, broker, testConfig())

	err = errors.New("flap")
	prober.probe()
	err = nil
	prober.probe()
	err = errors.New("flap")
	prober.probe()

	assert.True(t, prober.Online(), "non-consecutive failures must not flip offline")
	status := prober.Status()
	assert.Equal(t, 1, status.ConsecutiveFailures)
}
