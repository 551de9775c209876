package shutdown

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcrop/sensor-node/internal/clock"
	"github.com/smartcrop/sensor-node/internal/config"
	"github.com/smartcrop/sensor-node/internal/env"
	"github.com/smartcrop/sensor-node/internal/gpio"
	"github.com/smartcrop/sensor-node/internal/model"
	"github.com/smartcrop/sensor-node/internal/power"
)

func poweredManager(t *testing.T) (*power.Manager, map[int]bool) {
	gpio.ResetGPIO()
	t.Cleanup(gpio.ResetGPIO)
	state := map[int]bool{}
	gpio.MockGPIO(
		func(pin int, high bool) { state[pin] = high },
		func(pin int) bool { return state[pin] },
	)
	pm := power.NewManager(clock.NewFake(time.Unix(0, 0)), 0)
	require.NoError(t, pm.Enable(context.Background(), []power.Rail{
		{Name: "TEMP_AHT21", Pin: model.GPIOPin{Number: 17, ActiveHigh: true}},
	}))
	return pm, state
}

func TestShutdownPowersRailsOff(t *testing.T) {
	pm, state := poweredManager(t)
	orig := env.Cfg
	env.Cfg = &config.Config{}
	t.Cleanup(func() { env.Cfg = orig })

	Shutdown(pm)
	assert.False(t, state[17])
	assert.Empty(t, pm.Rails())
}

func TestShutdownSafeModeLeavesPins(t *testing.T) {
	pm, state := poweredManager(t)
	orig := env.Cfg
	env.Cfg = &config.Config{SafeMode: true}
	t.Cleanup(func() { env.Cfg = orig })

	Shutdown(pm)
	assert.True(t, state[17])
	assert.Len(t, pm.Rails(), 1)
}
