// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"testing"
	"time"

	"github.com/joeycumines/go-reactor/timerwheel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveLoopOptions_defaults(t *testing.T) {
	cfg, err := resolveLoopOptions(nil)
	require.NoError(t, err)
	assert.Nil(t, cfg.logger)
	assert.NotNil(t, cfg.multiplexer)
	assert.NotNil(t, cfg.clock)
	assert.Equal(t, DefaultMaxEvents, cfg.maxEvents)
	assert.Equal(t, DefaultTick, cfg.tick)
	assert.Equal(t, DefaultMaxWait, cfg.maxWait)
	assert.Equal(t, timerwheel.DefaultLevels, cfg.levels)
	assert.Zero(t, cfg.capacity)
}

func TestResolveLoopOptions_nilOptionSkipped(t *testing.T) {
	cfg, err := resolveLoopOptions([]LoopOption{nil, WithMaxEvents(3), nil})
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.maxEvents)
}

func TestResolveLoopOptions_values(t *testing.T) {
	clock := func() time.Time { return time.Time{} }
	cfg, err := resolveLoopOptions([]LoopOption{
		WithTick(time.Second),
		WithWheelLevels(2),
		WithMaxWait(-1),
		WithCapacity(100),
		WithClock(clock),
	})
	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.tick)
	assert.Equal(t, 2, cfg.levels)
	assert.Equal(t, time.Duration(-1), cfg.maxWait)
	assert.Equal(t, 100, cfg.capacity)
	assert.NotNil(t, cfg.clock)
}

func TestResolveLoopOptions_invalid(t *testing.T) {
	for name, opt := range map[string]LoopOption{
		`max events`:  WithMaxEvents(0),
		`tick`:        WithTick(0),
		`levels low`:  WithWheelLevels(0),
		`levels high`: WithWheelLevels(timerwheel.MaxLevels + 1),
		`capacity`:    WithCapacity(-1),
		`multiplexer`: WithMultiplexer(nil),
		`clock`:       WithClock(nil),
	} {
		t.Run(name, func(t *testing.T) {
			cfg, err := resolveLoopOptions([]LoopOption{opt})
			assert.Nil(t, cfg)
			assert.ErrorContains(t, err, `eventloop: `)

			l, err := New(opt)
			assert.Nil(t, l)
			assert.Error(t, err)
		})
	}
}

func TestNew_wheelLevels(t *testing.T) {
	l, _, _ := newStepLoop(t, WithWheelLevels(3), WithCapacity(16))
	assert.Equal(t, 3, l.wheel.Levels())
	assert.Equal(t, 16, cap(l.table.slots))
	assert.Equal(t, time.Millisecond, l.Tick())
}
