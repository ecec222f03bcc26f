package visionocr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"ragctx/internal/clock"
)

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	fc := clock.NewFixed(time.Unix(0, 0))
	b := NewBreaker(3, 30*time.Second, fc)

	b.MarkFailure("decode")
	b.MarkFailure("decode")
	assert.False(t, b.IsOpen("decode"))

	b.MarkFailure("decode")
	assert.True(t, b.IsOpen("decode"))
	assert.Equal(t, StateOpen, b.StateOf("decode"))
}

func TestBreaker_HalfOpenAfterResetTimeout(t *testing.T) {
	fc := clock.NewFixed(time.Unix(0, 0))
	b := NewBreaker(1, 10*time.Second, fc)

	b.MarkFailure("decode")
	assert.True(t, b.IsOpen("decode"))

	fc.Advance(9 * time.Second)
	assert.True(t, b.IsOpen("decode"))

	fc.Advance(2 * time.Second)
	assert.False(t, b.IsOpen("decode"))
	assert.Equal(t, StateHalfOpen, b.StateOf("decode"))
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	fc := clock.NewFixed(time.Unix(0, 0))
	b := NewBreaker(1, 10*time.Second, fc)

	b.MarkFailure("decode")
	fc.Advance(11 * time.Second)
	assert.False(t, b.IsOpen("decode"))

	b.MarkFailure("decode")
	assert.True(t, b.IsOpen("decode"))
}

func TestBreaker_SuccessClosesFromHalfOpen(t *testing.T) {
	fc := clock.NewFixed(time.Unix(0, 0))
	b := NewBreaker(1, 10*time.Second, fc)

	b.MarkFailure("decode")
	fc.Advance(11 * time.Second)
	assert.False(t, b.IsOpen("decode"))

	b.MarkSuccess("decode")
	assert.Equal(t, StateClosed, b.StateOf("decode"))
}

func TestBreaker_OperationsAreIndependent(t *testing.T) {
	fc := clock.NewFixed(time.Unix(0, 0))
	b := NewBreaker(1, 10*time.Second, fc)

	b.MarkFailure("decode")
	assert.True(t, b.IsOpen("decode"))
	assert.False(t, b.IsOpen("index"))
}
