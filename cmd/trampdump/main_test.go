package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/retrogolib/log"
	"github.com/wnxd/battlecam/battle"
)

func TestDump(t *testing.T) {
	var out bytes.Buffer
	layout := battle.DefaultLayout()
	assert.NoError(t, dump(context.Background(), log.NewTestLogger(t), &out, layout))

	text := out.String()
	assert.Contains(t, text, "; site 008F8E8B, 15 bytes")
	assert.Contains(t, text, "; site 008F8C6C, 11 bytes")
	assert.Contains(t, text, "; site 008F9439, 11 bytes")
	assert.Contains(t, text, "; site 008F8EB7, 17 bytes")
	assert.Contains(t, text, "resumes at 008F8E93")
	assert.Contains(t, text, "; 63 store sites are nopped in place")
	assert.Equal(t, 1, strings.Count(text, "; trampoline"))
}

func TestDumpCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	err := dump(ctx, log.NewTestLogger(t), &out, battle.DefaultLayout())
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestDumpInvalidLayout(t *testing.T) {
	var out bytes.Buffer
	err := dump(context.Background(), log.NewTestLogger(t), &out, battle.Layout{})
	assert.Error(t, err)
	assert.Equal(t, 0, out.Len())
}
