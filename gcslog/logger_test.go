package gcslog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCallbackReceivesErrorByDefault(t *testing.T) {
	var got string
	sink := New(WithCallback(func(cat Category, msg string) {
		got = msg
	}))
	sink.Logf(CatError, "boom %d", 1)
	assert.Contains(t, got, "ERROR")
	assert.Contains(t, got, "boom 1")
}

func TestDebugCategorySuppressedByDefault(t *testing.T) {
	var got string
	sink := New(WithCallback(func(cat Category, msg string) {
		got = msg
	}))
	sink.Logf(CatSend, "fragment sent")
	assert.Empty(t, got)
}

func TestDebugCategoryEnabledWithWithDebug(t *testing.T) {
	var got string
	sink := New(WithDebug(true), WithCallback(func(cat Category, msg string) {
		got = msg
	}))
	sink.Logf(CatSend, "fragment sent")
	assert.Contains(t, got, "SEND")
}
