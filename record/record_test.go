// Copyright 2026 The Gozo Authors.

package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshal_RejectsGarbage(t *testing.T) {
	_, err := Unmarshal([]byte("not json"))
	require.Error(t, err)
}

func TestMarshal_OmitsEmptyHeaders(t *testing.T) {
	data, err := Record{ReplySubject: "r.a"}.Marshal()
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"headers"`)
}
