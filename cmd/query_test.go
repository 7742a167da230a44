package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertQuery(t *testing.T) {
	for in, want := range map[string]string{
		"":                     "*:*",
		"  ":                   "*:*",
		"*":                    "*:*",
		"spoken dutch":         "spoken dutch",
		`"oral history" -test`: `"oral history" -test`,
	} {
		got, err := convertQuery(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestConvertAdvancedQuery(t *testing.T) {
	q, err := convertQuery("title: {frisian}")
	require.NoError(t, err)
	assert.Contains(t, q, "frisian")

	_, err = convertQuery("title: {frisian")
	assert.ErrorIs(t, err, errInvalidQuery)
}
