package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFix(t *testing.T) {
	msg, err := parseFix(" 40.7128, -74.0060 , 1 Broadway, New York ")
	require.NoError(t, err)
	require.NotNil(t, msg.Latitude)
	require.NotNil(t, msg.Longitude)
	assert.Equal(t, 40.7128, *msg.Latitude)
	assert.Equal(t, -74.006, *msg.Longitude)
	assert.Equal(t, "1 Broadway, New York", msg.Address)

	msg, err = parseFix("CLEAR")
	require.NoError(t, err)
	assert.Nil(t, msg.Latitude)
	assert.Nil(t, msg.Longitude)
}

func TestParseFix_Invalid(t *testing.T) {
	for _, line := range []string{"40.7", "north,-74", "40.7,east", "91,0", "0,181"} {
		_, err := parseFix(line)
		assert.Error(t, err, line)
	}
}
