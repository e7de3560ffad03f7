package main

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunExitStatus(t *testing.T) {
	args := os.Args
	t.Cleanup(func() { os.Args = args })

	t.Run("version succeeds", func(t *testing.T) {
		os.Args = []string{"agileboard", "--version"}
		assert.Equal(t, 0, run())
	})

	t.Run("unknown command fails", func(t *testing.T) {
		os.Args = []string{"agileboard", "no-such-command"}
		assert.Equal(t, 1, run())
	})
}
