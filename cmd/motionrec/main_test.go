package main

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitCode(t *testing.T) {
	mkdirErr := fmt.Errorf("failed to create records directory: %w",
		&os.PathError{Op: "mkdir", Path: "/root/records", Err: syscall.EACCES})

	assert.Equal(t, int(syscall.EACCES), exitCode(mkdirErr))
	assert.Equal(t, 1, exitCode(errors.New("failed to load config")))
}
