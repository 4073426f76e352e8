//go:build !linux

package main

import (
	"context"
	"errors"
	"time"
)

type evdevBackend struct {
	path  string
	scale float32
}

func (b *evdevBackend) Run(ctx context.Context, _ time.Duration, _ readingSink) error {
	return errors.New("evdev sensors are only supported on linux")
}
