// Package runner is the process lifecycle state machine cmd/orbserver runs
// under: start, run until signalled, drain every live session within a
// bounded deadline, stop.
package runner

import (
	"bytes"
	"context"
	"os"

	"github.com/common-nighthawk/go-figure"
	"github.com/dimiro1/banner"
)

type State int

const (
	StateNew State = iota
	StateStarting
	StateRunning
	StateDraining
	StateStopped
)

// Runner is anything that can be run to completion and stopped early.
type Runner interface {
	Run(ctx context.Context) error
	Stop() error
	State() State
}

// Hooks fire around the running phase.
type Hooks struct {
	OnStart func()
	OnStop  func()
}

// Drainer disconnects every live session before the process exits.
type Drainer interface {
	Drain() error
}

const version = "dev"

// PrintBanner writes the startup banner: a figure.Figure ASCII title fed
// through banner.Init for the version/host/timestamp footer banner already
// carries.
func PrintBanner() {
	art := figure.NewFigure("ORB", "", true).String()
	tpl := art + "\nVersion: " + version + "\n"
	banner.Init(os.Stdout, true, true, bytes.NewBufferString(tpl))
}
