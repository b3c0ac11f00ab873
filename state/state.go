package state

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/benbjohnson/clock"
)

// ErrNotNeighbour is returned by a link asked to transmit to a node it has no link to
var ErrNotNeighbour = errors.New("not a neighbour")

type NyModule interface {
	Init(s *State) error
	Cleanup(s *State) error
}

// State access must be done only on a single Goroutine
type State struct {
	*Env
	Modules map[string]NyModule
}

// Env can be read from any Goroutine
type Env struct {
	DispatchChannel chan<- func(s *State) error
	CentralCfg
	LocalCfg
	Book       *AddressBook
	Clock      clock.Clock
	Context    context.Context
	Cancel     context.CancelCauseFunc
	Log        *slog.Logger
	ConfigPath string
	// DebugAddr serves metrics and the inspect page when set
	DebugAddr string
	// Trace logs every protocol event at info level
	Trace    bool
	Started  atomic.Bool
	Stopping atomic.Bool
}

// Self returns the address this node answers to.
func (e *Env) Self() NodeCfg {
	return e.GetNode(e.LocalCfg.Id)
}
