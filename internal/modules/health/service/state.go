package service

import (
	"sync/atomic"
	"time"
)

// State — рантайм-состояние бота для health-эндпоинтов.
type State struct {
	ready     atomic.Bool
	startedAt time.Time

	inPosition   atomic.Bool
	breaker      atomic.Bool
	lastTickUnix atomic.Int64 // unix seconds
}

func NewState() *State {
	s := &State{startedAt: time.Now()}
	s.ready.Store(false)
	return s
}

func (s *State) SetReady(v bool) { s.ready.Store(v) }
func (s *State) Ready() bool     { return s.ready.Load() }

func (s *State) SetInPosition(v bool) { s.inPosition.Store(v) }
func (s *State) InPosition() bool     { return s.inPosition.Load() }

func (s *State) SetBreaker(v bool) { s.breaker.Store(v) }
func (s *State) Breaker() bool     { return s.breaker.Load() }

func (s *State) TouchTick(t time.Time) { s.lastTickUnix.Store(t.Unix()) }
func (s *State) LastTick() time.Time {
	u := s.lastTickUnix.Load()
	if u == 0 {
		return time.Time{}
	}
	return time.Unix(u, 0)
}

func (s *State) Uptime() time.Duration { return time.Since(s.startedAt) }
