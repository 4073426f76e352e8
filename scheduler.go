package magnetswipe

import (
	"sync"
	"time"
)

// TimerScheduler is a Scheduler backed by time.AfterFunc.
//
// Expired callbacks are not run on the timer goroutine: they are handed to
// post, which must forward them to the detector owner's serialized context
// (typically by sending an input to its event loop).
type TimerScheduler struct {
	post func(fn func())

	mu     sync.Mutex
	next   TimerHandle
	timers map[TimerHandle]*time.Timer
}

// NewTimerScheduler returns a scheduler delivering callbacks through post.
func NewTimerScheduler(post func(fn func())) *TimerScheduler {
	return &TimerScheduler{
		post:   post,
		timers: make(map[TimerHandle]*time.Timer),
	}
}

func (s *TimerScheduler) ScheduleOnce(delay time.Duration, fn func()) TimerHandle {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.next++
	h := s.next
	s.timers[h] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		_, live := s.timers[h]
		delete(s.timers, h)
		s.mu.Unlock()
		if live {
			s.post(fn)
		}
	})
	return h
}

func (s *TimerScheduler) Cancel(h TimerHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[h]; ok {
		t.Stop()
		delete(s.timers, h)
	}
}
