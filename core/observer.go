package core

import (
	"time"

	"github.com/0xRadioAc7iv/caskdb/internal/recovery"
)

// RecoveryStats summarizes the replay Open performed.
type RecoveryStats = recovery.Stats

// Op names a datastore operation reported to an Observer.
type Op string

const (
	OpGet    Op = "get"
	OpInsert Op = "insert"
	OpDelete Op = "delete"
)

// Outcome is how an operation ended.
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeMiss    Outcome = "miss" // get of an absent key
	OutcomeError   Outcome = "error"
	OutcomeCorrupt Outcome = "corrupt"
)

// Observer receives diagnostics from a Datastore. Methods are called
// synchronously from the goroutine doing the work and must not block or call
// back into the Datastore.
type Observer interface {
	OnRecovery(stats RecoveryStats)
	OnCorruptRead(file string, offset int64)
	OnRotate(from, to string)
	OnOperation(op Op, outcome Outcome, bytes int, elapsed time.Duration)
}

// NopObserver ignores everything.
type NopObserver struct{}

func (NopObserver) OnRecovery(RecoveryStats)                    {}
func (NopObserver) OnCorruptRead(string, int64)                 {}
func (NopObserver) OnRotate(string, string)                     {}
func (NopObserver) OnOperation(Op, Outcome, int, time.Duration) {}

type multiObserver []Observer

// Observers fans every call out to each of obs in order. Nil entries are
// dropped.
func Observers(obs ...Observer) Observer {
	m := make(multiObserver, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			m = append(m, o)
		}
	}
	return m
}

func (m multiObserver) OnRecovery(stats RecoveryStats) {
	for _, o := range m {
		o.OnRecovery(stats)
	}
}

func (m multiObserver) OnCorruptRead(file string, offset int64) {
	for _, o := range m {
		o.OnCorruptRead(file, offset)
	}
}

func (m multiObserver) OnRotate(from, to string) {
	for _, o := range m {
		o.OnRotate(from, to)
	}
}

func (m multiObserver) OnOperation(op Op, outcome Outcome, bytes int, elapsed time.Duration) {
	for _, o := range m {
		o.OnOperation(op, outcome, bytes, elapsed)
	}
}
