package scheduling

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	tx "github.com/kgricour/archethic-node/transaction"
)

// Registry maps the scheduled transaction types to their crontabs and
// answers the only question the validator asks: when was the last
// expected trigger before a given instant.
type Registry struct {
	mutex     sync.RWMutex
	schedules map[tx.Type]cron.Schedule
}

var parser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

func NewRegistry() *Registry {
	return &Registry{
		schedules: make(map[tx.Type]cron.Schedule),
	}
}

// Register binds a transaction type to a six-field crontab
func (r *Registry) Register(txType tx.Type, spec string) error {
	schedule, err := parser.Parse(spec)
	if err != nil {
		return fmt.Errorf("invalid crontab %q:%v", spec, err)
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.schedules[txType] = schedule
	return nil
}

// LastTriggerAt returns the largest trigger instant not after now
func (r *Registry) LastTriggerAt(txType tx.Type, now time.Time) (time.Time, error) {
	r.mutex.RLock()
	schedule, ok := r.schedules[txType]
	r.mutex.RUnlock()

	if !ok {
		return time.Time{}, fmt.Errorf("no schedule for %s transactions", tx.TypeName(txType))
	}

	now = now.UTC().Truncate(time.Second)

	// widen the lookback until it contains a trigger, then walk
	// forward to the last one not after now
	lookback := time.Minute
	for schedule.Next(now.Add(-lookback)).After(now) {
		lookback *= 2
		if lookback > 366*24*time.Hour {
			return time.Time{}, fmt.Errorf("no trigger within a year for %s transactions",
				tx.TypeName(txType))
		}
	}

	last := time.Time{}
	for t := schedule.Next(now.Add(-lookback)); !t.After(now); t = schedule.Next(t) {
		last = t
	}
	return last, nil
}
