package dispatch

import "fmt"

// Mode is the trigger source of a worker run. It is threaded explicitly
// through Run and recorded as wake_source on every server-side trace row.
type Mode string

const (
	ModeManual Mode = "manual"
	ModeCron   Mode = "cron"
	ModeWakeup Mode = "wakeup"
	ModeShadow Mode = "shadow"
)

func (m Mode) Valid() bool {
	switch m {
	case ModeManual, ModeCron, ModeWakeup, ModeShadow:
		return true
	}
	return false
}

func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if !m.Valid() {
		return "", fmt.Errorf("dispatch: unknown mode %q", s)
	}
	return m, nil
}
