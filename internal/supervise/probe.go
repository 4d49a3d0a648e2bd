package supervise

import (
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// defaultProbe checks PID existence and start time via gopsutil, which
// handles the platform differences (signal 0 on POSIX, handle query on
// Windows).
type defaultProbe struct{}

func (defaultProbe) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	exists, err := process.PidExists(int32(pid))
	return err == nil && exists
}

func (defaultProbe) StartedAt(pid int) (time.Time, bool) {
	if pid <= 0 {
		return time.Time{}, false
	}
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return time.Time{}, false
	}
	ms, err := p.CreateTime()
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}
