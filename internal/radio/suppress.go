package radio

import (
	logs "github.com/danmuck/meshboard/internal/logging"
)

// SuppressTransient wraps a receive path. Transient decode errors are logged
// and dropped, other errors go to onFault, frames go to next.
func SuppressTransient(next func(Packet), onFault func(error), onDrop func(error)) Handler {
	return func(p Packet, err error) {
		if err == nil {
			if next != nil {
				next(p)
			}
			return
		}
		if IsTransient(err) {
			logs.Debugf("radio.SuppressTransient dropped err=%v", err)
			if onDrop != nil {
				onDrop(err)
			}
			return
		}
		logs.Warnf("radio.SuppressTransient fault err=%v", err)
		if onFault != nil {
			onFault(err)
		}
	}
}
