//go:build linux || darwin || freebsd || netbsd || openbsd

package scanner

import (
	"os"
	"os/user"
	"strconv"
	"sync"
	"syscall"
	"time"
)

var ownerCache sync.Map // uid -> name

func ownerName(info os.FileInfo) string {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return ""
	}
	uid := strconv.FormatUint(uint64(st.Uid), 10)
	if name, ok := ownerCache.Load(uid); ok {
		return name.(string)
	}
	name := uid
	if u, err := user.LookupId(uid); err == nil {
		name = u.Username
	}
	ownerCache.Store(uid, name)
	return name
}

func changeTime(info os.FileInfo) time.Time {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return info.ModTime()
	}
	sec, nsec := statCtime(st)
	return time.Unix(sec, nsec)
}
