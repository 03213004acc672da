//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package scanner

import (
	"os"
	"time"
)

func ownerName(os.FileInfo) string { return "" }

func changeTime(info os.FileInfo) time.Time { return info.ModTime() }
