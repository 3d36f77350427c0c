//go:build linux

package tail

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// configureChild 让 tail 在监控进程退出时收到 SIGTERM 不会成为孤儿进程
func configureChild(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Pdeathsig: unix.SIGTERM}
}
