package tunnel

import "syscall"

// sysProcAttr puts the client in its own process group so a terminal
// interrupt reaches only us, and asks the kernel to SIGTERM it if we
// die first.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGTERM,
	}
}
