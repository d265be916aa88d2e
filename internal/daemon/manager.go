package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/corvushealth/engine/internal/rpc"
)

const pidFilePath = "/tmp/engined.pid"

// EnsureRunning starts the engine daemon as a background process if its
// control socket isn't already alive. The `engine channel ...` commands
// do not call it; they dial an already running daemon.
func EnsureRunning() error {
	if isSocketAlive() {
		return nil
	}
	return startDaemon()
}

// Stop sends SIGTERM to the daemon process named in the PID file, waits
// 500ms (it does not check that the process has exited), then removes its
// socket and PID file.
func Stop() error {
	pid, err := readPidFile()
	if err != nil {
		return fmt.Errorf("daemon: not running")
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return err
	}

	time.Sleep(500 * time.Millisecond)
	os.Remove(rpc.DefaultSocketPath)
	os.Remove(pidFilePath)
	return nil
}

func startDaemon() error {
	execPath, err := findDaemonExecutable()
	if err != nil {
		return err
	}

	cmd := exec.Command(execPath)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	logFile, _ := os.OpenFile("/tmp/engined.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("daemon: start: %w", err)
	}

	if err := os.WriteFile(pidFilePath, []byte(fmt.Sprintf("%d", cmd.Process.Pid)), 0o644); err != nil {
		return err
	}

	for i := 0; i < 30; i++ {
		time.Sleep(100 * time.Millisecond)
		if isSocketAlive() {
			return nil
		}
	}
	return fmt.Errorf("daemon: started but control socket not ready")
}

func isSocketAlive() bool {
	_, err := os.Stat(rpc.DefaultSocketPath)
	return err == nil
}

func readPidFile() (int, error) {
	data, err := os.ReadFile(pidFilePath)
	if err != nil {
		return 0, err
	}
	var pid int
	fmt.Sscanf(string(data), "%d", &pid)
	return pid, nil
}

func findDaemonExecutable() (string, error) {
	execPath, _ := os.Executable()
	dir := filepath.Dir(execPath)
	daemonPath := filepath.Join(dir, "engined")
	if _, err := os.Stat(daemonPath); err == nil {
		return daemonPath, nil
	}

	path, err := exec.LookPath("engined")
	if err == nil {
		return path, nil
	}
	return "", fmt.Errorf("daemon: engined executable not found")
}
