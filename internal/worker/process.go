package worker

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/floranet-go/internal/logger"
)

const maxLineSize = 1 << 20

// process is one classifier subprocess and its reader goroutines.
type process struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	lines   chan []byte   // complete stdout lines; closed on stdout EOF
	done    chan struct{} // closed after the process has been reaped
	quit    chan struct{} // closed when the supervisor gives up on this process
	exitErr error         // valid once done is closed
	tail    *stderrTail
	started time.Time

	quitOnce sync.Once
	killed   atomic.Bool // set when the supervisor ended the process on purpose
}

// spawn starts the classifier with all three standard streams captured.
// onExit runs once from the reader goroutine after the process is reaped.
func spawn(cfg *Config, log logger.Logger, onExit func(*process)) (*process, error) {
	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Env = append(os.Environ(), cfg.Env...)
	cmd.Dir = cfg.Dir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", cfg.Command, err)
	}

	p := &process{
		cmd:     cmd,
		stdin:   stdin,
		lines:   make(chan []byte),
		done:    make(chan struct{}),
		quit:    make(chan struct{}),
		tail:    newStderrTail(cfg.StderrTail),
		started: time.Now(),
	}

	stderrDone := make(chan struct{})
	go p.readStderr(stderr, stderrDone, log)
	go p.readStdout(stdout, stderrDone, onExit)

	log.Info("classifier started",
		logger.Int("pid", cmd.Process.Pid),
		logger.String("command", cfg.Command))

	return p, nil
}

// readStdout delivers complete lines until EOF, then reaps the process.
// Wait must not run before both pipes are drained.
func (p *process) readStdout(stdout io.Reader, stderrDone <-chan struct{}, onExit func(*process)) {
	reader := bufio.NewReaderSize(stdout, 64*1024)
	for {
		line, err := readLine(reader)
		if err != nil {
			break
		}
		select {
		case p.lines <- line:
		case <-p.quit:
		}
	}
	close(p.lines)

	<-stderrDone
	p.exitErr = p.cmd.Wait()
	close(p.done)
	onExit(p)
}

// readLine accumulates partial reads until a newline. A trailing fragment
// without a newline at EOF is dropped.
func readLine(r *bufio.Reader) ([]byte, error) {
	var line []byte
	for {
		chunk, err := r.ReadSlice('\n')
		line = append(line, chunk...)
		if len(line) > maxLineSize {
			return nil, fmt.Errorf("line exceeds %d bytes", maxLineSize)
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		if err != nil {
			return nil, err
		}
		return line, nil
	}
}

func (p *process) readStderr(stderr io.Reader, done chan<- struct{}, log logger.Logger) {
	defer close(done)
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)
	for scanner.Scan() {
		line := scanner.Text()
		_, _ = p.tail.Write([]byte(line + "\n"))
		log.Debug("classifier stderr", logger.String("line", line))
	}
	// Keep draining so the child never blocks on a full stderr pipe
	_, _ = io.Copy(io.Discard, stderr)
}

// kill abandons the process. Safe to call more than once.
func (p *process) kill() {
	p.quitOnce.Do(func() {
		p.killed.Store(true)
		close(p.quit)
		_ = p.stdin.Close()
		if p.cmd.Process != nil {
			_ = p.cmd.Process.Kill()
		}
	})
}

// shutdown closes stdin and waits up to grace for a clean exit before killing.
func (p *process) shutdown(grace time.Duration) {
	p.quitOnce.Do(func() {
		p.killed.Store(true)
		close(p.quit)
		_ = p.stdin.Close()
	})

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-p.done:
		return
	case <-timer.C:
	}

	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	<-p.done
}

// exitDetail waits briefly for the exit status after stdout closed.
func (p *process) exitDetail() error {
	timer := time.NewTimer(time.Second)
	defer timer.Stop()
	select {
	case <-p.done:
		if p.exitErr != nil {
			return fmt.Errorf("classifier exited: %w", p.exitErr)
		}
		return fmt.Errorf("classifier exited")
	case <-timer.C:
		return fmt.Errorf("classifier closed its output")
	}
}

func (p *process) pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}
