package repl

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"cas-bridge/internal/dialect"
)

// stdinWriter wraps the engine's stdin with mutex protection so Close can
// race with the engine loop safely.
type stdinWriter struct {
	mu     sync.Mutex
	writer *os.File
	closed bool
}

func (sw *stdinWriter) WriteString(s string) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.closed {
		return fmt.Errorf("stdin pipe closed")
	}
	_, err := sw.writer.WriteString(s)
	return err
}

func (sw *stdinWriter) Close() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if !sw.closed {
		sw.writer.Close()
		sw.closed = true
	}
}

// child is a running engine process. stdout and stderr share one pipe.
type child struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	stdin  *stdinWriter
	output *os.File

	done     chan struct{}
	exitCode int
}

func spawn(p *dialect.Profile, dir string) (*child, error) {
	binaryPath, err := exec.LookPath(p.Command)
	if err != nil {
		return nil, fmt.Errorf("%w: %s not found in PATH", ErrSpawn, p.Command)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, binaryPath, p.Args...)
	cmd.Dir = dir
	if len(p.Env) > 0 {
		cmd.Env = append(os.Environ(), p.Env...)
	}

	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: create stdin pipe: %v", ErrSpawn, err)
	}
	outR, outW, err := os.Pipe()
	if err != nil {
		cancel()
		stdinR.Close()
		stdinW.Close()
		return nil, fmt.Errorf("%w: create output pipe: %v", ErrSpawn, err)
	}
	cmd.Stdin = stdinR
	cmd.Stdout = outW
	cmd.Stderr = outW

	if err := cmd.Start(); err != nil {
		cancel()
		stdinR.Close()
		stdinW.Close()
		outR.Close()
		outW.Close()
		return nil, fmt.Errorf("%w: start %s: %v", ErrSpawn, p.Command, err)
	}

	// The child holds its own copies; closing ours lets reads on outR see
	// end-of-stream when the child exits.
	stdinR.Close()
	outW.Close()

	c := &child{
		cmd:    cmd,
		cancel: cancel,
		stdin:  &stdinWriter{writer: stdinW},
		output: outR,
		done:   make(chan struct{}),
	}
	go c.waitForExit()
	return c, nil
}

// waitForExit reaps the process and records its exit code.
func (c *child) waitForExit() {
	err := c.cmd.Wait()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			c.exitCode = exitErr.ExitCode()
		} else {
			c.exitCode = -1
		}
	}
	c.stdin.Close()
	close(c.done)
}

// terminate closes stdin and interrupts the process, killing it if it has
// not exited after grace.
func (c *child) terminate(grace time.Duration) {
	c.stdin.Close()

	select {
	case <-c.done:
	default:
		if c.cmd.Process != nil {
			c.cmd.Process.Signal(os.Interrupt)
		}
		select {
		case <-c.done:
		case <-time.After(grace):
			c.cancel()
			<-c.done
		}
	}
	c.cancel()
	c.output.Close()
}
