package shim

import (
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/pkg/errors"
)

// A Proc carries the shim protocol. Host.Close interrupts it with
// Signal, closes it, then reaps it with Wait.
type Proc interface {
	io.ReadWriteCloser
	Signal(os.Signal) error
	Wait() error
}

// execProc is a shim running as a child process. Its stdin and stdout
// carry the protocol; its stderr is passed through.
type execProc struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser

	waitOnce sync.Once
	waitErr  error
}

// Exec starts the shim executable file with args.
func Exec(file string, args ...string) (Proc, error) {
	path, err := exec.LookPath(file)
	if err != nil {
		return nil, errors.Wrap(err, "find shim")
	}
	p := &execProc{cmd: exec.Command(path, args...)}
	p.cmd.Stderr = os.Stderr
	if p.stdin, err = p.cmd.StdinPipe(); err != nil {
		return nil, errors.Wrap(err, "shim stdin")
	}
	if p.stdout, err = p.cmd.StdoutPipe(); err != nil {
		return nil, errors.Wrap(err, "shim stdout")
	}
	if err := p.cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "start shim %s", path)
	}
	return p, nil
}

func (p *execProc) Read(b []byte) (int, error)  { return p.stdout.Read(b) }
func (p *execProc) Write(b []byte) (int, error) { return p.stdin.Write(b) }

func (p *execProc) Signal(sig os.Signal) error {
	return errors.Wrapf(p.cmd.Process.Signal(sig), "signal shim %v", sig)
}

// Close hangs up the shim's stdin and kills it if it is still running.
func (p *execProc) Close() error {
	p.stdin.Close()
	if err := p.cmd.Process.Kill(); err != nil && !exitedErr(err) {
		return errors.Wrap(err, "kill shim")
	}
	return nil
}

// Wait reaps the shim. It may be called more than once.
func (p *execProc) Wait() error {
	p.waitOnce.Do(func() {
		p.waitErr = p.cmd.Wait()
	})
	return p.waitErr
}

// exitedErr reports whether err came from signalling a process that
// already exited.
func exitedErr(err error) bool {
	return err != nil && err.Error() == "os: process already finished"
}

// stream is a Proc over an already open connection, such as a socket
// to a shim daemon. There is no process to signal: an interrupt hangs
// up the connection.
type stream struct {
	io.ReadWriteCloser
	once sync.Once
	err  error
	done chan struct{}
}

// Stream wraps rwc as a Proc. Wait returns once Close has been called.
func Stream(rwc io.ReadWriteCloser) Proc {
	return &stream{ReadWriteCloser: rwc, done: make(chan struct{})}
}

func (s *stream) Close() error {
	s.once.Do(func() {
		s.err = s.ReadWriteCloser.Close()
		close(s.done)
	})
	return s.err
}

func (s *stream) Signal(os.Signal) error { return s.Close() }

func (s *stream) Wait() error {
	<-s.done
	return nil
}
