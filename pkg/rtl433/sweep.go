package rtl433

import (
	"context"
	"errors"
	"os/exec"

	"github.com/primetalk/goio/io"
	"go.uber.org/zap"
)

// Sweeper kills every process matching a name.
type Sweeper interface {
	Sweep(ctx context.Context, name string) error
}

// PkillSweeper runs "pkill -f <name>".
type PkillSweeper struct{}

func (PkillSweeper) Sweep(ctx context.Context, name string) error {
	out, err := exec.CommandContext(ctx, "pkill", "-f", name).CombinedOutput()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		// no process matched
		return nil
	}
	if err != nil {
		return errors.Join(err, errors.New(string(out)))
	}
	return nil
}

// Sweep runs the configured sweeper bounded by the sweep timeout. Failures
// are logged only.
func (p *Process) Sweep() {
	p.sweep()
}

func (p *Process) sweep() {
	name := p.Name()
	p.logger.Info("rtl433: killing any remaining process for good measure", zap.String("name", name))

	ctx, cancel := context.WithTimeout(context.Background(), p.sweepTimeout)
	defer cancel()

	task := io.Eval(func() (struct{}, error) {
		return struct{}{}, p.sweeper.Sweep(ctx, name)
	})
	result := io.RunSync(io.WithTimeout[struct{}](p.sweepTimeout)(task))
	if result.Error != nil {
		p.logger.Warn("rtl433: process sweep failed", zap.String("name", name), zap.Error(result.Error))
	}
}
