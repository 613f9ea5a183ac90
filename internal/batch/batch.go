// Package batch fans a deck import out to multiple target environments as
// separate OS processes. Each child runs its own fully sequential import;
// there is no shared state between them and a failure in one environment
// does not interrupt the others.
package batch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"golang.org/x/sync/errgroup"
)

// Environment is one import target.
type Environment struct {
	Name     string `yaml:"name"`
	Protocol string `yaml:"protocol"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Validate validates one environment entry.
func (e Environment) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Name, validation.Required),
		validation.Field(&e.Protocol, validation.Required, validation.In("http", "https")),
		validation.Field(&e.Host, validation.Required),
		validation.Field(&e.Username, validation.Required),
		validation.Field(&e.Password, validation.Required),
	)
}

// ImportSettings are the import options shared by every environment.
type ImportSettings struct {
	Dir            string `yaml:"dir"`
	Owner          string `yaml:"owner"`
	DeckName       string `yaml:"deck_name"`
	Responses      string `yaml:"responses"`
	RenameConflict bool   `yaml:"rename_conflict"`
	TestAuto       string `yaml:"test_auto"`
}

// Config is the batch-import file format.
type Config struct {
	Import       ImportSettings `yaml:"import"`
	Environments []Environment  `yaml:"environments"`
}

// Validate validates the batch configuration.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Environments, validation.Required),
	); err != nil {
		return err
	}
	if c.Import.Dir == "" {
		return fmt.Errorf("import.dir is required")
	}
	if c.Import.Owner == "" {
		return fmt.Errorf("import.owner is required")
	}
	for _, env := range c.Environments {
		if err := env.Validate(); err != nil {
			return fmt.Errorf("environment %s: %w", env.Name, err)
		}
	}
	return nil
}

// Runner launches one child import process per environment.
type Runner struct {
	logger *slog.Logger
	// binary is the executable to spawn, normally os.Args[0].
	binary string
	stdout io.Writer
	stderr io.Writer
}

// New creates a Runner that re-invokes binary with the import subcommand.
func New(binary string, logger *slog.Logger) *Runner {
	return &Runner{
		logger: logger,
		binary: binary,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
}

// Run spawns every environment's import and waits for all of them. Child
// output is streamed line by line, prefixed with the environment name. The
// returned error is the first child failure; every failure is logged.
func (r *Runner) Run(ctx context.Context, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("batch: %w", err)
	}

	var g errgroup.Group
	for _, env := range cfg.Environments {
		env := env
		g.Go(func() error {
			if err := r.runEnvironment(ctx, cfg.Import, env); err != nil {
				r.logger.Error("environment import failed",
					slog.String("environment", env.Name),
					slog.String("error", err.Error()))
				return fmt.Errorf("batch: environment %s: %w", env.Name, err)
			}
			r.logger.Info("environment import complete", slog.String("environment", env.Name))
			return nil
		})
	}
	return g.Wait()
}

// runEnvironment runs one child import to completion.
func (r *Runner) runEnvironment(ctx context.Context, settings ImportSettings, env Environment) error {
	args := []string{
		"import",
		"--dir", settings.Dir,
		"--owner", settings.Owner,
		"--protocol", env.Protocol,
		"--host", env.Host,
		"--user", env.Username,
		"--password", env.Password,
		"--no-spinner",
	}
	if env.Port != "" {
		args = append(args, "--port", env.Port)
	}
	if settings.DeckName != "" {
		args = append(args, "--deck-name", settings.DeckName)
	}
	if settings.Responses != "" {
		args = append(args, "--responses", settings.Responses)
	}
	if settings.RenameConflict {
		args = append(args, "--rename-conflict")
	}
	if settings.TestAuto != "" {
		args = append(args, "--test-auto", settings.TestAuto)
	}

	cmd := exec.CommandContext(ctx, r.binary, args...)
	cmd.Stdout = newPrefixWriter(r.stdout, env.Name)
	cmd.Stderr = newPrefixWriter(r.stderr, env.Name)

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("exited with code %d", exitErr.ExitCode())
		}
		return err
	}
	return nil
}

// prefixWriter prefixes every output line with the environment name so
// interleaved child output stays attributable.
type prefixWriter struct {
	mu     sync.Mutex
	w      io.Writer
	prefix []byte
	buf    bytes.Buffer
}

func newPrefixWriter(w io.Writer, name string) *prefixWriter {
	return &prefixWriter{w: w, prefix: []byte(name + ": ")}
}

func (p *prefixWriter) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buf.Write(data)
	for {
		line, err := p.buf.ReadBytes('\n')
		if err != nil {
			// Partial line: keep for the next write.
			p.buf.Write(line)
			break
		}
		if _, err := p.w.Write(append(append([]byte{}, p.prefix...), line...)); err != nil {
			return len(data), err
		}
	}
	return len(data), nil
}
