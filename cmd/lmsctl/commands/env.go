// Package commands implements the lmsctl subcommands.
package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
	"gorm.io/gorm"

	"lms/internal/config"
	"lms/internal/cryptox"
	"lms/internal/db"
	"lms/internal/keysource"
	"lms/internal/repository"
	"lms/internal/service"
)

// Env holds the dependencies of every command. Tests replace the
// constructors with in-memory fakes.
type Env struct {
	Out io.Writer
	In  io.Reader

	SecretService  func(ctx context.Context) (service.SecretService, error)
	UserRepository func(ctx context.Context) (repository.UserRepository, error)
	Migrate        func(ctx context.Context) error
	StoreMasterKey func(key string) error
	ReadSecret     func(prompt string) (string, error)
}

// readPassword is a seam over term.ReadPassword.
var readPassword = term.ReadPassword

// DefaultEnv wires commands to the configured database and master key.
// Configuration is loaded on first use so that keygen works without it.
func DefaultEnv() *Env {
	var (
		once   sync.Once
		cfg    *config.Config
		gormDB *gorm.DB
		err    error
	)
	open := func() (*config.Config, *gorm.DB, error) {
		once.Do(func() {
			cfg, err = config.Load()
			if err != nil {
				return
			}
			if err = cfg.Validate(); err != nil {
				return
			}
			gormDB, err = db.NewMySQL(cfg.MySQLDSN)
		})
		return cfg, gormDB, err
	}

	env := &Env{
		Out:            os.Stdout,
		In:             os.Stdin,
		StoreMasterKey: keysource.StoreInKeyring,
	}
	env.ReadSecret = func(prompt string) (string, error) {
		return readSecret(env.In, env.Out, prompt)
	}
	env.Migrate = func(ctx context.Context) error {
		_, gormDB, err := open()
		if err != nil {
			return err
		}
		return db.Migrate(ctx, gormDB)
	}
	env.UserRepository = func(ctx context.Context) (repository.UserRepository, error) {
		_, gormDB, err := open()
		if err != nil {
			return nil, err
		}
		return repository.NewUserRepository(gormDB), nil
	}
	env.SecretService = func(ctx context.Context) (service.SecretService, error) {
		cfg, gormDB, err := open()
		if err != nil {
			return nil, err
		}
		src, err := keysource.FromConfig(ctx, cfg)
		if err != nil {
			return nil, err
		}
		key, err := src.MasterKey(ctx)
		if err != nil {
			return nil, err
		}
		cipher, err := cryptox.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return service.NewSecretService(repository.NewSecretRepository(gormDB), cipher, cfg.AppEnv, nil), nil
	}
	return env
}

// readSecret reads a value without echo when in is a terminal and a single
// line otherwise.
func readSecret(in io.Reader, out io.Writer, prompt string) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(out, prompt)
		b, err := readPassword(int(f.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("read input: %w", err)
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
