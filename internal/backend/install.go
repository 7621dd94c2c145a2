package backend

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"
)

// EnvManager prepares the Python environment of a backend module. The
// production implementation shells out to uv; tests substitute a fake.
type EnvManager interface {
	// CreateEnv creates the module's virtual environment if absent.
	CreateEnv(ctx context.Context, dir string) error

	// SyncDeps installs the module's declared dependencies into its
	// environment.
	SyncDeps(ctx context.Context, dir string) error
}

// UvEnvManager drives uv for environment creation and dependency sync.
type UvEnvManager struct {
	// Binary overrides the uv executable path; defaults to "uv".
	Binary string

	Logger *zap.Logger
}

func (u *UvEnvManager) binary() string {
	if u.Binary != "" {
		return u.Binary
	}
	return "uv"
}

// CreateEnv runs "uv venv" in the module directory.
func (u *UvEnvManager) CreateEnv(ctx context.Context, dir string) error {
	return u.run(ctx, dir, "venv")
}

// SyncDeps runs "uv sync" in the module directory.
func (u *UvEnvManager) SyncDeps(ctx context.Context, dir string) error {
	return u.run(ctx, dir, "sync")
}

func (u *UvEnvManager) run(ctx context.Context, dir string, args ...string) error {
	cmd := exec.CommandContext(ctx, u.binary(), args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if u.Logger != nil {
		u.Logger.Debug("uv invocation",
			zap.Strings("args", args),
			zap.String("dir", dir),
			zap.ByteString("output", out),
			zap.Error(err))
	}
	if err != nil {
		return fmt.Errorf("uv %v: %w", args, err)
	}
	return nil
}

// InstallStage identifies a step of the install pipeline.
type InstallStage string

// Install pipeline stages, in execution order.
const (
	StageCreateEnv   InstallStage = "create_env"
	StagePreInstall  InstallStage = "pre_install"
	StageSyncDeps    InstallStage = "sync_deps"
	StagePostInstall InstallStage = "post_install"
	StageDone        InstallStage = "done"
)

// Progress is one install pipeline update.
type Progress struct {
	Backend string
	Stage   InstallStage
	Err     error
}

// InstallJob is one asynchronous install of a backend module. Consumers
// either drain Events or call Wait; both observe the same terminal error.
type InstallJob struct {
	backend Backend
	dir     string
	env     EnvManager
	logger  *zap.Logger

	events chan Progress
	done   chan struct{}

	mu  sync.Mutex
	err error

	// onSuccess persists the installed state; set by the registry.
	onSuccess func(installedAt time.Time) error
}

// Events streams pipeline progress. The channel closes when the job ends.
func (j *InstallJob) Events() <-chan Progress { return j.events }

// Wait blocks until the job finishes or ctx is done, returning the job's
// terminal error.
func (j *InstallJob) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return j.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the terminal error once the job finished; nil on success or
// while still running.
func (j *InstallJob) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

func (j *InstallJob) fail(err error) {
	j.mu.Lock()
	j.err = err
	j.mu.Unlock()
}

func (j *InstallJob) emit(stage InstallStage, err error) {
	select {
	case j.events <- Progress{Backend: j.backend.Name(), Stage: stage, Err: err}:
	default:
		// Slow or absent consumer; progress is advisory.
	}
}

// run executes the pipeline. It is started by the registry in its own
// goroutine and checks ctx between stages.
func (j *InstallJob) run(ctx context.Context) {
	defer close(j.done)
	defer close(j.events)

	stages := []struct {
		stage InstallStage
		fn    func() error
	}{
		{StageCreateEnv, func() error { return j.env.CreateEnv(ctx, j.dir) }},
		{StagePreInstall, func() error { return j.backend.PreInstall(j.dir) }},
		{StageSyncDeps, func() error { return j.env.SyncDeps(ctx, j.dir) }},
		{StagePostInstall, func() error { return j.backend.PostInstall(j.dir) }},
	}

	for _, s := range stages {
		if err := ctx.Err(); err != nil {
			j.fail(err)
			j.emit(s.stage, err)
			return
		}
		j.emit(s.stage, nil)
		if err := s.fn(); err != nil {
			wrapped := fmt.Errorf("install %s at %s: %w", j.backend.Name(), s.stage, err)
			j.fail(wrapped)
			j.emit(s.stage, wrapped)
			j.logger.Error("backend install failed",
				zap.String("backend", j.backend.Name()),
				zap.String("stage", string(s.stage)),
				zap.Error(err))
			return
		}
	}

	if j.onSuccess != nil {
		if err := j.onSuccess(time.Now().UTC()); err != nil {
			j.fail(err)
			j.emit(StageDone, err)
			return
		}
	}
	j.emit(StageDone, nil)
	j.logger.Info("backend installed", zap.String("backend", j.backend.Name()))
}
