// Package deploy sequences one atomic-enough application update: snapshot,
// capture protected files, fetch and stage the artifact, replace the tree,
// restore protected files, sync dependencies, prune. There is no automatic
// rollback anywhere: a failed deployment leaves the directory exactly as it
// was at the point of failure, and recovery is an explicit operator action
// replaying a backup.
package deploy

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"shipyard/internal/artifact"
	"shipyard/internal/backup"
	"shipyard/pkg/cmdutil"
	"shipyard/pkg/fileutil"
)

// Fetcher locates, downloads and unpacks a build artifact. Implemented by
// artifact.GitHub.
type Fetcher interface {
	Locate(ctx context.Context, repository, runID string) (*artifact.Descriptor, error)
	Download(ctx context.Context, d *artifact.Descriptor) (string, error)
	Unpack(archivePath, destDir string) (string, error)
}

// FileSet captures and replays protected files across a tree replacement.
// Implemented by protect.Set.
type FileSet interface {
	Capture(root string) (map[string][]byte, error)
	Restore(root string, files map[string][]byte) error
}

// Config carries everything one orchestrator instance needs. It is a plain
// value object so tests can run multiple independently-configured
// orchestrators side by side.
type Config struct {
	// AppName names the application in logs and history records.
	AppName string

	// AppDir is the live application tree, mutated in place.
	AppDir string

	// PreserveDirs are top-level entries under AppDir that hold long-lived
	// local state not managed by the artifact (dependency environment, log
	// directory). They are left untouched during replacement.
	PreserveDirs []string

	// SyncCommand, when non-empty, is executed in AppDir after the tree is
	// replaced to install dependencies from the manifest now present.
	SyncCommand []string

	// SyncTimeout bounds the sync command. Zero means no timeout.
	SyncTimeout time.Duration

	// FetchTimeout bounds locate plus download plus unpack. The fetch is
	// the only long-blocking, cancellable step; hitting the timeout fails
	// the deployment before the live tree has been touched.
	FetchTimeout time.Duration
}

// Request is one deployment order. All fields are opaque strings passed
// through to the artifact fetcher and echoed back in the result.
type Request struct {
	Version    string
	Repository string
	RunID      string
}

// Result describes a finished deployment attempt. Stage records how far the
// attempt got; on failure it names the stage that failed.
type Result struct {
	Version    string
	Timestamp  time.Time
	Stage      Stage
	BackupName string
}

// Orchestrator runs deployments for a single application. Callers must
// serialize invocations of Deploy through a LockManager; the orchestrator
// itself assumes exclusive ownership of the application directory while
// running.
type Orchestrator struct {
	cfg       Config
	fetcher   Fetcher
	protected FileSet
	backups   *backup.Manager
	logger    *slog.Logger
}

// New creates an orchestrator from its collaborators.
func New(cfg Config, fetcher Fetcher, protected FileSet, backups *backup.Manager, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		fetcher:   fetcher,
		protected: protected,
		backups:   backups,
		logger:    logger.With("app", cfg.AppName),
	}
}

// Config returns the orchestrator's configuration value.
func (o *Orchestrator) Config() Config {
	return o.cfg
}

// Backups returns the backup manager owning this application's snapshots.
func (o *Orchestrator) Backups() *backup.Manager {
	return o.backups
}

// Deploy runs the full update sequence. The returned Result is non-nil even
// on failure so callers can report the stage reached. The error, when
// non-nil, is always a *StageError.
func (o *Orchestrator) Deploy(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	res := &Result{Version: req.Version, Stage: StageIdle}

	select {
	case <-ctx.Done():
		return res, &StageError{Stage: StageIdle, Err: ctx.Err()}
	default:
	}

	o.logger.Info("deployment starting",
		"version", req.Version,
		"repository", req.Repository,
		"run_id", req.RunID)

	// Snapshot the current tree. A deployment that cannot secure its
	// recovery path must not mutate anything, so a failed snapshot aborts.
	res.Stage = StageBackingUp
	backupName, err := o.backups.Snapshot(o.cfg.AppDir)
	if err != nil {
		return res, o.fail(res, err)
	}
	res.BackupName = backupName

	// Protected files must be read before the tree is touched.
	res.Stage = StageCapturingProtected
	captured, err := o.protected.Capture(o.cfg.AppDir)
	if err != nil {
		return res, o.fail(res, err)
	}
	o.logger.Info("captured protected files", "count", len(captured))

	// Locate, download and fully extract the artifact into a staging
	// directory. A fetch or extraction failure here never touches the live
	// tree.
	res.Stage = StageFetching
	fetchCtx := ctx
	if o.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, o.cfg.FetchTimeout)
		defer cancel()
	}

	staging, err := os.MkdirTemp("", "shipyard-staging-*")
	if err != nil {
		return res, o.fail(res, fmt.Errorf("creating staging directory: %w", err))
	}
	// Staged artifact files are deleted after the attempt regardless of
	// outcome.
	defer func() {
		if err := os.RemoveAll(staging); err != nil {
			o.logger.Warn("failed to remove staging directory", "dir", staging, "error", err)
		}
	}()

	tree, err := o.fetchAndStage(fetchCtx, req, staging)
	if err != nil {
		return res, o.fail(res, err)
	}

	// Point of no return: from here on the live tree is being mutated and
	// the snapshot is retained for manual recovery.
	res.Stage = StageReplacing
	if err := o.replaceTree(tree); err != nil {
		return res, o.fail(res, err)
	}

	// Replay protected files over the freshly unpacked tree. This must run
	// strictly after the unpack: the replacement step wipes and rebuilds
	// the tree wholesale.
	res.Stage = StageRestoring
	if err := o.protected.Restore(o.cfg.AppDir, captured); err != nil {
		return res, o.fail(res, err)
	}

	res.Stage = StageSyncingDependencies
	if err := o.syncDependencies(ctx); err != nil {
		return res, o.fail(res, err)
	}

	res.Stage = StagePruning
	if err := o.backups.Prune(); err != nil {
		// Retention is advisory after a successful swap; do not fail the
		// deployment over it.
		o.logger.Warn("backup pruning failed", "error", err)
	}

	res.Stage = StageDone
	res.Timestamp = time.Now().UTC()
	o.logger.Info("deployment complete",
		"version", req.Version,
		"backup", res.BackupName,
		"duration_ms", time.Since(start).Milliseconds())
	return res, nil
}

// fetchAndStage locates and downloads the artifact, then extracts both
// archive layers under staging. Returns the staged application tree.
func (o *Orchestrator) fetchAndStage(ctx context.Context, req Request, staging string) (string, error) {
	desc, err := o.fetcher.Locate(ctx, req.Repository, req.RunID)
	if err != nil {
		return "", err
	}

	archivePath, err := o.fetcher.Download(ctx, desc)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := os.Remove(archivePath); err != nil {
			o.logger.Warn("failed to remove downloaded archive", "path", archivePath, "error", err)
		}
	}()

	return o.fetcher.Unpack(archivePath, staging)
}

// replaceTree deletes everything under the application directory except the
// preserve allow-list, then copies the staged tree in.
func (o *Orchestrator) replaceTree(stagedTree string) error {
	if err := os.MkdirAll(o.cfg.AppDir, 0755); err != nil {
		return fmt.Errorf("creating application directory: %w", err)
	}

	if err := fileutil.RemoveContents(o.cfg.AppDir, o.cfg.PreserveDirs); err != nil {
		return fmt.Errorf("clearing application directory: %w", err)
	}

	if err := fileutil.CopyTree(stagedTree, o.cfg.AppDir); err != nil {
		return fmt.Errorf("installing new tree: %w", err)
	}

	return nil
}

// syncDependencies runs the configured dependency-installation command
// against the manifest now present in the application directory.
func (o *Orchestrator) syncDependencies(ctx context.Context) error {
	if len(o.cfg.SyncCommand) == 0 {
		return nil
	}

	o.logger.Info("syncing dependencies", "command", cmdutil.FormatCommand(o.cfg.SyncCommand))

	result, err := cmdutil.Run(ctx, cmdutil.ExecOptions{
		Dir:     o.cfg.AppDir,
		Timeout: o.cfg.SyncTimeout,
	}, o.cfg.SyncCommand)

	if err != nil || !result.OK() {
		exitCode := -1
		var output []byte
		if result != nil {
			exitCode = result.ExitCode
			output = result.Output
		}
		o.logger.Error("dependency sync failed",
			"command", cmdutil.FormatCommand(o.cfg.SyncCommand),
			"exit_code", exitCode,
			"output", string(output))
		return fmt.Errorf("%w: exit code %d", ErrSyncFailed, exitCode)
	}

	return nil
}

// fail logs the failure, discards the snapshot when the tree was never
// touched, and wraps the error with the stage reached. Failures after
// mutation began always keep the snapshot so an operator can inspect or roll
// back.
func (o *Orchestrator) fail(res *Result, err error) error {
	if !res.Stage.MutatesTree() && res.BackupName != "" {
		if rmErr := o.backups.Remove(res.BackupName); rmErr != nil {
			o.logger.Warn("failed to discard snapshot of untouched tree",
				"backup", res.BackupName, "error", rmErr)
		} else {
			o.logger.Info("discarded snapshot, tree was never touched", "backup", res.BackupName)
			res.BackupName = ""
		}
	}

	o.logger.Error("deployment failed",
		"stage", string(res.Stage),
		"version", res.Version,
		"backup", res.BackupName,
		"error", err)
	return &StageError{Stage: res.Stage, Err: err}
}
