// Command spfs-check walks a repository's object graph looking for
// unknown objects and missing payloads, optionally repairing what it
// finds by pulling from another repository. Grounded on the distilled
// CLI's "check" subcommand (--remote/--pull/REF...), reworked as its own
// binary in the teacher's cobra-based command style
// (registry/registry.go, pruner/pruner.go).
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/spfs-io/spfs/check"
	"github.com/spfs-io/spfs/config"
	"github.com/spfs-io/spfs/digest"
	"github.com/spfs-io/spfs/repo"
	"github.com/spfs-io/spfs/rterrors"
	"github.com/spfs-io/spfs/rtlog"
	"github.com/spfs-io/spfs/syncer"
)

var (
	configPath string
	remoteName string
	pullFrom   string
	pullSet    bool
)

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spfs-check [REF ...]",
		Short: "check a repository's internal integrity",
		Long: `spfs-check walks the object graph of a repository (or the subtree
reachable from the given REFs) and reports any unknown object or missing
payload it finds. With --pull, it additionally repairs what it can by
syncing from another repository.`,
		RunE: runCheck,
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to the spfs configuration file (defaults to "+config.ConfigurationPathEnv+")")
	cmd.Flags().StringVarP(&remoteName, "remote", "r", "", "check a named remote repository instead of the local one")
	cmd.Flags().StringVar(&pullFrom, "pull", "", `attempt to fix problems by pulling from another repository (defaults to "origin" if given with no value)`)
	cmd.Flags().Lookup("pull").NoOptDefVal = "origin"
	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		pullSet = cmd.Flags().Changed("pull")
		return nil
	}
	return cmd
}

func runCheck(cmd *cobra.Command, refs []string) error {
	ctx := context.Background()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	config.MakeCurrent(cfg)
	rtlog.SetDefault(logrus.NewEntry(logrus.StandardLogger()).WithField("cmd", "spfs-check"))

	handle, err := openTarget(ctx, cfg, remoteName)
	if err != nil {
		return err
	}

	pullHandle, err := resolvePullTarget(ctx, cfg)
	if err != nil {
		return err
	}

	digests := make([]digest.Digest, 0, len(refs))
	for _, ref := range refs {
		d, err := handle.ResolveRef(ctx, ref)
		if err != nil {
			return fmt.Errorf("resolving %q: %w", ref, err)
		}
		digests = append(digests, d)
	}

	logger := rtlog.GetLogger(ctx)
	logger.Info("walking repository...")

	var report *check.Report
	if len(digests) > 0 {
		report, err = check.Run(ctx, handle.Store, digests, check.Options{Concurrency: cfg.Check.Concurrency})
	} else {
		report, err = check.RunAllTags(ctx, handle.Store, handle.Tags, check.Options{Concurrency: cfg.Check.Concurrency})
	}
	if err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}

	repaired := 0
	for _, checkErr := range report.Errors {
		logger.Error(checkErr)
		if pullHandle == nil {
			continue
		}
		d, ok := repairableDigest(checkErr)
		if !ok {
			continue
		}
		if _, err := syncer.Sync(ctx, pullHandle.Store, handle.Store, []digest.Digest{d}, syncer.ResyncEverything{}); err != nil {
			logger.Warnf("could not repair %s: %v", d.Short(), err)
			continue
		}
		logger.Info("successfully repaired!")
		repaired++
	}

	if len(report.Errors) > 0 && repaired < len(report.Errors) {
		if pullHandle == nil {
			logger.Info("running with --pull may be able to resolve these issues")
		}
		os.Exit(1)
	}
	logger.Info("repository OK")
	return nil
}

func openTarget(ctx context.Context, cfg *config.Configuration, name string) (*repo.Handle, error) {
	if name == "" {
		backend, err := config.NewLocalBackend(cfg)
		if err != nil {
			return nil, err
		}
		return repo.New("local", backend, config.NewLocalTagStore(cfg)), nil
	}
	remote, ok := cfg.Storage.Remotes[name]
	if !ok {
		return nil, fmt.Errorf("no remote named %q configured", name)
	}
	return repo.OpenHandle(ctx, name, remote.Address)
}

// resolvePullTarget implements the distilled CLI's mutual-exclusion rule:
// --pull may not name the same repository as --remote. A --pull given
// with no explicit name pulls from "origin".
func resolvePullTarget(ctx context.Context, cfg *config.Configuration) (*repo.Handle, error) {
	if !pullSet {
		return nil, nil
	}
	name := pullFrom
	if name == "" {
		name = "origin"
	}
	if name == remoteName {
		return nil, fmt.Errorf("cannot --pull from same repo as --remote")
	}
	return openTarget(ctx, cfg, name)
}

// repairableDigest extracts the object digest to re-sync for a check
// error, if the error is one a re-sync can plausibly fix: an unknown
// object, or a missing payload (repaired by re-syncing the blob that owns
// it); other error kinds are left for the operator.
func repairableDigest(err error) (digest.Digest, bool) {
	switch e := err.(type) {
	case rterrors.UnknownObject:
		return e.Digest, true
	case rterrors.ObjectMissingPayload:
		return e.Owner, true
	default:
		return digest.Nil, false
	}
}
