package model

import (
	"fmt"
	"path"
	"strconv"

	"crawlfleet/pkg/constants"
)

// PipelineOptions per-launch options that are not part of the persisted config
type PipelineOptions struct {
	Tag        string
	ID         int
	StartIndex int  // Effective start index for this launch
	Fresh      bool // Never set on resume

	// Optional overrides, defaults derived from the worker identity when empty
	LogLevel  string
	CacheDir  string
	OutputDir string
	TmpDir    string
	Z3Path    string
}

// PipelineArgs builds the worker pipeline argument list: three positional
// arguments followed by flag-form options. Omitted options are not passed and
// boolean options are presence-only.
func PipelineArgs(cfg LaunchConfig, opts PipelineOptions) []string {
	bound := cfg.Bound
	if bound == "" {
		bound = constants.DefaultBound
	}
	args := []string{
		strconv.Itoa(cfg.Count),
		bound,
		strconv.Itoa(cfg.Downloads),
	}

	args = append(args,
		"--log-level="+orDefault(opts.LogLevel, constants.DefaultPipelineLogLevel),
		"--cache-dir="+orDefault(opts.CacheDir, constants.DefaultCacheDir),
		"--output-dir="+orDefault(opts.OutputDir, path.Join(constants.PersistMountPath, OutputDirName(opts.Tag, opts.ID))),
		"--tmp-dir="+orDefault(opts.TmpDir, path.Join(constants.PersistMountPath, TmpDirName(opts.Tag, opts.ID))),
		"--z3-path="+orDefault(opts.Z3Path, constants.DefaultZ3Path),
	)
	if opts.Fresh {
		args = append(args, "--fresh")
	}
	args = append(args,
		fmt.Sprintf("--start-index=%d", opts.StartIndex),
		fmt.Sprintf("--end-index=%d", cfg.EndIndex),
	)
	if cfg.OnlyCacheIncluded {
		args = append(args, "--only-cache-included")
	}
	if cfg.AnalysisOnly != nil && *cfg.AnalysisOnly != "" {
		args = append(args, "--analysis-only="+*cfg.AnalysisOnly)
	}
	if cfg.MinNumDeps != nil {
		args = append(args, fmt.Sprintf("--min-num-deps=%d", *cfg.MinNumDeps))
	}
	if cfg.MinDepth != nil {
		args = append(args, fmt.Sprintf("--min-depth=%d", *cfg.MinDepth))
	}
	if cfg.Policies != nil {
		args = append(args, "--policies="+*cfg.Policies)
	}
	if cfg.RequireSinkHit {
		args = append(args, "--require-sink-hit")
	}
	if cfg.FailOnOutputError {
		args = append(args, "--fail-on-output-error")
	}
	if cfg.FailOnNonZeroExit {
		args = append(args, "--fail-on-non-zero-exit")
	}
	return args
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
