// Package acolite invokes the external acolite atmospheric-correction tool in
// batch mode. The correction itself is entirely acolite's business: this
// package only prepares per-run settings files and runs the binary.
package acolite

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap/zapcore"

	"github.com/lterlife/acolite-ingester/service/log"
)

// Settings is the acolite user-settings mapping (see the acolite manual).
// The "inputfile" and "output" keys are overwritten per batch item.
type Settings map[string]string

// l2wRe matches Level-2W water products in an output directory
var l2wRe = regexp.MustCompile(`.*_(L2W)+`)

// Runner runs the acolite binary
type Runner struct {
	// Bin is the acolite launcher (e.g. "acolite")
	Bin string
	// SettingsDir receives the generated per-run settings files. Defaults
	// to the system temp dir.
	SettingsDir string
}

// RunBatch processes each (input, output) pair sequentially with the given
// settings. There is no isolation between iterations: the first failing run
// aborts the remaining batch.
func (r *Runner) RunBatch(ctx context.Context, settings Settings, inputs, outputs []string) error {
	if len(inputs) != len(outputs) {
		return fmt.Errorf("RunBatch: %d inputs for %d outputs", len(inputs), len(outputs))
	}
	for i := range inputs {
		log.Logger(ctx).Sugar().Infof("acolite run %d/%d: %s", i+1, len(inputs), inputs[i])
		settings["inputfile"] = inputs[i]
		settings["output"] = outputs[i]
		if err := r.run(ctx, settings); err != nil {
			return fmt.Errorf("RunBatch[%s]: %w", inputs[i], err)
		}
	}
	if len(inputs) > 0 {
		log.Logger(ctx).Sugar().Infof("processing done, output in %s", outputs[len(outputs)-1])
	}
	return nil
}

func (r *Runner) run(ctx context.Context, settings Settings) error {
	settingsFile, err := r.writeSettings(settings)
	if err != nil {
		return err
	}
	defer os.Remove(settingsFile)

	cmd := exec.Command(r.Bin, "--cli", "--settings="+settingsFile)
	// acolite reports most of its progress on stdout, keep it at debug
	return log.Exec(ctx, cmd, log.StdoutLevel(zapcore.DebugLevel))
}

// writeSettings renders the settings mapping in acolite's key=value format
func (r *Runner) writeSettings(settings Settings) (string, error) {
	dir := r.SettingsDir
	if dir == "" {
		dir = os.TempDir()
	}
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s=%s\n", k, settings[k])
	}

	path := filepath.Join(dir, "acolite_settings_"+uuid.New().String()+".txt")
	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		return "", fmt.Errorf("writeSettings: %w", err)
	}
	return path, nil
}

// FindUnprocessed returns the per-scene output directories of outputDir that
// hold no Level-2W product (e.g. runs interrupted by a network problem).
func FindUnprocessed(outputDir string) ([]string, error) {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return nil, fmt.Errorf("FindUnprocessed: %w", err)
	}
	var remaining []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(outputDir, entry.Name())
		files, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("FindUnprocessed: %w", err)
		}
		hasL2W := false
		for _, f := range files {
			if l2wRe.MatchString(f.Name()) {
				hasL2W = true
				break
			}
		}
		if !hasL2W {
			remaining = append(remaining, dir)
		}
	}
	return remaining, nil
}
