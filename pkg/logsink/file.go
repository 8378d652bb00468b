// Copyright 2025 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logsink holds the destinations the log aggregator writes to.
package logsink

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/ircmux/pkg/constants"
	"github.com/united-manufacturing-hub/ircmux/pkg/logger"
	"github.com/united-manufacturing-hub/ircmux/pkg/metrics"
)

// CompressedSuffix is appended to rotated files when compression is on.
const CompressedSuffix = ".zst"

var rename = os.Rename

// FileOptions configures a RotatingFile.
type FileOptions struct {
	Clock clock.Clock
	// Log receives rotation problems. Defaults to a stderr logger, never the
	// pipeline itself.
	Log *zap.SugaredLogger
	// MaxBackups is the number of rotated files kept. Zero keeps all.
	MaxBackups int
	Compress   bool
	// Sync fsyncs after every line.
	Sync bool
}

// RotatingFile appends lines to a file and moves it aside to
// <path>.<YYYY-MM-DD> when the local date changes.
type RotatingFile struct {
	clock clock.Clock
	log   *zap.SugaredLogger
	file  *os.File
	path  string
	day   string
	opts  FileOptions

	mu sync.Mutex
	wg sync.WaitGroup
}

// OpenRotatingFile opens path for appending, creating it and its directory.
func OpenRotatingFile(path string, opts FileOptions) (*RotatingFile, error) {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}

	if opts.Log == nil {
		opts.Log = logger.Stderr(logger.ComponentLogSink)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	f := &RotatingFile{
		clock: opts.Clock,
		log:   opts.Log,
		path:  path,
		opts:  opts,
	}

	if err := f.open(); err != nil {
		return nil, err
	}

	// A file left over from an earlier day is rotated on the first write.
	f.day = f.clock.Now().Format(constants.RotatedLogSuffixFormat)
	if info, err := f.file.Stat(); err == nil && info.Size() > 0 {
		f.day = info.ModTime().In(f.clock.Now().Location()).Format(constants.RotatedLogSuffixFormat)
	}

	return f, nil
}

func (f *RotatingFile) open() error {
	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	f.file = file

	return nil
}

// Path returns the active file path.
func (f *RotatingFile) Path() string {
	return f.path
}

// Write appends one rendered line. It does not retain line.
func (f *RotatingFile) Write(line []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file == nil {
		return os.ErrClosed
	}

	if day := f.clock.Now().Format(constants.RotatedLogSuffixFormat); day != f.day {
		if err := f.rotate(day); err != nil {
			return err
		}
	}

	if _, err := f.file.Write(line); err != nil {
		return err
	}

	if f.opts.Sync {
		return f.file.Sync()
	}

	return nil
}

// rotate renames the active file after its day and opens a new one.
func (f *RotatingFile) rotate(day string) error {
	if err := f.file.Close(); err != nil {
		f.log.Warnf("Closing %s before rotation failed: %v", f.path, err)
	}

	target := f.backupName(f.day)
	f.day = day

	if err := rename(f.path, target); err != nil && !errors.Is(err, os.ErrNotExist) {
		// The old file stays active until the next date change.
		f.log.Errorf("Rotating %s to %s failed, continuing in the active file: %v", f.path, target, err)
		metrics.IncErrorCount(metrics.ComponentLogSink, "rotate")

		if openErr := f.open(); openErr != nil {
			f.file = nil

			return errors.Join(err, openErr)
		}

		return nil
	}

	if err := f.open(); err != nil {
		f.file = nil

		return err
	}

	metrics.RecordLogRotation()

	f.wg.Add(1)

	go func() {
		defer f.wg.Done()

		if f.opts.Compress {
			if err := compress(target); err != nil {
				f.log.Warnf("Compressing %s failed: %v", target, err)
			}
		}

		f.prune()
	}()

	return nil
}

// backupName returns a free name for the file of day.
func (f *RotatingFile) backupName(day string) string {
	base := f.path + "." + day
	name := base

	for i := 1; exists(name) || exists(name+CompressedSuffix); i++ {
		name = base + "." + strconv.Itoa(i)
	}

	return name
}

func exists(name string) bool {
	_, err := os.Stat(name)

	return err == nil
}

// Backups lists the rotated files, oldest first.
func (f *RotatingFile) Backups() ([]string, error) {
	matches, err := filepath.Glob(f.path + ".*")
	if err != nil {
		return nil, err
	}

	sort.Slice(matches, func(i, j int) bool {
		return backupTime(matches[i]).Before(backupTime(matches[j]))
	})

	return matches, nil
}

func backupTime(name string) time.Time {
	info, err := os.Stat(name)
	if err != nil {
		return time.Time{}
	}

	return info.ModTime()
}

func (f *RotatingFile) prune() {
	if f.opts.MaxBackups <= 0 {
		return
	}

	backups, err := f.Backups()
	if err != nil {
		f.log.Warnf("Listing rotated logs failed: %v", err)

		return
	}

	for len(backups) > f.opts.MaxBackups {
		if err := os.Remove(backups[0]); err != nil && !errors.Is(err, os.ErrNotExist) {
			f.log.Warnf("Removing %s failed: %v", backups[0], err)
		}

		backups = backups[1:]
	}
}

// compress replaces src with src.zst.
func compress(src string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(src+CompressedSuffix, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	enc, err := zstd.NewWriter(out, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		_ = out.Close()

		return err
	}

	if _, err := io.Copy(enc, in); err != nil {
		_ = enc.Close()
		_ = out.Close()
		_ = os.Remove(out.Name())

		return err
	}

	if err := enc.Close(); err != nil {
		_ = out.Close()

		return err
	}

	if err := out.Close(); err != nil {
		return err
	}

	return os.Remove(src)
}

// Close waits for pending compression and closes the file.
func (f *RotatingFile) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.wg.Wait()

	if f.file == nil {
		return nil
	}

	err := f.file.Close()
	f.file = nil

	return err
}
