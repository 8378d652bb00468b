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

package logsink_test

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/klauspost/compress/zstd"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/united-manufacturing-hub/ircmux/pkg/logsink"
)

var _ = Describe("RotatingFile", func() {
	var (
		dir  string
		path string
		mock *clock.Mock
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		path = filepath.Join(dir, "logs", "ircmux.log")
		mock = clock.NewMock()
		mock.Set(time.Date(2026, 3, 14, 23, 59, 0, 0, time.Local))
	})

	open := func(opts logsink.FileOptions) *logsink.RotatingFile {
		opts.Clock = mock
		opts.Log = zap.NewNop().Sugar()

		f, err := logsink.OpenRotatingFile(path, opts)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(f.Close)

		return f
	}

	read := func(name string) string {
		data, err := os.ReadFile(name)
		Expect(err).NotTo(HaveOccurred())

		return string(data)
	}

	It("creates the directory and appends lines", func() {
		f := open(logsink.FileOptions{})

		Expect(f.Write([]byte("one\n"))).To(Succeed())
		Expect(f.Write([]byte("two\n"))).To(Succeed())

		Expect(read(path)).To(Equal("one\ntwo\n"))
	})

	It("appends to an existing file instead of truncating it", func() {
		Expect(os.MkdirAll(filepath.Dir(path), 0o755)).To(Succeed())
		Expect(os.WriteFile(path, []byte("old\n"), 0o644)).To(Succeed())
		Expect(os.Chtimes(path, mock.Now(), mock.Now())).To(Succeed())

		f := open(logsink.FileOptions{Sync: true})
		Expect(f.Write([]byte("new\n"))).To(Succeed())

		Expect(read(path)).To(Equal("old\nnew\n"))
	})

	It("moves the file aside when the date changes", func() {
		f := open(logsink.FileOptions{})

		Expect(f.Write([]byte("before midnight\n"))).To(Succeed())
		mock.Add(2 * time.Minute)
		Expect(f.Write([]byte("after midnight\n"))).To(Succeed())

		Expect(read(path + ".2026-03-14")).To(Equal("before midnight\n"))
		Expect(read(path)).To(Equal("after midnight\n"))
	})

	It("does not overwrite an existing backup of the same day", func() {
		Expect(os.MkdirAll(filepath.Dir(path), 0o755)).To(Succeed())
		Expect(os.WriteFile(path+".2026-03-14", []byte("earlier\n"), 0o644)).To(Succeed())

		f := open(logsink.FileOptions{})
		Expect(f.Write([]byte("later\n"))).To(Succeed())
		mock.Add(time.Hour)
		Expect(f.Write([]byte("next day\n"))).To(Succeed())

		Expect(read(path + ".2026-03-14")).To(Equal("earlier\n"))
		Expect(read(path + ".2026-03-14.1")).To(Equal("later\n"))
	})

	It("compresses rotated files", func() {
		f := open(logsink.FileOptions{Compress: true})

		Expect(f.Write([]byte("compress me\n"))).To(Succeed())
		mock.Add(time.Hour)
		Expect(f.Write([]byte("fresh\n"))).To(Succeed())

		compressed := path + ".2026-03-14" + logsink.CompressedSuffix
		Eventually(func() bool {
			_, err := os.Stat(path + ".2026-03-14")

			return errors.Is(err, os.ErrNotExist)
		}).Should(BeTrue())

		in, err := os.Open(compressed)
		Expect(err).NotTo(HaveOccurred())
		defer in.Close()

		dec, err := zstd.NewReader(in)
		Expect(err).NotTo(HaveOccurred())
		defer dec.Close()

		data, err := io.ReadAll(dec)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal("compress me\n"))

		Expect(read(path)).To(Equal("fresh\n"))
	})

	It("keeps at most MaxBackups rotated files", func() {
		f := open(logsink.FileOptions{MaxBackups: 2})

		for i := 0; i < 4; i++ {
			Expect(f.Write([]byte("line\n"))).To(Succeed())
			mock.Add(24 * time.Hour)
		}

		Expect(f.Write([]byte("line\n"))).To(Succeed())

		Eventually(func() []string {
			backups, err := f.Backups()
			Expect(err).NotTo(HaveOccurred())

			return backups
		}).Should(HaveLen(2))
	})

	It("keeps writing into the active file when the move aside fails", func() {
		core, logs := observer.New(zap.WarnLevel)

		f, err := logsink.OpenRotatingFile(path, logsink.FileOptions{Clock: mock, Log: zap.New(core).Sugar()})
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(f.Close)

		attempts := 0
		DeferCleanup(logsink.SetRename(func(string, string) error {
			attempts++

			return os.ErrPermission
		}))

		Expect(f.Write([]byte("line1\n"))).To(Succeed())
		mock.Add(2 * time.Minute)
		Expect(f.Write([]byte("line2\n"))).To(Succeed())
		Expect(f.Write([]byte("line3\n"))).To(Succeed())

		Expect(read(path)).To(Equal("line1\nline2\nline3\n"))
		Expect(attempts).To(Equal(1))
		Expect(logs.FilterMessageSnippet("continuing in the active file").Len()).To(Equal(1))
	})

	It("rejects writes after Close", func() {
		f := open(logsink.FileOptions{})
		Expect(f.Close()).To(Succeed())

		Expect(f.Write([]byte("late\n"))).To(MatchError(os.ErrClosed))
	})
})

var _ = Describe("Memory", func() {
	It("records lines without the line ending", func() {
		m := logsink.NewMemory(nil)

		Expect(m.Write([]byte("a b\n"))).To(Succeed())
		Expect(m.Write([]byte("c d\r\n"))).To(Succeed())

		Expect(m.Lines()).To(Equal([]string{"a b", "c d"}))
		Expect(m.Matching("c", "d")).To(Equal([]string{"c d"}))
	})

	It("fails lines chosen by the fail func", func() {
		boom := errors.New("boom")
		m := logsink.NewMemory(func(line string) error {
			if line == "bad" {
				return boom
			}

			return nil
		})

		Expect(m.Write([]byte("bad\n"))).To(MatchError(boom))
		Expect(m.Write([]byte("good\n"))).To(Succeed())
		Expect(m.Lines()).To(Equal([]string{"good"}))
	})
})
