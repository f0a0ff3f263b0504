package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"lumen/internal/record"
	"lumen/pkg/imgutil"
)

// Run processes root, a file or a directory tree, with a pool of workers.
// Files that are not images are skipped. Each image becomes one record;
// outputs are written under opts.OutputDir when it is set.
func (p *Processor) Run(ctx context.Context, root string, opts Options, updates chan<- ProgressUpdate) (Summary, []Result, error) {
	summary := Summary{}
	var results []Result

	if err := opts.Params.Validate(); err != nil {
		return summary, nil, err
	}

	info, err := os.Stat(root)
	if err != nil {
		return summary, nil, err
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return summary, nil, err
	}

	skip := ""
	if opts.OutputDir != "" {
		if out, err := filepath.Abs(opts.OutputDir); err == nil && filepath.Clean(out) != filepath.Clean(absRoot) && isWithin(out, absRoot) {
			skip = out
		}
	}

	jobs := make(chan Job)
	resultsCh := make(chan Result)

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			p.worker(ctx, jobs, resultsCh, opts, updates)
		}()
	}

	collectorDone := make(chan struct{})
	go func() {
		defer close(collectorDone)
		for res := range resultsCh {
			if res.Supported {
				summary.add(res, updates)
				results = append(results, res)
			}
		}
	}()

	producerErr := make(chan error, 1)
	go func() {
		defer close(jobs)
		producerErr <- enqueue(ctx, absRoot, info.IsDir(), skip, jobs)
	}()

	wg.Wait()
	close(resultsCh)
	<-collectorDone
	sort.Slice(results, func(i, j int) bool { return results[i].Display < results[j].Display })

	if err := <-producerErr; err != nil {
		return summary, results, err
	}
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return summary, results, err
	}
	return summary, results, nil
}

func send(updates chan<- ProgressUpdate, u ProgressUpdate) {
	if updates != nil {
		updates <- u
	}
}

func (s *Summary) add(res Result, updates chan<- ProgressUpdate) {
	s.Total++
	if res.Err != nil {
		s.Errors++
		send(updates, ProgressUpdate{ErrorDelta: 1})
		return
	}
	in, out := res.Record.OriginalSize(), res.Record.ProcessedSize()
	s.Processed++
	s.BytesIn += in
	s.BytesOut += out
	send(updates, ProgressUpdate{ProcessedDelta: 1, BytesInDelta: in, BytesOutDelta: out})
}

// enqueue feeds jobs with root itself, or with every regular file under
// it when it is a directory. The skip directory is never descended into.
func enqueue(ctx context.Context, root string, isDir bool, skip string, jobs chan<- Job) error {
	push := func(job Job) error {
		select {
		case jobs <- job:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if !isDir {
		name := filepath.Base(root)
		return push(Job{Path: root, RelPath: name, Display: name})
	}

	return fs.WalkDir(os.DirFS(root), ".", func(rel string, d fs.DirEntry, err error) error {
		switch {
		case err != nil:
			return err
		case d.IsDir():
			if skip != "" && isWithin(filepath.Join(root, rel), skip) {
				return fs.SkipDir
			}
			return nil
		case !d.Type().IsRegular():
			return nil
		}
		return push(Job{Path: filepath.Join(root, rel), RelPath: rel, Display: rel})
	})
}

func (p *Processor) worker(ctx context.Context, jobs <-chan Job, results chan<- Result, opts Options, updates chan<- ProgressUpdate) {
	for job := range jobs {
		if err := ctx.Err(); err != nil {
			return
		}

		res := Result{Path: job.Path, RelPath: job.RelPath, Display: job.Display}

		kind, err := imgutil.SniffFile(job.Path)
		if err != nil {
			res.Supported = true
			res.Err = err
			results <- res
			continue
		}
		if kind == imgutil.KindUnknown {
			continue
		}

		res.Supported = true
		send(updates, ProgressUpdate{TotalDelta: 1})

		start := time.Now()
		res.Record, res.OutputPath, res.Err = p.processFile(ctx, job, kind, opts)
		res.Took = time.Since(start)
		results <- res
	}
}

func (p *Processor) processFile(ctx context.Context, job Job, kind imgutil.Kind, opts Options) (*record.Record, string, error) {
	data, err := os.ReadFile(job.Path)
	if err != nil {
		return nil, "", err
	}

	r := record.New(filepath.Base(job.Path), kind.MimeType(), data)
	out, err := p.Process(ctx, r, opts.Params)
	if err != nil {
		return r, "", fmt.Errorf("%s: %w", job.Display, err)
	}
	Apply(r, out)

	if opts.Analyze {
		if err := p.Analyze(ctx, r); err != nil {
			p.logger.Warn("analysis failed", zap.String("file", job.Display), zap.Error(err))
		}
	}

	var outputPath string
	if opts.OutputDir != "" {
		outputPath = OutputPath(opts.OutputDir, job.RelPath, out.Artifact.Kind)
		if err := writeOutput(outputPath, r.ProcessedBytes); err != nil {
			return r, "", fmt.Errorf("%s: %w", job.Display, err)
		}
	}

	if opts.Save != nil {
		if err := opts.Save(r); err != nil {
			return r, outputPath, fmt.Errorf("%s: save: %w", job.Display, err)
		}
	}
	return r, outputPath, nil
}

// OutputPath mirrors relPath under dir with the extension of kind.
func OutputPath(dir, relPath string, kind imgutil.Kind) string {
	base := strings.TrimSuffix(relPath, filepath.Ext(relPath))
	return filepath.Join(dir, base+kind.Extension())
}

func writeOutput(destPath string, data []byte) error {
	destDir := filepath.Dir(destPath)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return err
	}

	tmpFile, err := os.CreateTemp(destDir, "lumen-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	return replaceFile(tmpFile.Name(), destPath)
}

func replaceFile(tmpPath, destPath string) error {
	if err := os.Rename(tmpPath, destPath); err == nil {
		return nil
	}
	if err := os.Remove(destPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return os.Rename(tmpPath, destPath)
}

func isWithin(path string, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return !strings.HasPrefix(rel, "..")
}
