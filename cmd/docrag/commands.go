package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/fsnotify/fsnotify"

	"docrag/internal/evaluation"
	"docrag/internal/extract"
	"docrag/internal/logging"
	"docrag/internal/service"
	"docrag/internal/tui"
)

type command func(ctx context.Context, args []string) error

var commands = map[string]command{
	"ingest": runIngest,
	"ask":    runAsk,
	"chat":   runChat,
	"eval":   runEval,
	"watch":  runWatch,
}

// globalFlags are accepted by every command.
type globalFlags struct {
	cfgPath string
	tenant  string
	verbose bool
}

func commonFlags(fs *flag.FlagSet) *globalFlags {
	g := &globalFlags{}
	fs.StringVar(&g.cfgPath, "config", "", "Path to YAML config file (default ./config.yaml or ~/.config/docrag/config.yaml)")
	fs.StringVar(&g.tenant, "tenant", "", "Tenant id (default from config)")
	fs.BoolVar(&g.verbose, "v", false, "Log at debug level, overriding config and DOCRAG_LOG_LEVEL")
	return g
}

func setup(g *globalFlags) (*app, string, error) {
	a, err := newApp(g.cfgPath)
	if err != nil {
		return nil, "", err
	}
	if g.verbose {
		logging.SetLevel(slog.LevelDebug)
	}
	tenant := g.tenant
	if tenant == "" {
		tenant = a.cfg.Tenant
	}
	return a, tenant, nil
}

func runIngest(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	gf := commonFlags(fs)
	_ = fs.Parse(args)

	a, tenantID, err := setup(gf)
	if err != nil {
		return err
	}
	patterns := fs.Args()
	if len(patterns) == 0 {
		patterns = a.cfg.Ingest.Patterns
	}
	paths, err := expandPatterns(patterns)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return errors.New("no supported files matched (pdf, txt, md)")
	}
	report, err := a.svc.IngestFiles(ctx, tenantID, paths...)
	if err != nil {
		return err
	}
	return writeJSON(os.Stdout, report)
}

// expandPatterns resolves doublestar globs to supported files, sorted and deduplicated.
// A pattern matching nothing is treated as a literal path.
func expandPatterns(patterns []string) ([]string, error) {
	seen := map[string]struct{}{}
	var out []string
	for _, p := range patterns {
		matches, err := doublestar.FilepathGlob(p)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p, err)
		}
		if len(matches) == 0 {
			matches = []string{p}
		}
		for _, m := range matches {
			if !extract.Supported(m) {
				continue
			}
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	return out, nil
}

func runAsk(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	gf := commonFlags(fs)
	topK := fs.Int("top-k", 0, "Chunks to retrieve (default from config)")
	docID := fs.String("doc", "", "Restrict the answer to one document id")
	asJSON := fs.Bool("json", false, "Print the response as JSON")
	_ = fs.Parse(args)

	question := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if question == "" {
		return errors.New("ask: missing question")
	}
	a, tenantID, err := setup(gf)
	if err != nil {
		return err
	}
	resp, err := a.svc.Query(ctx, tenantID, question, service.QueryOptions{TopK: *topK, DocID: *docID})
	if err != nil {
		return err
	}
	if *asJSON {
		return writeJSON(os.Stdout, resp)
	}
	fmt.Println(resp.Answer)
	for _, s := range resp.Sources {
		fmt.Printf("  - %s (page %d)\n", s.SourceName, s.Page)
	}
	return nil
}

func runChat(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	gf := commonFlags(fs)
	topK := fs.Int("top-k", 0, "Chunks to retrieve (default from config)")
	_ = fs.Parse(args)

	a, tenantID, err := setup(gf)
	if err != nil {
		return err
	}
	m := tui.New(ctx, a.svc, tenantID, service.QueryOptions{TopK: *topK})
	_, err = tea.NewProgram(m, tea.WithContext(ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}

func runEval(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("eval", flag.ExitOnError)
	gf := commonFlags(fs)
	dataset := fs.String("dataset", "", "Path to a JSON or YAML dataset (default from config)")
	out := fs.String("out", "", "Write the report to this file instead of stdout")
	_ = fs.Parse(args)

	a, tenantID, err := setup(gf)
	if err != nil {
		return err
	}
	path := *dataset
	if path == "" {
		path = a.cfg.Eval.Dataset
	}
	if path == "" {
		return errors.New("eval: no dataset given")
	}
	records, err := evaluation.LoadDataset(path)
	if err != nil {
		return err
	}

	h := evaluation.NewHarness(a.svc.Retriever(), a.svc.Answerer(), a.svc.Defaults(), a.cfg.Eval.Concurrency, a.logger)
	report, err := h.Run(ctx, tenantID, records)
	if err != nil {
		return err
	}
	if *out == "" {
		return report.WriteJSON(os.Stdout)
	}
	f, err := os.Create(*out)
	if err != nil {
		return err
	}
	if err := report.WriteJSON(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func runWatch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	gf := commonFlags(fs)
	_ = fs.Parse(args)

	dirs := fs.Args()
	if len(dirs) == 0 {
		return errors.New("watch: no directories given")
	}
	a, tenantID, err := setup(gf)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	for _, d := range dirs {
		if err := watcher.Add(d); err != nil {
			return fmt.Errorf("watch %s: %w", d, err)
		}
	}

	ingester := service.NewIngester(ctx, a.svc, a.cfg.Ingest.Workers, a.cfg.Ingest.QueueSize, nil, a.logger)
	defer ingester.Close()
	a.logger.Info("watching", "tenant", tenantID, "dirs", dirs)

	settled := make(chan string)
	d := newDebouncer(watchSettle, func(path string) {
		select {
		case settled <- path:
		case <-ctx.Done():
		}
	})
	defer d.stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if !extract.Supported(ev.Name) || strings.HasPrefix(filepath.Base(ev.Name), ".") {
				continue
			}
			d.touch(ev.Name)
		case path := <-settled:
			if err := ingester.Enqueue(ctx, service.Job{TenantID: tenantID, Path: path}); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			a.logger.Error("watcher error", "error", err)
		}
	}
}

// watchSettle is how long a file must stay unchanged before it is ingested.
const watchSettle = 500 * time.Millisecond

// debouncer fires fn once per path after the path has been quiet for wait.
type debouncer struct {
	wait time.Duration
	fn   func(string)

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func newDebouncer(wait time.Duration, fn func(string)) *debouncer {
	return &debouncer{wait: wait, fn: fn, timers: map[string]*time.Timer{}}
}

func (d *debouncer) touch(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.timers[path]; ok {
		t.Reset(d.wait)
		return
	}
	d.timers[path] = time.AfterFunc(d.wait, func() {
		d.mu.Lock()
		delete(d.timers, path)
		d.mu.Unlock()
		d.fn(path)
	})
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for path, t := range d.timers {
		t.Stop()
		delete(d.timers, path)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
