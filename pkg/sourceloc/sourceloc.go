package sourceloc

import (
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/spf13/afero"

	"github.com/yandex/lineprof/pkg/profiler"
)

// Files reads function bodies out of source files, caching whole files so
// that functions sharing a file cost one read.
type Files struct {
	fs    afero.Fs
	cache *lru.Cache[string, []string]
}

func NewFiles(fs afero.Fs, cacheSize int) (*Files, error) {
	cache, err := lru.New[string, []string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("sourceloc: failed to create file cache: %w", err)
	}
	return &Files{fs: fs, cache: cache}, nil
}

// Lines returns n source lines starting at the 1-based startLine.
func (f *Files) Lines(path string, startLine, n int) ([]string, error) {
	all, err := f.load(path)
	if err != nil {
		return nil, err
	}
	if startLine < 1 || startLine-1+n > len(all) {
		return nil, fmt.Errorf("sourceloc: %s: lines %d..%d out of range (%d lines in file)",
			path, startLine, startLine+n-1, len(all))
	}
	return all[startLine-1 : startLine-1+n], nil
}

func (f *Files) load(path string) ([]string, error) {
	if lines, ok := f.cache.Get(path); ok {
		return lines, nil
	}
	data, err := afero.ReadFile(f.fs, path)
	if err != nil {
		return nil, fmt.Errorf("sourceloc: failed to read %s: %w", path, err)
	}
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	f.cache.Add(path, lines)
	return lines, nil
}

////////////////////////////////////////////////////////////////////////////////

type entry struct {
	name      string
	startLine int

	lines  []string
	file   string
	nLines int
}

// Table is a SourceLocator backed by explicit registrations: each
// compiled-code identity maps either to embedded source lines or to a range
// of a source file resolved through Files.
type Table struct {
	files *Files
	funcs map[profiler.CodeID]entry
}

var _ profiler.SourceLocator = (*Table)(nil)

func NewTable(files *Files) *Table {
	return &Table{
		files: files,
		funcs: make(map[profiler.CodeID]entry),
	}
}

// AddEmbedded registers a function whose source lines are known up front.
// The first registration of a code identity wins.
func (t *Table) AddEmbedded(code profiler.CodeID, name string, startLine int, lines []string) {
	if _, ok := t.funcs[code]; ok {
		return
	}
	t.funcs[code] = entry{name: name, startLine: startLine, lines: lines}
}

// AddFile registers a function located in a source file.
func (t *Table) AddFile(code profiler.CodeID, name, file string, startLine, nLines int) {
	if _, ok := t.funcs[code]; ok {
		return
	}
	t.funcs[code] = entry{name: name, startLine: startLine, file: file, nLines: nLines}
}

func (t *Table) Locate(code profiler.CodeID) (profiler.FunctionSource, error) {
	e, ok := t.funcs[code]
	if !ok {
		return profiler.FunctionSource{}, fmt.Errorf("sourceloc: unknown code identity %#x", uint64(code))
	}

	lines := e.lines
	if lines == nil {
		if t.files == nil {
			return profiler.FunctionSource{}, fmt.Errorf(
				"sourceloc: function %q references file %s but no source directory is configured", e.name, e.file)
		}
		var err error
		lines, err = t.files.Lines(e.file, e.startLine, e.nLines)
		if err != nil {
			return profiler.FunctionSource{}, err
		}
	}
	return profiler.FunctionSource{
		Name:      e.name,
		StartLine: e.startLine,
		Lines:     lines,
	}, nil
}
