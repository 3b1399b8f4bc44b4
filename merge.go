package beanrates

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/etnz/beanrates/date"
)

// Writer commits previewed directive text to ledger files. It is the only
// component that mutates the ledger.
//
// Writes are serialized per target file: concurrent saves to the same file
// would race the duplicate detection. The lock is in-process only, the
// deployment assumption is a single server instance per ledger.
type Writer struct {
	mu    sync.Mutex
	files map[string]*sync.Mutex
}

// NewWriter returns a Writer ready to use.
func NewWriter() *Writer {
	return &Writer{files: make(map[string]*sync.Mutex)}
}

func (w *Writer) fileLock(path string) *sync.Mutex {
	w.mu.Lock()
	defer w.mu.Unlock()
	l, ok := w.files[path]
	if !ok {
		l = new(sync.Mutex)
		w.files[path] = l
	}
	return l
}

// ledgerDir returns the directory owning the ledger file.
func ledgerDir(ledgerPath string) string {
	abs, err := filepath.Abs(ledgerPath)
	if err != nil {
		return filepath.Dir(ledgerPath)
	}
	return filepath.Dir(abs)
}

// pricesDir returns the preferred output directory: the ledger's "prices"
// subdirectory when it exists, the ledger directory otherwise.
func pricesDir(dir string) string {
	p := filepath.Join(dir, "prices")
	if info, err := os.Stat(p); err == nil && info.IsDir() {
		return p
	}
	return dir
}

func dayFileName(day date.Date) string {
	return fmt.Sprintf("prices-%s.gen.bean", day)
}

func rangeFileName(currency string, start, end date.Date) string {
	return fmt.Sprintf("prices-%s-%s-%s.gen.bean", currency, start, end)
}

// outputPath resolves the target file for a generated directive block,
// refusing anything that escapes the ledger directory.
func outputPath(dir, name string) (string, error) {
	out, err := filepath.Abs(filepath.Join(pricesDir(dir), name))
	if err != nil {
		return "", err
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	if out != absDir && !strings.HasPrefix(out, absDir+string(filepath.Separator)) {
		return "", fmt.Errorf("refusing to write outside of the ledger directory")
	}
	return out, nil
}

// Save commits a previewed (possibly edited) block for one day to the file
// responsible for that date and returns its name.
func (w *Writer) Save(sn *Snapshot, day date.Date, content string) (string, error) {
	path, err := outputPath(ledgerDir(sn.Path), dayFileName(day))
	if err != nil {
		return "", err
	}
	return w.commit(sn, path, content)
}

// SaveRange commits a previewed block for a currency over a date span.
func (w *Writer) SaveRange(sn *Snapshot, currency string, start, end date.Date, content string) (string, error) {
	path, err := outputPath(ledgerDir(sn.Path), rangeFileName(currency, start, end))
	if err != nil {
		return "", err
	}
	return w.commit(sn, path, content)
}

// lineKey extracts the (date, currency, base) dedup key of one price line.
func lineKey(line string) (string, bool) {
	m := fetchedPriceRe.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	day, err := date.Parse(m[1])
	if err != nil {
		return "", false
	}
	return day.String() + "|" + strings.ToUpper(m[2]) + "|" + strings.ToUpper(m[4]), true
}

// commit appends the surviving price lines of content to path.
//
// Only syntactically valid price lines are committed; preview chrome
// (comments, tool noise) never reaches the ledger. A line whose
// (date, currency, base) key already exists in the snapshot, in the target
// file, or earlier in the block is silently dropped, which makes repeated
// saves of the same preview idempotent even before the ledger includes the
// generated file. The append is atomic: the block lands entirely or not at
// all.
func (w *Writer) commit(sn *Snapshot, path, content string) (string, error) {
	l := w.fileLock(path)
	l.Lock()
	defer l.Unlock()

	keys := sn.Keys()
	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("cannot read %s: %w", path, err)
	}
	for _, line := range strings.Split(string(existing), "\n") {
		if key, ok := lineKey(line); ok {
			keys[key] = true
		}
	}

	var keep []string
	for _, line := range strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n") {
		key, ok := lineKey(line)
		if !ok || keys[key] {
			continue
		}
		keys[key] = true
		keep = append(keep, line)
	}
	if len(keep) == 0 {
		return path, nil
	}

	if err := appendAtomic(path, strings.Join(keep, "\n")+"\n"); err != nil {
		return "", err
	}
	return path, nil
}

// appendAtomic appends block to path by writing a temporary copy and renaming
// it into place, so an I/O failure leaves the original file unchanged.
func appendAtomic(path, block string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create output directory: %w", err)
	}
	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("cannot read %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("cannot stage write: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(existing); err != nil {
		tmp.Close()
		return fmt.Errorf("cannot stage write: %w", err)
	}
	if _, err := tmp.WriteString(block); err != nil {
		tmp.Close()
		return fmt.Errorf("cannot stage write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("cannot stage write: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("cannot commit write: %w", err)
	}
	return nil
}
