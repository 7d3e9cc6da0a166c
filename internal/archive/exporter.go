// Package archive bundles captured screenshots into a zip for download.
package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dgnsrekt/chatsnap/internal/history"
)

// Archive is a finished zip bundle.
type Archive struct {
	Name    string
	Data    []byte
	Entries int
}

// Sink receives a finished archive.
type Sink interface {
	Save(ctx context.Context, name string, data []byte) (string, error)
}

// SingleName is the download name of the screenshot at 1-based position n.
func SingleName(n int) string {
	return fmt.Sprintf("screenshot-%d.png", n)
}

// ArchiveName names a bundle created at t.
func ArchiveName(t time.Time) string {
	return fmt.Sprintf("line-chat-history-%d.zip", t.UnixMilli())
}

// Exporter builds zip archives from history snapshots.
type Exporter struct {
	now func() time.Time
}

func NewExporter() *Exporter {
	return &Exporter{now: time.Now}
}

// Export zips shots in order as screenshot-1.png .. screenshot-K.png. An
// empty list returns ok=false without doing any work. The shots slice is
// only read.
func (e *Exporter) Export(ctx context.Context, shots []history.Screenshot) (Archive, bool, error) {
	if len(shots) == 0 {
		return Archive{}, false, nil
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	created := e.now()
	for i, shot := range shots {
		if err := ctx.Err(); err != nil {
			return Archive{}, false, err
		}
		data, err := shot.Bytes()
		if err != nil {
			return Archive{}, false, fmt.Errorf("archive: decode screenshot %s: %w", shot.ID, err)
		}
		hdr := &zip.FileHeader{Name: SingleName(i + 1), Method: zip.Deflate}
		hdr.Modified = shot.CreatedAt
		if hdr.Modified.IsZero() {
			hdr.Modified = created
		}
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return Archive{}, false, fmt.Errorf("archive: create entry: %w", err)
		}
		if _, err := w.Write(data); err != nil {
			return Archive{}, false, fmt.Errorf("archive: write entry: %w", err)
		}
	}
	if err := zw.Close(); err != nil {
		return Archive{}, false, fmt.Errorf("archive: finalize: %w", err)
	}

	return Archive{Name: ArchiveName(created), Data: buf.Bytes(), Entries: len(shots)}, true, nil
}

// ExportTo exports shots and hands the archive to sink. It returns the
// location reported by the sink, or ok=false when there was nothing to export.
func (e *Exporter) ExportTo(ctx context.Context, shots []history.Screenshot, sink Sink) (string, bool, error) {
	a, ok, err := e.Export(ctx, shots)
	if err != nil || !ok {
		return "", ok, err
	}
	loc, err := sink.Save(ctx, a.Name, a.Data)
	if err != nil {
		return "", false, fmt.Errorf("archive: save %s: %w", a.Name, err)
	}
	slog.Info("archive: exported", "name", a.Name, "entries", a.Entries, "bytes", len(a.Data), "location", loc)
	return loc, true, nil
}

// DirSink writes files into a directory, creating it on demand.
type DirSink struct {
	Dir string
}

func (s DirSink) Save(_ context.Context, name string, data []byte) (string, error) {
	if filepath.Base(name) != name || name == "." || name == ".." {
		return "", fmt.Errorf("invalid file name: %q", name)
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", s.Dir, err)
	}
	path := filepath.Join(s.Dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}
