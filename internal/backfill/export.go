package backfill

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/anatolykoptev/go_podqa/internal/engine/youtube"
	"github.com/anatolykoptev/go_podqa/internal/ingest"
)

var exportRule = strings.Repeat("=", 80)

// Exporter writes a video's description and timed transcript to text files
// so question timestamps can be inferred offline and fed back through
// manual ingestion.
type Exporter struct {
	Metadata    ingest.MetadataFetcher
	Transcripts ingest.TranscriptFetcher
	Dir         string
}

// Export writes <id>_description.txt and <id>_transcript.txt and returns
// the video ID.
func (e *Exporter) Export(ctx context.Context, input string) (string, error) {
	id, err := youtube.VideoID(input)
	if err != nil {
		return "", err
	}
	md, err := e.Metadata.FetchMetadata(ctx, id)
	if err != nil {
		return id, fmt.Errorf("metadata: %w", err)
	}
	segs, err := e.Transcripts.FetchTranscript(ctx, id)
	if err != nil {
		return id, fmt.Errorf("transcript: %w", err)
	}
	if err := os.MkdirAll(e.Dir, 0750); err != nil {
		return id, fmt.Errorf("export: mkdir %s: %w", e.Dir, err)
	}

	if err := writeFile(filepath.Join(e.Dir, id+"_description.txt"), func(w io.Writer) error {
		writeHeader(w, id, md)
		_, err := io.WriteString(w, md.Description)
		return err
	}); err != nil {
		return id, err
	}
	err = writeFile(filepath.Join(e.Dir, id+"_transcript.txt"), func(w io.Writer) error {
		writeHeader(w, id, md)
		for _, s := range segs {
			fmt.Fprintf(w, "[%s] %s\n", clock(s.Start), s.Text)
		}
		fmt.Fprintf(w, "\n%s\n\nFULL TEXT (No timestamps):\n\n", exportRule)
		_, err := io.WriteString(w, youtube.FullText(segs))
		return err
	})
	return id, err
}

func writeHeader(w io.Writer, id string, md *youtube.Metadata) {
	published := ""
	if md.PublishedAt != nil {
		published = md.PublishedAt.Format(time.RFC3339)
	}
	fmt.Fprintf(w, "Video: %s\nURL: %s\nPublished: %s\n\n%s\n\n",
		md.Title, youtube.VideoURL(id), published, exportRule)
}

// clock formats seconds as MM:SS; minutes are not wrapped into hours.
func clock(seconds float64) string {
	s := int(seconds)
	return fmt.Sprintf("%02d:%02d", s/60, s%60)
}

func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	w := bufio.NewWriter(f)
	if err := fn(w); err != nil {
		f.Close()
		return fmt.Errorf("export %s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("export %s: %w", path, err)
	}
	return f.Close()
}
