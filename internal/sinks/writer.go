package sinks

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/resink-ai/resinker/internal/emitrecord"
	"github.com/resink-ai/resinker/internal/specdef"
)

// wireRecord is the on-the-wire shape for stdout/file/kafka sinks:
// {event_type, timestamp, payload}, with payload kept as an ordered.Map so
// its fields marshal in spec-declared order (spec.md §4.3).
type wireRecord struct {
	EventType string      `json:"event_type"`
	Timestamp string      `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

func toWire(rec emitrecord.Record) wireRecord {
	return wireRecord{
		EventType: rec.EventType,
		Timestamp: rec.Timestamp.UTC().Format("2006-01-02T15:04:05.000000000Z07:00"),
		Payload:   rec.Payload,
	}
}

func newWriter(cfg specdef.OutputSink) (recordWriter, error) {
	switch cfg.Type {
	case specdef.SinkStdout:
		return &streamWriter{out: os.Stdout, format: cfg.Format}, nil
	case specdef.SinkFile:
		return newFileWriter(cfg)
	case specdef.SinkKafka:
		return newKafkaWriter(cfg)
	default:
		return nil, fmt.Errorf("unknown sink type %q", cfg.Type)
	}
}

// streamWriter appends one record per line (NDJSON) to an io.Writer. It
// only closes the underlying writer if it owns it (a file sink owns its
// handle; the stdout sink does not own os.Stdout).
type streamWriter struct {
	out    io.Writer
	format specdef.SinkFormat
	closer io.Closer
}

func (w *streamWriter) Write(rec emitrecord.Record) error {
	line, err := encode(rec, w.format)
	if err != nil {
		return err
	}
	_, err = w.out.Write(append(line, '\n'))
	return err
}

func (w *streamWriter) Close() error {
	if w.closer != nil {
		return w.closer.Close()
	}
	return nil
}

func encode(rec emitrecord.Record, format specdef.SinkFormat) ([]byte, error) {
	wire := toWire(rec)
	if format == specdef.FormatJSONPretty {
		return json.MarshalIndent(wire, "", "  ")
	}
	return json.Marshal(wire)
}

// newFileWriter opens (creating parent directories as needed) an
// append-only NDJSON file sink (spec.md §4.8.1).
func newFileWriter(cfg specdef.OutputSink) (recordWriter, error) {
	if cfg.FilePath == "" {
		return nil, fmt.Errorf("file sink requires file_path")
	}
	if dir := filepath.Dir(cfg.FilePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating sink directory %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(cfg.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening sink file %s: %w", cfg.FilePath, err)
	}
	return &streamWriter{out: f, format: cfg.Format, closer: f}, nil
}
