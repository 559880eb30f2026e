package stats

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"strconv"

	"github.com/lance6716/plan-replayer/pkg/util"
	"github.com/pingcap/errors"
)

const recordIndent = "    "

type document struct {
	Version   int            `json:"version"`
	Relations []RelationStat `json:"relations"`
	Columns   []ColumnStat   `json:"columns"`
}

// Encode renders the snapshot as an indented JSON document in which every
// record takes exactly one line, so two snapshots can be reviewed with a line
// diff.
func (s *Snapshot) Encode() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("{\n")
	buf.WriteString(`  "version": ` + strconv.Itoa(SnapshotVersion) + ",\n")
	if err := writeRecords(&buf, "relations", s.Relations); err != nil {
		return nil, errors.Trace(err)
	}
	buf.WriteString(",\n")
	if err := writeRecords(&buf, "columns", s.Columns); err != nil {
		return nil, errors.Trace(err)
	}
	buf.WriteString("\n}\n")
	return buf.Bytes(), nil
}

func writeRecords[T any](buf *bytes.Buffer, key string, records []T) error {
	buf.WriteString(`  "` + key + `": [`)
	if len(records) == 0 {
		buf.WriteString("]")
		return nil
	}
	buf.WriteString("\n")
	for i := range records {
		line, err := compactLine(&records[i])
		if err != nil {
			return errors.Annotatef(err, "encode %s record %d", key, i)
		}
		buf.WriteString(recordIndent)
		buf.Write(line)
		if i < len(records)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	buf.WriteString("  ]")
	return nil
}

func compactLine(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// DecodeSnapshot reads a document produced by Encode. Numbers inside value
// arrays keep their original text. The returned error is of
// KindMalformedSnapshot.
func DecodeSnapshot(r io.Reader) (*Snapshot, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	dec.DisallowUnknownFields()
	var doc document
	if err := dec.Decode(&doc); err != nil {
		return nil, util.WrapKind(util.KindMalformedSnapshot, errors.Annotate(err, "decode statistics snapshot"))
	}
	if doc.Version != SnapshotVersion {
		return nil, malformed("unsupported snapshot version %d", doc.Version)
	}
	s := &Snapshot{Relations: doc.Relations, Columns: doc.Columns}
	if err := s.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return s, nil
}

// WriteFile encodes the snapshot and writes it to path in one operation.
func (s *Snapshot) WriteFile(path string) error {
	content, err := s.Encode()
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(util.AtomicWrite(path, content))
}

// ReadFile reads and validates a snapshot file.
func ReadFile(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Annotatef(err, "open statistics snapshot %s", path)
	}
	defer f.Close()
	s, err := DecodeSnapshot(f)
	return s, errors.Annotatef(err, "read statistics snapshot %s", path)
}
