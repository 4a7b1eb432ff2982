package editor

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

const docTerminator = "\r\n"

// DocEngine edits documents of the form {"id", "body": {"dataStream"}}.
// Keys it does not understand are carried through unchanged.
type DocEngine struct{}

type docInstance struct {
	mu       sync.Mutex
	fields   map[string]json.RawMessage
	body     map[string]json.RawMessage
	stream   string
	disposed bool
}

func (DocEngine) Load(fileID string, snapshot json.RawMessage) (Instance, error) {
	d := &docInstance{fields: map[string]json.RawMessage{}, body: map[string]json.RawMessage{}}
	if err := json.Unmarshal(snapshot, &d.fields); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if d.fields == nil {
		d.fields = map[string]json.RawMessage{}
	}
	if raw, ok := d.fields["body"]; ok {
		if err := json.Unmarshal(raw, &d.body); err != nil {
			return nil, fmt.Errorf("decode document body: %w", err)
		}
		if d.body == nil {
			d.body = map[string]json.RawMessage{}
		}
	}
	if raw, ok := d.body["dataStream"]; ok {
		if err := json.Unmarshal(raw, &d.stream); err != nil {
			return nil, fmt.Errorf("decode document text: %w", err)
		}
	}
	if !strings.HasSuffix(d.stream, docTerminator) {
		d.stream += docTerminator
	}
	if _, ok := d.fields["id"]; !ok {
		d.fields["id"], _ = json.Marshal(fileID)
	}
	return d, nil
}

func (DocEngine) Blank(fileID string) Instance {
	id, _ := json.Marshal(fileID)
	return &docInstance{
		fields: map[string]json.RawMessage{"id": id},
		body:   map[string]json.RawMessage{},
		stream: docTerminator,
	}
}

func (d *docInstance) Snapshot() (json.RawMessage, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.disposed {
		return nil, ErrDisposed
	}
	body := make(map[string]json.RawMessage, len(d.body)+1)
	for k, v := range d.body {
		body[k] = v
	}
	stream, err := json.Marshal(d.stream)
	if err != nil {
		return nil, err
	}
	body["dataStream"] = stream
	fields := make(map[string]json.RawMessage, len(d.fields)+1)
	for k, v := range d.fields {
		fields[k] = v
	}
	if fields["body"], err = json.Marshal(body); err != nil {
		return nil, err
	}
	return json.Marshal(fields)
}

// AppendText inserts text before the closing paragraph mark.
func (d *docInstance) AppendText(text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.disposed {
		return ErrDisposed
	}
	d.stream = strings.TrimSuffix(d.stream, docTerminator) + text + docTerminator
	return nil
}

// Text returns the document with paragraph marks as newlines.
func (d *docInstance) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := strings.TrimSuffix(d.stream, docTerminator)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

func (d *docInstance) Dispose() {
	d.mu.Lock()
	d.disposed = true
	d.mu.Unlock()
}
