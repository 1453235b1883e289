package llm

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// CallRecord is one LM call as written to the JSONL call-history log. It
// is diagnostic output, not part of any component's data model.
type CallRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Role      Role      `json:"role"`
	Model     string    `json:"model"`
	Prompt    string    `json:"prompt"`
	ErrText   string    `json:"error,omitempty"`
	Err       error     `json:"-"`
}

// History appends CallRecords to a JSONL file, one object per line. A nil
// *History disables recording entirely; callers check for nil before use.
type History struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewHistory opens (creating if necessary, appending if present) path for
// JSONL call-history recording.
func NewHistory(path string) (*History, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, eris.Wrapf(err, "llm: open call history %s", path)
	}
	return &History{file: f, enc: json.NewEncoder(f)}, nil
}

// Record appends rec to the history file, stamping the current time and
// flattening rec.Err into ErrText. Encoding failures are logged-worthy
// but not surfaced — history is diagnostic, never load-bearing.
func (h *History) Record(rec CallRecord) {
	if h == nil {
		return
	}
	rec.Timestamp = time.Now()
	if rec.Err != nil {
		rec.ErrText = rec.Err.Error()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	_ = h.enc.Encode(rec)
}

// Close releases the underlying file handle.
func (h *History) Close() error {
	if h == nil {
		return nil
	}
	return h.file.Close()
}
