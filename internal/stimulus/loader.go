package stimulus

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pavelanni/trivia/internal/model"
)

// Format is a corpus file encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the corpus format from a file extension.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Corpus is a validated stimulus collection.
type Corpus struct {
	Stimuli  []model.Stimulus
	Rejected []Rejection
	SHA256   string
}

// Rejection describes a corpus record that was dropped during validation.
type Rejection struct {
	Index  int
	ID     string
	Reason string
}

type rawStimulus struct {
	ID    any    `json:"id" yaml:"id"`
	Text  string `json:"text" yaml:"text"`
	Truth bool   `json:"truth" yaml:"truth"`
	Photo string `json:"photo" yaml:"photo"`
}

// Load reads and validates a corpus file.
func Load(path string) (*Corpus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	c, err := Parse(data, FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for _, r := range c.Rejected {
		slog.Warn("rejected stimulus record", "path", path, "index", r.Index, "id", r.ID, "reason", r.Reason)
	}
	return c, nil
}

// Parse decodes corpus bytes. Records without an id or text, and repeated ids,
// are rejected rather than failing the whole corpus.
func Parse(data []byte, format Format) (*Corpus, error) {
	var raw []rawStimulus
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
	}

	sum := sha256.Sum256(data)
	c := &Corpus{SHA256: hex.EncodeToString(sum[:])}
	seen := make(map[string]bool, len(raw))
	for i, r := range raw {
		id := normalizeID(r.ID)
		switch {
		case id == "":
			c.Rejected = append(c.Rejected, Rejection{Index: i, Reason: "missing id"})
			continue
		case strings.TrimSpace(r.Text) == "":
			c.Rejected = append(c.Rejected, Rejection{Index: i, ID: id, Reason: "missing text"})
			continue
		case seen[id]:
			c.Rejected = append(c.Rejected, Rejection{Index: i, ID: id, Reason: "duplicate id"})
			continue
		}
		seen[id] = true
		c.Stimuli = append(c.Stimuli, model.Stimulus{
			ID:    id,
			Text:  r.Text,
			Truth: r.Truth,
			Photo: strings.TrimSpace(r.Photo),
		})
	}
	return c, nil
}

func normalizeID(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(id)
	case json.Number:
		return id.String()
	case int:
		return strconv.Itoa(id)
	case int64:
		return strconv.FormatInt(id, 10)
	case uint64:
		return strconv.FormatUint(id, 10)
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return fmt.Sprint(id)
	}
}
