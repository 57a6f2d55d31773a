package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Message types sent by the server over the socket.
const (
	TypePixel        = "pixel"
	TypeUsers        = "users"
	TypeAlert        = "alert"
	TypeNotification = "notification"
	TypeChatMessage  = "chat_message"
)

// Schema names for the REST payloads.
const (
	SchemaInfo          = "info"
	SchemaNotifications = "notifications"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type string `json:"type"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const schemaBase = "https://pxlsync.dev/schemas/"

var (
	schemasOnce sync.Once
	schemas     map[string]*jsonschema.Schema
	schemasErr  error
)

func compileSchemas() (map[string]*jsonschema.Schema, error) {
	schemasOnce.Do(func() {
		c := jsonschema.NewCompiler()
		files, err := fs.Glob(schemaFS, "schemas/*.schema.json")
		if err != nil {
			schemasErr = err
			return
		}
		for _, f := range files {
			b, err := schemaFS.ReadFile(f)
			if err != nil {
				schemasErr = err
				return
			}
			if err := c.AddResource(schemaBase+path.Base(f), bytes.NewReader(b)); err != nil {
				schemasErr = fmt.Errorf("schema %s: %w", f, err)
				return
			}
		}
		out := make(map[string]*jsonschema.Schema, len(files))
		for _, f := range files {
			name := strings.TrimSuffix(path.Base(f), ".schema.json")
			s, err := c.Compile(schemaBase + path.Base(f))
			if err != nil {
				schemasErr = fmt.Errorf("compile %s: %w", name, err)
				return
			}
			out[name] = s
		}
		schemas = out
	})
	return schemas, schemasErr
}

// Validate checks a generically decoded JSON value against a named schema.
func Validate(name string, v any) error {
	all, err := compileSchemas()
	if err != nil {
		return err
	}
	s, ok := all[name]
	if !ok {
		return fmt.Errorf("unknown schema %q", name)
	}
	return s.Validate(v)
}

// ValidateJSON parses raw and validates it against a named schema. Failures
// are reported as *ValidationError for object.
func ValidateJSON(object, name string, raw []byte) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return &ValidationError{Object: object, Err: err}
	}
	if err := Validate(name, v); err != nil {
		return &ValidationError{Object: object, Err: err}
	}
	return nil
}
