package toolcfg

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/relaybot/relaybot/pkg/models"
)

// labelRe is the permitted tool-server label alphabet.
var labelRe = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// serversSchema constrains the raw edit payload before it is decoded.
const serversSchema = `{
	"type": "array",
	"items": {
		"type": "object",
		"required": ["serverLabel", "serverUrl"],
		"properties": {
			"serverLabel": {"type": "string"},
			"serverUrl": {"type": "string"},
			"allowedTools": {"type": "array", "items": {"type": "string"}}
		},
		"additionalProperties": false
	}
}`

var schemas struct {
	once    sync.Once
	servers *jsonschema.Schema
	initErr error
}

func compiledSchema() (*jsonschema.Schema, error) {
	schemas.once.Do(func() {
		schemas.servers, schemas.initErr = jsonschema.CompileString("tool_servers", serversSchema)
	})
	return schemas.servers, schemas.initErr
}

// ParseServers decodes and validates a raw edit payload. Validation is
// all-or-nothing: a single malformed descriptor rejects the entire edit
// and nothing is written.
func ParseServers(raw string) ([]models.ToolServer, error) {
	schema, err := compiledSchema()
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	var payload any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if err := schema.Validate(payload); err != nil {
		return nil, fmt.Errorf("invalid tool server list: %w", err)
	}

	var servers []models.ToolServer
	if err := json.Unmarshal([]byte(raw), &servers); err != nil {
		return nil, fmt.Errorf("decode tool server list: %w", err)
	}
	if err := ValidateServers(servers); err != nil {
		return nil, err
	}
	return servers, nil
}

// ValidateServers checks every descriptor; the first violation fails the
// whole list.
func ValidateServers(servers []models.ToolServer) error {
	for i, srv := range servers {
		if srv.Label == "" {
			return fmt.Errorf("server %d: label is required", i)
		}
		if !labelRe.MatchString(srv.Label) {
			return fmt.Errorf("server %d: label %q must match [A-Za-z0-9_]+", i, srv.Label)
		}
		if srv.URL == "" {
			return fmt.Errorf("server %d (%s): url is required", i, srv.Label)
		}
	}
	return nil
}
