package adapters

import (
	"encoding/json"
	"fmt"
)

// New creates a source based on kind and generic configuration map.
// This is the central extension point for adding new source types.
//
// Supported kinds:
//   - "postgres": PostgresSource, requires "dsn"
//   - "http": HTTPSource, requires "url"
//   - "file": FileSource, requires "path"
//
// Returns error if kind is unknown or required fields are missing.
func New(kind string, config map[string]string) (Source, error) {
	switch kind {
	case "postgres":
		return newPostgres(config)
	case "http":
		return newHTTP(config)
	case "file":
		return newFile(config)
	default:
		return nil, fmt.Errorf("unknown source kind: %s (must be postgres, http, or file)", kind)
	}
}

func newPostgres(config map[string]string) (Source, error) {
	dsn := config["dsn"]
	if dsn == "" {
		return nil, fmt.Errorf("postgres source requires 'dsn' config")
	}
	return NewPostgresSource(dsn)
}

func newFile(config map[string]string) (Source, error) {
	path := config["path"]
	if path == "" {
		return nil, fmt.Errorf("file source requires 'path' config")
	}
	return &FileSource{Path: path, Sheet: config["sheet"]}, nil
}

// newHTTP creates an HTTP source from generic config.
func newHTTP(config map[string]string) (Source, error) {
	url := config["url"]
	if url == "" {
		return nil, fmt.Errorf("http source requires 'url' config")
	}

	method := config["method"]
	if method == "" {
		method = "GET"
	}

	var headers map[string]string
	if headersJSON := config["headers"]; headersJSON != "" {
		if err := json.Unmarshal([]byte(headersJSON), &headers); err != nil {
			return nil, fmt.Errorf("invalid 'headers' JSON: %w", err)
		}
	}

	var templateVars map[string]string
	if varsJSON := config["templateVars"]; varsJSON != "" {
		if err := json.Unmarshal([]byte(varsJSON), &templateVars); err != nil {
			return nil, fmt.Errorf("invalid 'templateVars' JSON: %w", err)
		}
	}

	src := &HTTPSource{
		URL:             url,
		Method:          method,
		Headers:         headers,
		Body:            config["body"],
		ProductIDPath:   config["productIdPath"],
		QuantityPath:    config["quantityPath"],
		TimestampPath:   config["timestampPath"],
		TimestampFormat: config["timestampFormat"],
		TemplateVars:    templateVars,
	}
	if err := src.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("http source: %w", err)
	}
	return src, nil
}
