package adapters

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/tidwall/gjson"
)

// Default gjson paths match the SupplyLink API envelope {"success": true, "data": [...]}.
const (
	DefaultProductIDPath = "data.#.productId"
	DefaultQuantityPath  = "data.#.quantity"
	DefaultTimestampPath = "data.#.createdAt"
)

// HTTPSource calls a REST API endpoint and extracts demand records using
// JSON path expressions.
//
// It supports:
//   - Configurable HTTP method (GET, POST, etc.)
//   - Template-based request body and headers with {{.Now}}, {{.NowRFC3339}} and custom TemplateVars
//   - gjson paths for product ids, quantities and timestamps
//   - Flexible timestamp parsing (RFC3339, Unix seconds, Unix milliseconds)
//
// Example configuration for the SupplyLink API:
//
//	source := &HTTPSource{
//	    URL: "http://supplylink-api:3000/api/demand-records",
//	    Headers: map[string]string{"Authorization": "Bearer {{.Token}}"},
//	    TemplateVars: map[string]string{"Token": token},
//	}
type HTTPSource struct {
	// URL is the endpoint to call (required)
	URL string

	// Method is the HTTP method. Defaults to GET if empty.
	Method string

	// Headers are custom HTTP headers to include in the request.
	Headers map[string]string

	// Body is the request body template (for POST/PUT).
	Body string

	// ProductIDPath, QuantityPath and TimestampPath are gjson paths that must
	// return arrays of equal length. Empty paths use the Default* constants.
	ProductIDPath string
	QuantityPath  string
	TimestampPath string

	// TimestampFormat specifies how to parse timestamps:
	//   "rfc3339"    - RFC3339 strings (default)
	//   "unix"       - Unix seconds (float or int)
	//   "unix_milli" - Unix milliseconds (float or int)
	TimestampFormat string

	// HTTPClient is optional; if nil a default client with timeout is used.
	HTTPClient *http.Client

	// TemplateVars are custom variables available in Body and Headers templates.
	TemplateVars map[string]string
}

func (h *HTTPSource) Name() string { return "http" }

// Collect calls the configured endpoint and returns its records sorted by timestamp.
func (h *HTTPSource) Collect(ctx context.Context) (*DemandFrame, error) {
	if h.URL == "" {
		return nil, errors.New("http source: URL is required")
	}

	now := time.Now().UTC().Truncate(time.Second)
	templateData := map[string]any{
		"Now":        now.Unix(),
		"NowRFC3339": now.Format(time.RFC3339),
	}
	for k, v := range h.TemplateVars {
		templateData[k] = v
	}

	method := h.Method
	if method == "" {
		method = http.MethodGet
	}

	var bodyReader io.Reader
	if h.Body != "" {
		renderedBody, err := renderTemplate(h.Body, templateData)
		if err != nil {
			return nil, fmt.Errorf("render body template: %w", err)
		}
		bodyReader = bytes.NewBufferString(renderedBody)
	}

	cli := h.HTTPClient
	if cli == nil {
		cli = &http.Client{Timeout: 30 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, method, h.URL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	for key, value := range h.Headers {
		rendered, err := renderTemplate(value, templateData)
		if err != nil {
			return nil, fmt.Errorf("render header %s: %w", key, err)
		}
		req.Header.Set(key, rendered)
	}

	resp, err := cli.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("http status %d: %s", resp.StatusCode, string(body))
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return h.parse(respBody)
}

func (h *HTTPSource) parse(body []byte) (*DemandFrame, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("response is not valid JSON")
	}

	productPath := orDefault(h.ProductIDPath, DefaultProductIDPath)
	quantityPath := orDefault(h.QuantityPath, DefaultQuantityPath)
	timestampPath := orDefault(h.TimestampPath, DefaultTimestampPath)

	results := gjson.GetManyBytes(body, productPath, quantityPath, timestampPath)
	for i, path := range []string{productPath, quantityPath, timestampPath} {
		if !results[i].Exists() {
			return nil, fmt.Errorf("path %q not found in response", path)
		}
	}

	products := results[0].Array()
	quantities := results[1].Array()
	timestamps := results[2].Array()

	if len(products) != len(quantities) || len(products) != len(timestamps) {
		return nil, fmt.Errorf("product count (%d), quantity count (%d) and timestamp count (%d) differ",
			len(products), len(quantities), len(timestamps))
	}

	records := make([]DemandRecord, 0, len(products))
	for i := range products {
		ts, err := h.parseTimestamp(timestamps[i])
		if err != nil {
			return nil, fmt.Errorf("parse timestamp[%d]: %w", i, err)
		}
		qty, err := parseQuantity(quantities[i])
		if err != nil {
			return nil, fmt.Errorf("quantity[%d] is not a number: %w", i, err)
		}

		records = append(records, DemandRecord{
			ProductID: products[i].String(),
			Quantity:  qty,
			CreatedAt: ts,
		})
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})

	return &DemandFrame{Records: records}, nil
}

// parseQuantity accepts JSON numbers and numeric strings such as "12.5",
// which APIs serializing decimals commonly emit.
func parseQuantity(value gjson.Result) (float64, error) {
	switch value.Type {
	case gjson.Number:
		return value.Num, nil
	case gjson.String:
		return strconv.ParseFloat(strings.TrimSpace(value.Str), 64)
	default:
		return 0, fmt.Errorf("unexpected JSON %s", value.Type)
	}
}

// parseTimestamp parses a timestamp according to the configured format
func (h *HTTPSource) parseTimestamp(value gjson.Result) (time.Time, error) {
	switch orDefault(h.TimestampFormat, "rfc3339") {
	case "rfc3339":
		return time.Parse(time.RFC3339, value.String())

	case "unix":
		sec := value.Float()
		return time.Unix(int64(sec), 0).UTC(), nil

	case "unix_milli":
		ms := value.Float()
		return time.UnixMilli(int64(ms)).UTC(), nil

	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp format: %s", h.TimestampFormat)
	}
}

// ValidateConfig checks if the source configuration is valid
func (h *HTTPSource) ValidateConfig() error {
	if h.URL == "" {
		return errors.New("url is required")
	}

	validFormats := map[string]bool{
		"":           true,
		"rfc3339":    true,
		"unix":       true,
		"unix_milli": true,
	}
	if !validFormats[h.TimestampFormat] {
		return fmt.Errorf("invalid timestampFormat: %s (must be rfc3339, unix, or unix_milli)", h.TimestampFormat)
	}

	return nil
}

// renderTemplate renders a text template with the given data
func renderTemplate(tmplStr string, data map[string]any) (string, error) {
	if !strings.Contains(tmplStr, "{{") {
		return tmplStr, nil
	}

	tmpl, err := template.New("").Parse(tmplStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
