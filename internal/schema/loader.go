// file: internal/schema/loader.go
//
// Override loading: file:// URIs are read from the local filesystem and
// http(s):// URIs are fetched with the validator's client. Any other scheme is
// rejected. The embedded schema is only used when no override is configured.
package schema

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/tableside/internal/logging"
)

const maxSchemaBytes = 1 << 20

// loadSchemaFromURI loads schema data from a file:// or http(s):// URI.
func loadSchemaFromURI(ctx context.Context, uri string, logger logging.Logger, httpClient *http.Client) ([]byte, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid schema override URI: %s", uri)
	}

	switch parsed.Scheme {
	case "file":
		return readSchemaFile(parsed, logger)
	case "http", "https":
		return fetchSchema(ctx, uri, logger, httpClient)
	default:
		return nil, NewValidationError(
			ErrSchemaLoadFailed,
			fmt.Sprintf("Unsupported schema URI scheme: %s", parsed.Scheme),
			nil,
		).WithContext("uri", uri)
	}
}

func readSchemaFile(u *url.URL, logger logging.Logger) ([]byte, error) {
	path := u.Path
	// Windows file URIs carry a leading slash before the drive letter.
	if os.PathSeparator == '\\' && strings.HasPrefix(path, "/") {
		path = strings.TrimPrefix(path, "/")
	}

	data, err := os.ReadFile(path) // #nosec G304 -- URI comes from config.
	if err != nil {
		return nil, NewValidationError(
			ErrSchemaNotFound,
			"Failed to read schema file from override URI",
			errors.Wrapf(err, "failed to read schema file: %s", path),
		).WithContext("uri", u.String())
	}
	logger.Debug("Schema file read.", "path", path, "sizeBytes", len(data))
	return data, nil
}

func fetchSchema(ctx context.Context, uri string, logger logging.Logger, client *http.Client) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, NewValidationError(ErrSchemaLoadFailed, "Failed to build schema request",
			errors.Wrap(err, "http.NewRequestWithContext failed")).WithContext("url", uri)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "tableside-schema-loader")

	resp, err := client.Do(req)
	if err != nil {
		return nil, NewValidationError(ErrSchemaLoadFailed, "Failed to fetch schema from override URL",
			errors.Wrap(err, "httpClient.Do failed")).WithContext("url", uri)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.Warn("Error closing schema response body.", "url", uri, "error", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, NewValidationError(
			ErrSchemaLoadFailed,
			fmt.Sprintf("Failed to fetch schema override: HTTP status %d", resp.StatusCode),
			nil,
		).WithContext("url", uri).
			WithContext("statusCode", resp.StatusCode).
			WithContext("responseBody", calculatePreview(body))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSchemaBytes))
	if err != nil {
		return nil, NewValidationError(ErrSchemaLoadFailed, "Failed to read schema override response",
			errors.Wrap(err, "io.ReadAll failed")).WithContext("url", uri)
	}
	logger.Debug("Downloaded schema override.", "url", uri, "sizeBytes", len(data))
	return data, nil
}
