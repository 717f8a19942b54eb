// Package schema validates auth service response bodies against a JSON schema
// before the flow reads them.
// file: internal/schema/validator.go
//
// The validator loads the schema from a configured override URI or from the
// embedded document, compiles every definition under $defs, and validates
// decoded bodies by response type. A body that fails validation is never
// handed to the flow.
package schema

import (
	"bytes"
	"context"
	_ "embed" // Required for go:embed.
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/tableside/internal/config"
	"github.com/dkoosis/tableside/internal/logging"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed authservice.schema.json
var embeddedSchemaContent []byte

// Response types defined by the embedded schema.
const (
	DispatchResponse = "dispatch_response"
	VerifyResponse   = "verify_response"
	OAuthResponse    = "oauth_response"
	ClaimResponse    = "claim_response"
	ErrorResponse    = "error_response"
)

const resourceID = "tableside://authservice.schema.json"

// ValidatorInterface defines the methods needed for response validation.
type ValidatorInterface interface {
	Validate(ctx context.Context, responseType string, data []byte) error
	HasSchema(name string) bool
	IsInitialized() bool
	Initialize(ctx context.Context) error
	SchemaVersion() string
	Shutdown() error
}

// Validator handles loading, compiling, and validating against the auth service schema.
type Validator struct {
	schemaConfig        config.SchemaConfig
	compiler            *jsonschema.Compiler
	schemas             map[string]*jsonschema.Schema
	mu                  sync.RWMutex
	httpClient          *http.Client
	initialized         bool
	logger              logging.Logger
	lastLoadDuration    time.Duration
	lastCompileDuration time.Duration
	schemaVersion       string
}

var _ ValidatorInterface = (*Validator)(nil)

// NewValidator creates a new Validator with the given schema configuration.
func NewValidator(cfg config.SchemaConfig, logger logging.Logger) *Validator {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	compiler.AssertFormat = true

	return &Validator{
		schemaConfig: cfg,
		compiler:     compiler,
		schemas:      make(map[string]*jsonschema.Schema),
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		logger:       logging.OrNoop(logger).WithField("component", "schema_validator"),
	}
}

// Initialize loads and compiles the schema definitions. The override URI wins
// over the embedded schema.
func (v *Validator) Initialize(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.initialized {
		v.logger.Debug("Schema validator already initialized, skipping.")
		return nil
	}

	var (
		schemaData []byte
		sourceInfo string
		loadErr    error
	)
	loadStart := time.Now()
	if uri := v.schemaConfig.SchemaOverrideURI; uri != "" {
		v.logger.Info("Loading schema from override URI.", "uri", uri)
		schemaData, loadErr = loadSchemaFromURI(ctx, uri, v.logger, v.httpClient)
		sourceInfo = fmt.Sprintf("override: %s", uri)
	} else {
		schemaData = embeddedSchemaContent
		sourceInfo = "embedded"
	}
	v.lastLoadDuration = time.Since(loadStart)

	if loadErr != nil {
		return errors.Wrapf(loadErr, "failed to load schema from source '%s'", sourceInfo)
	}
	if len(schemaData) == 0 {
		return NewValidationError(ErrSchemaLoadFailed, "Loaded schema data is empty", nil).WithContext("source", sourceInfo)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(schemaData, &doc); err != nil {
		return NewValidationError(ErrSchemaLoadFailed, "Failed to parse schema JSON", errors.Wrap(err, "json.Unmarshal failed"))
	}
	v.schemaVersion = schemaVersionOf(doc)

	if err := v.compiler.AddResource(resourceID, bytes.NewReader(schemaData)); err != nil {
		return NewValidationError(ErrSchemaLoadFailed, "Failed to add schema resource", errors.Wrap(err, "compiler.AddResource failed")).
			WithContext("schemaSize", len(schemaData))
	}

	compileStart := time.Now()
	compiled, err := v.compileDefinitions(doc)
	v.lastCompileDuration = time.Since(compileStart)
	if err != nil {
		return err
	}

	v.schemas = compiled
	v.initialized = true
	v.logger.Info("Schema validator initialized.",
		"source", sourceInfo,
		"loadDuration", v.lastLoadDuration,
		"compileDuration", v.lastCompileDuration,
		"schemaVersion", v.schemaVersion,
		"schemasCompiled", len(v.schemas))
	return nil
}

// compileDefinitions compiles every entry under $defs. The first failure aborts.
func (v *Validator) compileDefinitions(doc map[string]interface{}) (map[string]*jsonschema.Schema, error) {
	defs, ok := doc["$defs"].(map[string]interface{})
	if !ok || len(defs) == 0 {
		return nil, NewValidationError(ErrSchemaCompileFailed, "Schema has no $defs section", nil)
	}

	compiled := make(map[string]*jsonschema.Schema, len(defs))
	for name := range defs {
		pointer := resourceID + "#/$defs/" + name
		s, err := v.compiler.Compile(pointer)
		if err != nil {
			return nil, NewValidationError(
				ErrSchemaCompileFailed,
				fmt.Sprintf("Failed to compile schema definition '%s'", name),
				errors.Wrap(err, "compiler.Compile failed"),
			).WithContext("pointer", pointer)
		}
		compiled[name] = s
		v.logger.Debug("Compiled schema definition.", "name", name)
	}
	return compiled, nil
}

// Validate checks data against the schema for responseType.
func (v *Validator) Validate(_ context.Context, responseType string, data []byte) error {
	v.mu.RLock()
	initialized := v.initialized
	s, ok := v.schemas[responseType]
	v.mu.RUnlock()

	if !initialized {
		return NewValidationError(ErrSchemaNotFound, "Schema validator not initialized", nil)
	}
	if !ok {
		return NewValidationError(
			ErrSchemaNotFound,
			fmt.Sprintf("Schema definition not found for response type '%s'", responseType),
			nil,
		).WithContext("availableSchemas", v.schemaNames())
	}

	var instance interface{}
	if err := json.Unmarshal(data, &instance); err != nil {
		return NewValidationError(ErrInvalidJSONFormat, "Invalid JSON format", errors.Wrap(err, "json.Unmarshal failed")).
			WithContext("responseType", responseType).
			WithContext("dataPreview", calculatePreview(data))
	}

	if err := s.Validate(instance); err != nil {
		var valErr *jsonschema.ValidationError
		if errors.As(err, &valErr) {
			v.logger.Debug("Response failed schema validation.", "responseType", responseType, "error", valErr.Message)
			return convertValidationError(valErr, responseType, data)
		}
		return NewValidationError(ErrValidationFailed, "Schema validation failed with unexpected error",
			errors.Wrap(err, "schema.Validate failed unexpectedly")).WithContext("responseType", responseType)
	}
	return nil
}

// HasSchema reports whether a definition named name was compiled.
func (v *Validator) HasSchema(name string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.schemas[name]
	return ok
}

// IsInitialized returns whether the validator has been initialized.
func (v *Validator) IsInitialized() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.initialized
}

// SchemaVersion returns the "version" field of the loaded schema, or "[unknown]".
func (v *Validator) SchemaVersion() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.schemaVersion
}

// Shutdown releases idle connections and forgets compiled schemas.
func (v *Validator) Shutdown() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.initialized {
		return nil
	}
	v.httpClient.CloseIdleConnections()
	v.schemas = make(map[string]*jsonschema.Schema)
	v.initialized = false
	v.logger.Debug("Schema validator shut down.")
	return nil
}

func (v *Validator) schemaNames() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	names := make([]string, 0, len(v.schemas))
	for k := range v.schemas {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func schemaVersionOf(doc map[string]interface{}) string {
	if s, ok := doc["version"].(string); ok && s != "" {
		return s
	}
	return "[unknown]"
}
