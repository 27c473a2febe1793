// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeStoreImageGetNotFound             Code = "store.image.get.not_found"
	CodeStoreImageInsertInvalid           Code = "store.image.insert.invalid_input"
	CodeStoreDescriptorInsertInvalid      Code = "store.descriptor.insert.invalid_input"
	CodeStoreDescriptorReferential        Code = "store.descriptor.insert.referential_violation"
	CodeStoreSnapshotQueryDatabaseFailure Code = "store.snapshot.query.database_failure"
	CodeStoreWriteReadOnly                Code = "store.write.read_only"
	CodeStoreHashInvalid                  Code = "store.hash.parse.invalid_format"
	CodeStoreDatabaseFailure              Code = "store.database.failure"
	CodeStoreBackendUnsupported           Code = "store.backend.unsupported"
	CodeStoreClosed                       Code = "store.handle.closed"

	CodeIndexBuildSchemaMismatch Code = "index.build.schema_mismatch"
	CodeIndexQuerySchemaMismatch Code = "index.query.schema_mismatch"
	CodeIndexNotLoaded           Code = "index.search.not_loaded"

	CodeIngestImageDecodeFailure Code = "ingest.image.decode.failure"
	CodeIngestBatchInterrupted   Code = "ingest.batch.interrupted"
	CodeIngestExtractFailure     Code = "ingest.extract.failure"
	CodeIngestSourceReadFailure  Code = "ingest.source.read.failure"

	CodeExtractRequestInvalid  Code = "extract.request.invalid"
	CodeExtractResponseInvalid Code = "extract.response.invalid"
	CodeExtractUpstreamFailure Code = "extract.upstream.failure"
	CodeExtractNotConfigured   Code = "extract.provider.not_configured"
	CodeExtractUnavailable     Code = "extract.provider.unavailable"

	CodeSearchRequestInvalid Code = "search.request.invalid_input"

	CodeConfigLoadReadFailure      Code = "config.load.read.failure"
	CodeConfigParseInvalidFormat   Code = "config.parse.invalid_format"
	CodeConfigValidateInvalidValue Code = "config.validate.invalid_value"
	CodeConfigAlreadyExists        Code = "config.write.already_exists"

	CodeSecretResolveFailure Code = "secret.resolve.failure"
	CodeSecretNotFound       Code = "secret.get.not_found"
	CodeSecretStoreFailure   Code = "secret.store.failure"
	CodeSecretDeleteFailure  Code = "secret.delete.failure"
	CodeSecretListFailure    Code = "secret.list.failure"
	CodeSecretInvalidInput   Code = "secret.request.invalid_input"

	CodeServerRequestInvalid  Code = "server.request.invalid"
	CodeServerInternalFailure Code = "server.internal.failure"
	CodeServerEntityNotFound  Code = "server.entity.not_found"
	CodeServerConfigInvalid   Code = "server.config.invalid"
	CodeServerStartFailure    Code = "server.start.failure"
	CodeServerShutdownFailure Code = "server.shutdown.failure"
	CodeServerNotImplemented  Code = "server.method.not_implemented"

	CodeCLIRequestFailure Code = "cli.request.failure"
	CodeCLISetupFailure   Code = "cli.setup.failure"
	CodeCLIInputInvalid   Code = "cli.input.invalid"
)

// Attr is a structured key/value pair attached to an error.
type Attr struct {
	Key   string
	Value any
}

// FieldValue creates a structured error field.
func FieldValue(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

// Field is the short form of FieldValue.
func Field(key string, value any) Attr {
	return FieldValue(key, value)
}

func FieldHash(value string) Attr {
	return Field("hash", value)
}

func FieldBatch(value string) Attr {
	return Field("batch", value)
}

func FieldPath(value string) Attr {
	return Field("path", value)
}

func FieldProvider(value string) Attr {
	return Field("provider", value)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).Wrapf(err, format, args...)
}

// With adds structured fields to an existing error chain.
func With(err error, fields ...Attr) error {
	if err == nil {
		return nil
	}

	code := CodeOf(err)
	if code == "" {
		code = CodeServerInternalFailure
	}

	return oops.Code(code).With(flatten(fields)...).Wrap(err)
}

func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	if code, ok := oopsErr.Code().(Code); ok {
		return code
	}

	if code, ok := oopsErr.Code().(string); ok {
		return Code(code)
	}

	return Code(fmt.Sprintf("%v", oopsErr.Code()))
}

func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}

	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

func IsNotFound(err error) bool {
	return reason(CodeOf(err)) == "not_found"
}

func IsInvalidInput(err error) bool {
	r := reason(CodeOf(err))
	return r == "invalid" || r == "invalid_input" || r == "invalid_value" || r == "invalid_format"
}

func IsSchemaMismatch(err error) bool {
	return reason(CodeOf(err)) == "schema_mismatch"
}

func IsReferentialViolation(err error) bool {
	return reason(CodeOf(err)) == "referential_violation"
}

func IsInterrupted(err error) bool {
	return reason(CodeOf(err)) == "interrupted"
}

func IsReadOnly(err error) bool {
	return reason(CodeOf(err)) == "read_only"
}

func IsUnavailable(err error) bool {
	r := reason(CodeOf(err))
	return r == "unavailable" || r == "not_configured" || r == "not_loaded"
}

func IsUpstreamFailure(err error) bool {
	code := CodeOf(err)
	return strings.Contains(string(code), "upstream") && reason(code) == "failure"
}

func HTTPStatus(err error) int {
	switch {
	case HasCode(err, CodeServerNotImplemented):
		return http.StatusNotImplemented
	case IsNotFound(err):
		return http.StatusNotFound
	case IsInvalidInput(err), IsSchemaMismatch(err), IsReferentialViolation(err):
		return http.StatusBadRequest
	case IsReadOnly(err):
		return http.StatusForbidden
	case IsUnavailable(err):
		return http.StatusServiceUnavailable
	case IsInterrupted(err):
		return http.StatusRequestTimeout
	case IsUpstreamFailure(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func Join(errs ...error) error {
	return oops.Code(CodeServerInternalFailure).Wrap(stderrors.Join(errs...))
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

func reason(code Code) string {
	if code == "" {
		return ""
	}

	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}
