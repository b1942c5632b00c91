// Package errors defines coded errors shared by the bootstrap packages.
package errors

import "errors"

// Code identifies a structured error type used across the application.
type Code string

const (
	// Generic codes
	CodeUnknown Code = "unknown"

	// Update feed and installer errors
	CodeFeedURLNotSet   Code = "feed_url_not_set"
	CodeFeedRequest     Code = "feed_request_failed"
	CodeInstallerFailed Code = "installer_failed"
	CodeInstallerOutput Code = "installer_output_invalid"
	CodeDownloadFailed  Code = "download_failed"

	// Host updater errors
	CodeHostInit          Code = "host_init_failed"
	CodeInconsistentState Code = "inconsistent_installer_state"
	CodeUnhandled         Code = "unhandled_exception"
	CodeManifestRead      Code = "pinned_manifest_read"
	CodeManifestParse     Code = "pinned_manifest_parse"

	// Desktop integration errors
	CodeShortcutFailed  Code = "shortcut_failed"
	CodeProtocolFailed  Code = "protocol_registration_failed"
	CodeAutostartFailed Code = "autostart_failed"
	CodeMarkerWrite     Code = "first_run_marker_write"

	CodeConfigurationError Code = "configuration_error"
)

// Error represents a structured error with a machine-readable code plus message.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// Error implements the error interface.
func (e Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Code)
}

// Unwrap returns the wrapped error.
func (e Error) Unwrap() error {
	return e.Err
}

// New wraps an error with a code/message.
func New(code Code, msg string, err error) Error {
	return Error{Code: code, Message: msg, Err: err}
}

// CodeOf walks the error chain and returns the first structured code found.
func CodeOf(err error) Code {
	var structured Error
	if errors.As(err, &structured) {
		return structured.Code
	}
	return CodeUnknown
}

// IsCode reports whether the error (or its unwrap chain) matches the provided code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
