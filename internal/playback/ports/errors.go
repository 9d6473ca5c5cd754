// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ports

import "fmt"

// ErrorDomain groups engine errors by their origin.
type ErrorDomain string

const (
	DomainCore     ErrorDomain = "core"
	DomainLibrary  ErrorDomain = "library"
	DomainResource ErrorDomain = "resource"
	DomainStream   ErrorDomain = "stream"
)

// ErrorCode identifies an engine error within its domain.
type ErrorCode string

const (
	CodeFailed        ErrorCode = "failed"
	CodeMissingPlugin ErrorCode = "missing-plugin"
	CodeStateChange   ErrorCode = "state-change"
	CodeNotFound      ErrorCode = "not-found"
	CodeOpenRead      ErrorCode = "open-read"
	CodeRead          ErrorCode = "read"
	CodeTypeNotFound  ErrorCode = "type-not-found"
	CodeWrongType     ErrorCode = "wrong-type"
	CodeCodecNotFound ErrorCode = "codec-not-found"
	CodeDecode        ErrorCode = "decode"
	CodeDemux         ErrorCode = "demux"
	CodeDecrypt       ErrorCode = "decrypt"
	CodeDecryptNoKey  ErrorCode = "decrypt-nokey"
	CodeNotAuthorized ErrorCode = "not-authorized"
)

// EngineError is an error reported by the pipeline on its message stream.
type EngineError struct {
	Domain  ErrorDomain
	Code    ErrorCode
	Message string
	Source  string
}

func (e *EngineError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Source != "" {
		return fmt.Sprintf("%s/%s from %s: %s", e.Domain, e.Code, e.Source, e.Message)
	}
	return fmt.Sprintf("%s/%s: %s", e.Domain, e.Code, e.Message)
}

// Is matches another EngineError with the same domain and code. An empty
// domain or code in target acts as a wildcard.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok || e == nil || t == nil {
		return false
	}
	if t.Domain != "" && t.Domain != e.Domain {
		return false
	}
	if t.Code != "" && t.Code != e.Code {
		return false
	}
	return true
}
