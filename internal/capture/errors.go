package capture

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyActive is returned by Start while recording or awaiting start
	ErrAlreadyActive = errors.New("capture already active")
	// ErrSelfTestInProgress is returned by Start while a microphone self-test runs
	ErrSelfTestInProgress = errors.New("microphone self-test in progress")
)

// ErrorKind names a terminal capture failure. Failures are never retried.
type ErrorKind string

const (
	PrivacyConsentRequired            ErrorKind = "privacyConsentRequired"
	PermissionNotDetermined           ErrorKind = "permissionNotDetermined"
	PermissionDenied                  ErrorKind = "permissionDenied"
	PermissionRestricted              ErrorKind = "permissionRestricted"
	NoMicrophone                      ErrorKind = "noMicrophone"
	VoiceIsolationRiskNotAcknowledged ErrorKind = "voiceIsolationRiskNotAcknowledged"
	SystemAudioCaptureDisallowed      ErrorKind = "systemAudioCaptureDisallowed"
	DeviceUnavailable                 ErrorKind = "deviceUnavailable"
	AudioFileCreationFailed           ErrorKind = "audioFileCreationFailed"
	EngineStartFailed                 ErrorKind = "engineStartFailed"
	WriteFailed                       ErrorKind = "writeFailed"
	CaptureStartTimedOut              ErrorKind = "captureStartTimedOut"
	CaptureStartValidationFailed      ErrorKind = "captureStartValidationFailed"
)

// Error is returned from Start when capture could not begin
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("capture %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("capture %s", e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the ErrorKind from err, or "" if err is not a capture error
func KindOf(err error) ErrorKind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}
