package capture

import (
	"time"

	"github.com/petems/pacekeeper/internal/analysis"
	"github.com/petems/pacekeeper/internal/permissions"
	"github.com/petems/pacekeeper/internal/storage"
)

type State int

const (
	StateIdle State = iota
	StateAwaitingStart
	StateRecording
	StateError
)

func (s State) String() string {
	switch s {
	case StateAwaitingStart:
		return "awaiting start"
	case StateRecording:
		return "recording"
	case StateError:
		return "error"
	default:
		return "idle"
	}
}

// Active reports whether a device session is open
func (s State) Active() bool {
	return s == StateAwaitingStart || s == StateRecording
}

// Interruption is a system or device event delivered while capturing
type Interruption int

const (
	SystemSleep Interruption = iota
	AppInactive
	RouteChanged
	DeviceConnected
	DeviceDisconnected
	ConfigurationChanged
)

func (i Interruption) String() string {
	switch i {
	case SystemSleep:
		return "systemSleep"
	case AppInactive:
		return "appInactive"
	case RouteChanged:
		return "routeChanged"
	case DeviceConnected:
		return "deviceConnected"
	case DeviceDisconnected:
		return "deviceDisconnected"
	case ConfigurationChanged:
		return "configurationChanged"
	default:
		return "unknown"
	}
}

// Advisories are non-fatal conditions surfaced while capture continues
type Advisories struct {
	IsolationUnavailable       bool
	PreferredDeviceUnavailable bool
	AppInactive                bool
	RouteChanged               bool
	DeviceConnected            bool
	DeviceDisconnected         bool
	ConfigurationChanged       bool
	// FormatChanged is set when frames arrive in a format other than the segment's
	FormatChanged bool
}

// Status is the published view of the controller
type Status struct {
	State        State
	Error        ErrorKind
	SessionID    string
	SegmentIndex int
	Backend      string
	Advisories   Advisories
	Storage      storage.Status
	LevelDB      float64
}

// Preconditions are evaluated in field order before any device I/O
type Preconditions struct {
	PrivacyConsent        bool
	Permission            permissions.Status
	MicrophoneAvailable   bool
	IsolationAckRequired  bool
	IsolationAcknowledged bool
	CaptureAllowed        bool
}

// Check returns the first failing precondition, or "" when all hold
func (p Preconditions) Check() ErrorKind {
	switch {
	case !p.PrivacyConsent:
		return PrivacyConsentRequired
	case p.Permission == permissions.NotDetermined:
		return PermissionNotDetermined
	case p.Permission == permissions.Denied:
		return PermissionDenied
	case p.Permission == permissions.Restricted:
		return PermissionRestricted
	case !p.MicrophoneAvailable:
		return NoMicrophone
	case p.IsolationAckRequired && !p.IsolationAcknowledged:
		return VoiceIsolationRiskNotAcknowledged
	case !p.CaptureAllowed:
		return SystemAudioCaptureDisallowed
	}
	return ""
}

// CompletedSession is handed to observers once a session has been sealed
type CompletedSession struct {
	SessionID    string
	SegmentPaths []string
	CreatedAt    time.Time
	EndedAt      time.Time
	// Failure is set when the session ended in an error state
	Failure ErrorKind
	Summary analysis.Summary
}
