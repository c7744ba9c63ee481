//go:build darwin

package permissions

/*
#cgo LDFLAGS: -framework AVFoundation
#import <AVFoundation/AVFoundation.h>

int checkMicrophonePermission() {
    AVAuthorizationStatus status = [AVCaptureDevice authorizationStatusForMediaType:AVMediaTypeAudio];
    return (int)status;
}

void requestMicrophonePermission() {
    [AVCaptureDevice requestAccessForMediaType:AVMediaTypeAudio completionHandler:^(BOOL granted) {}];
}
*/
import "C"

import (
	"context"
	"time"
)

// system queries AVFoundation; AVAuthorizationStatus values line up with Status
type system struct{}

// Default returns the AVFoundation-backed provider
func Default() Provider {
	return system{}
}

func (system) Status() Status {
	return Status(int(C.checkMicrophonePermission()))
}

func (s system) Request(ctx context.Context) (Status, error) {
	if st := s.Status(); st != NotDetermined {
		return st, nil
	}
	C.requestMicrophonePermission()
	return waitDecided(ctx, s.Status, 250*time.Millisecond)
}
