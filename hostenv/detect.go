// Package hostenv classifies the host environment the app is running in.
//
// Permission and notification behavior differ sharply between a standard
// browser tab and an app-wrapper ("APK") container, so every component that
// talks to the platform branches on this single classification instead of
// sniffing runtime globals itself.
package hostenv

import (
	"os"
	"strings"
	"sync"
)

// Kind is the detected host environment.
type Kind string

const (
	// KindBrowser is a standard browser tab. This is the conservative
	// default: a false negative only costs the wrapped-app workarounds.
	KindBrowser Kind = "browser"
	// KindWrappedApp is a native shell embedding the app with weaker or
	// differently-timed notification/permission APIs.
	KindWrappedApp Kind = "wrapped-app"
)

// Signals are the runtime observations classification is based on. The host
// bridge populates them; in the daemon they come from the environment the
// wrapper shell exports.
type Signals struct {
	// DisplayMode is the resolved display mode ("standalone", "fullscreen",
	// "minimal-ui", "browser").
	DisplayMode string
	// UserAgent is the host user-agent string, empty when unknown.
	UserAgent string
	// WrapperBridge reports whether a wrapper-injected global bridge object
	// is present.
	WrapperBridge bool
}

var mobileEngineMarkers = []string{"android", "iphone", "ipad", "mobile"}

var webViewMarkers = []string{"; wv)", "webview", "goaltrack-shell"}

// Classify decides the host kind from the given signals. Pure; no errors —
// anything ambiguous falls back to KindBrowser.
func Classify(sig Signals) Kind {
	if sig.WrapperBridge {
		return KindWrappedApp
	}

	ua := strings.ToLower(sig.UserAgent)
	for _, marker := range webViewMarkers {
		if strings.Contains(ua, marker) {
			return KindWrappedApp
		}
	}

	if isStandaloneDisplay(sig.DisplayMode) {
		for _, marker := range mobileEngineMarkers {
			if strings.Contains(ua, marker) {
				return KindWrappedApp
			}
		}
	}

	return KindBrowser
}

func isStandaloneDisplay(mode string) bool {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "standalone", "fullscreen":
		return true
	}
	return false
}

var (
	detectOnce sync.Once
	detected   Kind
)

// Detect classifies the current process's host environment from the
// wrapper-exported environment and memoizes the result for the process
// lifetime.
func Detect() Kind {
	detectOnce.Do(func() {
		detected = Classify(SignalsFromEnviron())
	})
	return detected
}

// SignalsFromEnviron reads classification signals from the process
// environment. Wrapper shells export these when launching the worker.
func SignalsFromEnviron() Signals {
	return Signals{
		DisplayMode:   os.Getenv("GOALTRACK_DISPLAY_MODE"),
		UserAgent:     os.Getenv("GOALTRACK_USER_AGENT"),
		WrapperBridge: os.Getenv("GOALTRACK_WRAPPER_BRIDGE") != "",
	}
}
