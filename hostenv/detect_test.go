package hostenv

import "testing"

func TestClassify(t *testing.T) {
	t.Parallel()

	const androidChrome = "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 Chrome/126.0 Mobile Safari/537.36"
	const androidWebView = "Mozilla/5.0 (Linux; Android 14; Pixel 8; wv) AppleWebKit/537.36 Chrome/126.0 Mobile Safari/537.36"
	const desktopChrome = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 Chrome/126.0 Safari/537.36"

	cases := []struct {
		name string
		sig  Signals
		want Kind
	}{
		{"wrapper bridge wins", Signals{WrapperBridge: true}, KindWrappedApp},
		{"webview marker", Signals{UserAgent: androidWebView}, KindWrappedApp},
		{"shell marker", Signals{UserAgent: desktopChrome + " GoalTrack-Shell/2.1"}, KindWrappedApp},
		{"standalone on mobile engine", Signals{DisplayMode: "standalone", UserAgent: androidChrome}, KindWrappedApp},
		{"fullscreen on mobile engine", Signals{DisplayMode: "fullscreen", UserAgent: androidChrome}, KindWrappedApp},
		{"standalone on desktop", Signals{DisplayMode: "standalone", UserAgent: desktopChrome}, KindBrowser},
		{"plain mobile tab", Signals{DisplayMode: "browser", UserAgent: androidChrome}, KindBrowser},
		{"plain desktop tab", Signals{UserAgent: desktopChrome}, KindBrowser},
		{"no signals at all", Signals{}, KindBrowser},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.sig); got != tc.want {
				t.Errorf("Classify(%+v) = %q, want %q", tc.sig, got, tc.want)
			}
		})
	}
}

func TestDetectIsMemoized(t *testing.T) {
	first := Detect()
	second := Detect()
	if first != second {
		t.Errorf("Detect() not stable: %q then %q", first, second)
	}
}
