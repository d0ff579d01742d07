package pdfmark

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(LogLevelInfo, &buf)

	l.Debug("hidden debug")
	l.Info("visible info", "page", 3)
	l.Warn("visible warn")

	out := buf.String()
	if strings.Contains(out, "hidden debug") {
		t.Errorf("debug message logged at info level:\n%s", out)
	}
	for _, want := range []string{"visible info", "page=3", "visible warn", "component=pdfmark"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	l.SetEnabled(false)
	l.Error("silenced")
	if buf.Len() != 0 {
		t.Errorf("disabled logger wrote %q", buf.String())
	}

	buf.Reset()
	l.SetEnabled(true)
	l.SetLevel(LogLevelNone)
	l.Error("none")
	if buf.Len() != 0 {
		t.Errorf("LogLevelNone wrote %q", buf.String())
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   LogLevelDebug,
		"INFO":    LogLevelInfo,
		"":        LogLevelWarn,
		"warning": LogLevelWarn,
		"error":   LogLevelError,
		"off":     LogLevelNone,
	}
	for in, want := range tests {
		got, err := ParseLogLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLogLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseLogLevel("verbose"); err == nil {
		t.Error("ParseLogLevel(verbose) succeeded")
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{newPageError(2, KindPageRasterFailure, errors.New("x")), KindPageRasterFailure},
		{fmt.Errorf("wrapped: %w", &Error{Kind: KindSerializationFailure, Op: "compose"}), KindSerializationFailure},
		{fmt.Errorf("%w: bad", ErrInvalidDescriptor), KindInvalidDescriptor},
		{fmt.Errorf("%w: 9", ErrPageOutOfRange), KindPageOutOfRange},
		{context.Canceled, KindCanceled},
		{errors.New("plain"), KindUnknown},
		{nil, KindUnknown},
	}
	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.want {
			t.Errorf("KindOf(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}

	pe := newPageError(4, KindUnparsableColor, ErrUnparsableColor)
	if !errors.Is(pe, ErrUnparsableColor) {
		t.Error("PageError does not unwrap")
	}
	if !strings.Contains(pe.Error(), "page 4") || !strings.Contains(pe.Error(), "UnparsableColor") {
		t.Errorf("PageError.Error() = %q", pe.Error())
	}
}
