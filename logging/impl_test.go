package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"go.viam.com/test"
)

// splitLine returns the tab separated parts of the next log line in buf.
func splitLine(t *testing.T, buf *bytes.Buffer) []string {
	t.Helper()
	line, err := buf.ReadString('\n')
	test.That(t, err, test.ShouldBeNil)
	return strings.Split(strings.TrimSuffix(line, "\n"), "\t")
}

func TestConsoleFormatting(t *testing.T) {
	var buf bytes.Buffer
	logger := NewBlankLogger("stereo")
	logger.AddAppender(NewWriterAppender(&buf))

	logger.Info("solved ", 3, " views")
	parts := splitLine(t, &buf)
	test.That(t, parts, test.ShouldHaveLength, 5)
	test.That(t, len(parts[0]), test.ShouldEqual, len("2024-01-23T09:26:57.843Z"))
	test.That(t, parts[1], test.ShouldEqual, "INFO")
	test.That(t, parts[2], test.ShouldEqual, "stereo")
	test.That(t, parts[3], test.ShouldStartWith, "logging/impl_test.go:")
	test.That(t, parts[4], test.ShouldEqual, "solved 3 views")

	logger.Debugw("corners", "left", 35, "right", 35)
	parts = splitLine(t, &buf)
	test.That(t, parts, test.ShouldHaveLength, 6)
	test.That(t, parts[1], test.ShouldEqual, "DEBUG")
	fields := map[string]any{}
	test.That(t, json.Unmarshal([]byte(parts[5]), &fields), test.ShouldBeNil)
	test.That(t, fields, test.ShouldResemble, map[string]any{"left": 35.0, "right": 35.0})

	logger.Warnw("odd", "key")
	parts = splitLine(t, &buf)
	test.That(t, parts[5], test.ShouldContainSubstring, "unpaired log key")
}

func TestLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewBlankLogger("levels")
	logger.AddAppender(NewWriterAppender(&buf))
	logger.SetLevel(WARN)
	test.That(t, logger.GetLevel(), test.ShouldEqual, WARN)

	logger.Debug("hidden")
	logger.Infof("hidden %d", 1)
	test.That(t, buf.Len(), test.ShouldEqual, 0)

	logger.Errorf("shown %d", 2)
	parts := splitLine(t, &buf)
	test.That(t, parts[1], test.ShouldEqual, "ERROR")
	test.That(t, parts[4], test.ShouldEqual, "shown 2")

	for _, name := range []string{"debug", "INFO", "Warning", "error"} {
		_, err := LevelFromString(name)
		test.That(t, err, test.ShouldBeNil)
	}
	_, err := LevelFromString("loud")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestLoggerConstructors(t *testing.T) {
	test.That(t, NewLogger("stereocal").GetLevel(), test.ShouldEqual, INFO)
	test.That(t, NewDebugLogger("stereocal").GetLevel(), test.ShouldEqual, DEBUG)
}

func TestSublogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewBlankLogger("stereocal")
	logger.AddAppender(NewWriterAppender(&buf))

	sub := logger.Sublogger("solver")
	sub.Info("hello")
	parts := splitLine(t, &buf)
	test.That(t, parts[2], test.ShouldEqual, "stereocal.solver")

	// Levels are copied, not shared.
	sub.SetLevel(ERROR)
	test.That(t, logger.GetLevel(), test.ShouldEqual, DEBUG)
	test.That(t, logger.Sync(), test.ShouldBeNil)
}

func TestObservedTestLogger(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)
	logger.Infow("saved", "path", "/tmp/x.yml")
	logger.Error("boom")

	test.That(t, logs.Len(), test.ShouldEqual, 2)
	test.That(t, logs.FilterMessage("saved").Len(), test.ShouldEqual, 1)
	test.That(t, logs.FilterField(logs.All()[0].Context[0]).Len(), test.ShouldEqual, 1)
}
