/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package utils

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestNewLoggerIsRegistered(t *testing.T) {
	l := NewLogger("TEST-REGISTRY")
	assert.Same(t, l, NewLogger("TEST-REGISTRY"))

	assert.True(t, SetLoggerLevel("TEST-REGISTRY", "debug"))
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())
	assert.False(t, SetLoggerLevel("TEST-MISSING", "debug"))
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]logrus.Level{
		"trace":   logrus.TraceLevel,
		" DEBUG ": logrus.DebugLevel,
		"warning": logrus.WarnLevel,
		"error":   logrus.ErrorLevel,
		"bogus":   logrus.InfoLevel,
		"":        logrus.InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLogLevel(in), in)
	}
}

func TestColorFormatter(t *testing.T) {
	noColor := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = noColor })

	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	l.SetFormatter(&ColorFormatter{LoggerName: "BISNA-TEST-LONG", NameWidth: 10})
	l.WithFields(logrus.Fields{"b": 2, "a": 1}).Warn("slow query")

	line := buf.String()
	assert.Contains(t, line, "WARNING")
	assert.Contains(t, line, "BISNA-TEST")
	assert.NotContains(t, line, "BISNA-TEST-LONG")
	assert.True(t, strings.HasSuffix(line, ": slow query a=1 b=2\n"), line)
}

func TestEnvDefaults(t *testing.T) {
	t.Setenv("BISNA_UTILS_STRING", "value")
	t.Setenv("BISNA_UTILS_BOOL", "true")
	t.Setenv("BISNA_UTILS_BAD_BOOL", "maybe")

	assert.Equal(t, "value", EnvDefaultString("BISNA_UTILS_STRING", "def"))
	assert.Equal(t, "def", EnvDefaultString("BISNA_UTILS_UNSET", "def"))
	assert.True(t, EnvDefaultBool("BISNA_UTILS_BOOL", false))
	assert.True(t, EnvDefaultBool("BISNA_UTILS_BAD_BOOL", true))
	assert.False(t, EnvDefaultBool("BISNA_UTILS_UNSET", false))
}

func TestSince(t *testing.T) {
	assert.NotEmpty(t, Since(time.Now().Add(-time.Millisecond)))
}
