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

package notification

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoncle/bisna"
	"github.com/tomoncle/bisna/types"
)

type publishRecorder struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
	err      error
}

func (p *publishRecorder) Publish(subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return p.err
}

func saveFailure() error {
	pf := types.NewSaveFailure("User", int64(42), true, errors.New("UNIQUE constraint failed: users.email"))
	pf.Reason = "duplicate_key"
	return pf
}

func TestNewEvent(t *testing.T) {
	e := NewEvent(bisna.EventException, saveFailure())

	_, err := uuid.Parse(e.ID)
	require.NoError(t, err)
	assert.Equal(t, "exception", e.Event)
	assert.Equal(t, "User", e.Entity)
	assert.Equal(t, "save", e.Operation)
	assert.Equal(t, "42", e.EntityID)
	assert.Equal(t, "duplicate_key", e.Class)
	assert.Contains(t, e.Error, "unable to save entity with ID: 42")
	assert.False(t, e.Time.IsZero())

	plain := NewEvent("exception", errors.New("no such table: ghosts"))
	assert.Empty(t, plain.Entity)
	assert.Equal(t, "no_table", plain.Class)
	assert.NotEqual(t, e.ID, plain.ID)
}

func TestNatsNotifierPublishesJSON(t *testing.T) {
	rec := &publishRecorder{}
	n := NewNatsNotifier(rec, "")
	assert.Equal(t, DefaultSubject, n.Subject())

	n.Notify(context.Background(), bisna.EventException, saveFailure())

	require.Len(t, rec.payloads, 1)
	assert.Equal(t, DefaultSubject, rec.subjects[0])
	var got Event
	require.NoError(t, json.Unmarshal(rec.payloads[0], &got))
	assert.Equal(t, "exception", got.Event)
	assert.Equal(t, "User", got.Entity)
	assert.Equal(t, "duplicate_key", got.Class)
	assert.NoError(t, n.Close())
}

func TestNatsNotifierLogsPublishErrors(t *testing.T) {
	logger, hook := test.NewNullLogger()
	n := NewNatsNotifier(&publishRecorder{err: errors.New("nats: connection closed")}, "app.failures")
	n.logger = logger

	assert.NotPanics(t, func() { n.Notify(context.Background(), "exception", errors.New("boom")) })
	require.Len(t, hook.Entries, 1)
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	assert.Equal(t, "app.failures", hook.LastEntry().Data["subject"])
}

func TestConnectNatsFailsWithoutServer(t *testing.T) {
	_, err := ConnectNats("nats://127.0.0.1:1", "")
	assert.Error(t, err)
}

func TestLogNotifier(t *testing.T) {
	logger, hook := test.NewNullLogger()
	NewLogNotifier(logger).Notify(context.Background(), bisna.EventException, saveFailure())

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, "User", entry.Data["entity"])
	assert.Equal(t, "42", entry.Data["entity_id"])
	assert.Equal(t, "duplicate_key", entry.Data["class"])
	assert.Contains(t, entry.Message, "unable to save entity")
}

func TestMetricsNotifier(t *testing.T) {
	n := NewMetricsNotifier(prometheus.NewRegistry())
	ctx := context.Background()
	n.Notify(ctx, bisna.EventException, saveFailure())
	n.Notify(ctx, bisna.EventException, saveFailure())
	n.Notify(ctx, bisna.EventException, errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(n.Failures().WithLabelValues("exception", "save", "duplicate_key")))
	assert.Equal(t, 1.0, testutil.ToFloat64(n.Failures().WithLabelValues("exception", "", "unknown")))
}

func TestMulti(t *testing.T) {
	var got []string
	record := func(tag string) bisna.Notifier {
		return bisna.NotifierFunc(func(_ context.Context, event string, _ error) {
			got = append(got, tag+":"+event)
		})
	}
	m := NewMulti(record("a"), nil, record("b"))
	require.Len(t, m, 2)

	m.Notify(context.Background(), "exception", errors.New("boom"))
	assert.Equal(t, []string{"a:exception", "b:exception"}, got)
}
