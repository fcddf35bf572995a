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

package database

import (
	"bytes"
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsHook(t *testing.T) {
	db := newTestDB(t)
	hook := NewMetricsHook(prometheus.NewRegistry())
	db.AddQueryHook(hook)
	ctx := context.Background()

	_, err := db.NewInsert().Model(&User{Name: "alice"}).Exec(ctx)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, "SELECT * FROM missing_table")
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(hook.Errors().WithLabelValues("SELECT", "no_table")))
	assert.Equal(t, 2, testutil.CollectAndCount(hook.duration))
}

func TestQueryHookOutput(t *testing.T) {
	db := newTestDB(t)
	var buf bytes.Buffer
	db.AddQueryHook(NewQueryHook(WithQueryHookWriter(&buf), WithQueryHookEnv("BISNA_SQL_TEST")))
	ctx := context.Background()

	_, err := db.NewInsert().Model(&User{Name: "alice"}).Exec(ctx)
	require.NoError(t, err)
	assert.Empty(t, buf.String(), "successful statements are quiet unless verbose")

	_, _ = db.ExecContext(ctx, "SELECT * FROM missing_table")
	assert.Contains(t, buf.String(), "missing_table")

	buf.Reset()
	t.Setenv("BISNA_SQL_TEST", "2")
	_, err = db.NewSelect().Model((*User)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "SELECT count(*)")

	buf.Reset()
	t.Setenv("BISNA_SQL_TEST", "0")
	_, _ = db.ExecContext(ctx, "SELECT * FROM missing_table")
	assert.Empty(t, buf.String())

	buf.Reset()
	t.Setenv("BISNA_SQL_TEST", "2")
	SetQuerySilent(true)
	_, _ = db.ExecContext(ctx, "SELECT 1")
	SetQuerySilent(false)
	assert.Empty(t, buf.String())
}
