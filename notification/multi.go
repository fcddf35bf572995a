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

	"github.com/tomoncle/bisna"
)

// Multi forwards every notification to each of its notifiers in order.
type Multi []bisna.Notifier

// NewMulti drops nil notifiers.
func NewMulti(notifiers ...bisna.Notifier) Multi {
	m := make(Multi, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			m = append(m, n)
		}
	}
	return m
}

func (m Multi) Notify(ctx context.Context, event string, err error) {
	for _, n := range m {
		n.Notify(ctx, event, err)
	}
}
