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

	"github.com/sirupsen/logrus"

	"github.com/tomoncle/bisna"
	"github.com/tomoncle/bisna/utils"
)

// LogNotifier writes every failure as an error entry.
type LogNotifier struct {
	logger *logrus.Logger
}

var _ bisna.Notifier = (*LogNotifier)(nil)

// NewLogNotifier logs to logger, or to the "BISNA-NOTIFY" named logger when nil.
func NewLogNotifier(logger *logrus.Logger) *LogNotifier {
	if logger == nil {
		logger = utils.NewLogger("BISNA-NOTIFY")
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, event string, err error) {
	e := NewEvent(event, err)
	fields := logrus.Fields{"event": e.Event, "id": e.ID, "class": e.Class}
	if e.Entity != "" {
		fields["entity"] = e.Entity
		fields["operation"] = e.Operation
	}
	if e.EntityID != "" {
		fields["entity_id"] = e.EntityID
	}
	n.logger.WithFields(fields).Error(e.Error)
}
