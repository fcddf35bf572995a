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
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomoncle/bisna/database"
	"github.com/tomoncle/bisna/types"
)

// Event is the published form of a failure notification.
type Event struct {
	ID        string    `json:"id"`
	Event     string    `json:"event"`
	Entity    string    `json:"entity,omitempty"`
	Operation string    `json:"operation,omitempty"`
	EntityID  string    `json:"entity_id,omitempty"`
	Error     string    `json:"error"`
	Class     string    `json:"class"`
	Time      time.Time `json:"time"`
}

// NewEvent describes err. Entity details are taken from a wrapped
// *types.PersistenceFailure when there is one.
func NewEvent(event string, err error) Event {
	e := Event{
		ID:    uuid.NewString(),
		Event: event,
		Class: database.ClassifyError(err),
		Time:  time.Now().UTC(),
	}
	if err != nil {
		e.Error = err.Error()
	}
	var pf *types.PersistenceFailure
	if errors.As(err, &pf) {
		e.Entity = pf.Entity
		e.Operation = string(pf.Op)
		if pf.HasID {
			e.EntityID = fmt.Sprint(pf.ID)
		}
		if pf.Reason != "" {
			e.Class = pf.Reason
		}
	}
	return e
}
