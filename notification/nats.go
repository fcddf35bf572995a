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

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/tomoncle/bisna"
	"github.com/tomoncle/bisna/utils"
)

// DefaultSubject is the subject events are published on when none is given.
const DefaultSubject = "bisna.failures"

// Publisher is the part of *nats.Conn the notifier needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NatsNotifier publishes every failure as a JSON Event.
type NatsNotifier struct {
	pub     Publisher
	conn    *nats.Conn
	subject string
	logger  *logrus.Logger
}

var _ bisna.Notifier = (*NatsNotifier)(nil)

func NewNatsNotifier(pub Publisher, subject string) *NatsNotifier {
	if subject == "" {
		subject = DefaultSubject
	}
	n := &NatsNotifier{pub: pub, subject: subject, logger: utils.NewLogger("BISNA-NOTIFY")}
	if nc, ok := pub.(*nats.Conn); ok {
		n.conn = nc
	}
	return n
}

// ConnectNats dials url and returns a notifier owning the connection.
func ConnectNats(url, subject string, opts ...nats.Option) (*NatsNotifier, error) {
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	return NewNatsNotifier(nc, subject), nil
}

func (n *NatsNotifier) Subject() string { return n.subject }

// Notify never fails the caller; publish errors are logged.
func (n *NatsNotifier) Notify(_ context.Context, event string, err error) {
	data, mErr := json.Marshal(NewEvent(event, err))
	if mErr != nil {
		n.logger.WithError(mErr).Error("failed to encode failure event")
		return
	}
	if pErr := n.pub.Publish(n.subject, data); pErr != nil {
		n.logger.WithError(pErr).WithField("subject", n.subject).Error("failed to publish failure event")
	}
}

// Close drains the connection when the notifier owns a *nats.Conn.
func (n *NatsNotifier) Close() error {
	if n.conn == nil {
		return nil
	}
	return n.conn.Drain()
}
