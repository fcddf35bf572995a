// Package notification implements bisna.Notifier sinks: a logrus logger,
// a NATS subject, a prometheus counter and a fan-out over several of them.
package notification
