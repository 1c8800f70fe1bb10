// Package log bridges third-party logger interfaces onto the process-wide
// logrus entries, so the snapshot store's badger output carries the same
// component fields as the rest of the run.
package log

import "github.com/sirupsen/logrus"

// BadgerLogrusAdapter satisfies badger.Logger over a scoped *logrus.Entry,
// with the forwarders pinning the expected method set at compile time.
type BadgerLogrusAdapter struct {
	*logrus.Entry
}

// NewBadgerLogrusAdapter wraps entry for use as a badger.Logger.
func NewBadgerLogrusAdapter(entry *logrus.Entry) *BadgerLogrusAdapter {
	return &BadgerLogrusAdapter{entry}
}

func (l *BadgerLogrusAdapter) Errorf(f string, v ...interface{})   { l.Entry.Errorf(f, v...) }
func (l *BadgerLogrusAdapter) Warningf(f string, v ...interface{}) { l.Entry.Warningf(f, v...) }
func (l *BadgerLogrusAdapter) Infof(f string, v ...interface{})    { l.Entry.Infof(f, v...) }
func (l *BadgerLogrusAdapter) Debugf(f string, v ...interface{})   { l.Entry.Debugf(f, v...) }
