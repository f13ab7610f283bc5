// File: internal/log/log.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package log provides leveled logging on top of glog. Severity routing,
// verbosity (-v) and output destinations are controlled by the glog flags of
// the hosting binary.
package log

import (
	"fmt"

	"github.com/golang/glog"
)

// Depth logs on behalf of a caller d frames above the immediate one.
type Depth int

func (d Depth) Infof(format string, argv ...any) {
	glog.InfoDepth(int(d+1), fmt.Sprintf(format, argv...))
}

func (d Depth) Warningf(format string, argv ...any) {
	glog.WarningDepth(int(d+1), fmt.Sprintf(format, argv...))
}

func (d Depth) Errorf(format string, argv ...any) {
	glog.ErrorDepth(int(d+1), fmt.Sprintf(format, argv...))
}

func Infof(format string, argv ...any)    { Depth(1).Infof(format, argv...) }
func Warningf(format string, argv ...any) { Depth(1).Warningf(format, argv...) }
func Errorf(format string, argv ...any)   { Depth(1).Errorf(format, argv...) }

// V reports whether verbosity at level is enabled; hot paths guard their
// trace output with it.
func V(level glog.Level) glog.Verbose { return glog.V(level) }

func Flush() { glog.Flush() }
