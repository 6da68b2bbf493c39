// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Leveled logging for govmaf. Implements Warn, Info and Debug loggers as a
// minimal wrap around standard library's "log" package. Library packages log
// through here and stay silent until the application enables a level.
package logging

import (
	"fmt"
	"io"
	"log"
)

var (
	defaultOutput io.Writer = log.Default().Writer()
	debugFlags              = log.Ldate | log.Ltime | log.Lshortfile
	infoFlags               = log.Ldate | log.Ltime
	// Each log-level logger should be explicitly enabled via call to Enable*Logger().
	DebugLogger = log.New(io.Discard, debugPrefix, debugFlags)
	InfoLogger  = log.New(io.Discard, infoPrefix, infoFlags)
	WarnLogger  = log.New(io.Discard, warnPrefix, infoFlags)
)

const (
	debugPrefix = "DEBUG: "
	infoPrefix  = "INFO: "
	warnPrefix  = "WARN: "
	calldepth   = 2
)

// EnableWarnLogger helper function to explicitly enable WarnLogger.
func EnableWarnLogger() {
	WarnLogger.SetOutput(defaultOutput)
}

// EnableInfoLogger enables InfoLogger. Warnings are enabled along with it,
// there is no use case for info messages without warnings.
func EnableInfoLogger() {
	EnableWarnLogger()
	InfoLogger.SetOutput(defaultOutput)
}

// EnableDebugLogger helper function to explicitly enable DebugLogger.
func EnableDebugLogger() {
	DebugLogger.SetOutput(defaultOutput)
}

// DebugEnabled reports whether DebugLogger has been enabled.
func DebugEnabled() bool {
	return DebugLogger.Writer() != io.Discard
}

// DisableAll silences all loggers.
func DisableAll() {
	for _, l := range []*log.Logger{DebugLogger, InfoLogger, WarnLogger} {
		l.SetOutput(io.Discard)
	}
}

func Warnf(format string, v ...interface{}) {
	WarnLogger.Output(calldepth, fmt.Sprintf(format, v...))
}

func Info(v ...interface{}) {
	InfoLogger.Output(calldepth, fmt.Sprint(v...))
}

func Infof(format string, v ...interface{}) {
	InfoLogger.Output(calldepth, fmt.Sprintf(format, v...))
}

func Debug(v ...interface{}) {
	DebugLogger.Output(calldepth, fmt.Sprint(v...))
}

func Debugf(format string, v ...interface{}) {
	DebugLogger.Output(calldepth, fmt.Sprintf(format, v...))
}
