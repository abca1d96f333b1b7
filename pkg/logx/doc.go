// Package logx is a small structured-logging layer over zerolog.
//
// It exists so that agents and services share one logger shape without
// importing zerolog directly everywhere. The zero value of Logger is a
// safe no-op, which keeps constructors usable in tests without wiring.
package logx
