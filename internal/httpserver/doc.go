// Package httpserver runs the status HTTP listener of the monitor.
package httpserver
