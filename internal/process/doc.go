// Package process carries the process-wide stop request to every component.
package process
