// Package trainingreport imports device-recorded FIT activities into the raw
// activity table and renders plain-text training-load notes.
package trainingreport
