// Package radio keeps the last known state of the transceiver so status
// can be served without touching the device.
package radio
