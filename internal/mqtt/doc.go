// Package mqtt is a small publish-only wrapper around paho.mqtt.golang.
//
// The client announces itself on <prefix>/status as a retained message and
// registers a last will so subscribers see the daemon go offline when it
// dies without closing the connection.
package mqtt
