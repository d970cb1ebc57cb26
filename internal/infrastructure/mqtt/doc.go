// Package mqtt publishes feederpull run events to an MQTT broker.
//
// A batch run announces itself on {prefix}/run/started, reports each
// feeder file on {prefix}/feeder/{circuit_id}/written (or .../failed), and
// closes with {prefix}/run/finished carrying the run counters. A retained
// {prefix}/status message, backed by a Last Will, tells subscribers whether
// a run is in progress or the process died mid-run.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishJSON(client.Topics().FeederWritten("F100"), event)
//
// # Security Considerations
//
//   - Use TLS (mqtt.broker.tls) when the broker is not on localhost
//   - Credentials come from mqtt.auth or FEEDERPULL_MQTT_USERNAME/PASSWORD
package mqtt
