// Package mqtt holds the broker connection of the Klafs vDC bridge.
//
// The vDC host talks to the bridge over MQTT. The klafs package owns the
// vDC topics and payloads and reaches the broker through a narrow
// interface; this package only deals with the connection itself:
//
//   - connect with auto-reconnect and optional TLS
//   - publish and subscribe with QoS checks
//   - restore subscriptions after the broker comes back
//   - announce the process on a retained presence topic, with a Last Will
//     so a crash is distinguishable from a clean shutdown
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe("vdc/"+vdcDSUID+"/request/+", 1,
//	    func(topic string, payload []byte) error {
//	        return handle(topic, payload)
//	    })
package mqtt
