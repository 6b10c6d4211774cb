// Package influxdb writes optional sauna telemetry to InfluxDB v2.
//
// After every poll that changed a value the bridge records each configured
// sensor and binary input as one point of the "sauna" measurement:
//
//	sauna,sauna_id=364cc9db,value=currentTemperature reading=78
//
// The maintenance loop adds bridge counters to "klafs_bridge":
//
//	klafs_bridge,bridge=klafs-vdc dropped_requests=0i,session_active=true,status="healthy"
//
// Writes are batched and non-blocking; batch failures go to the SetOnError
// callback. Connect returns ErrDisabled when the section is switched off,
// which callers treat as "no telemetry" rather than a failure.
package influxdb
