// Package klafs bridges a Klafs sauna, reachable through the Klafs cloud,
// onto a digitalSTROM-style vDC bus carried over MQTT.
//
// The Bridge owns a value store of configured sensor and binary input
// slots, a scene table and the last known appliance state. Two loops run
// side by side:
//
//   - the poll loop (RunPoller) fetches the appliance status on a fixed
//     interval, folds it into the store and flags changed values;
//   - the bus loop (RunBus) handles one inbound request at a time and then
//     advances the device lifecycle: announce, identify, vanish and push
//     changed values.
//
// Bus commands arrive as named dynamic actions or numbered scenes and are
// translated into ordered cloud calls. Property queries are answered from
// the store through per-scope handler tables.
//
// VDCBus is the MQTT transport. Requests arrive on
// {prefix}/{vdc_dsuid}/request/{kind}; announcements, pushes, pongs and
// responses leave on sibling topics.
package klafs
