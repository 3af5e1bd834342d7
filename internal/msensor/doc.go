// Package msensor implements the mode table and value decoding shared by all
// multi-mode measurement sensors.
//
// A sensor driver describes each of its modes with a Mode entry (name, unit,
// decimal places, value count and raw format) and implements Driver for mode
// switching and raw writes. NewDevice binds both together; Device then answers
// every property query in terms of the active mode:
//
//	dev, _ := msensor.NewDevice(30, modes, driver)
//	_ = dev.SetMode("US-DIST-IN")
//	v, _ := dev.Value(0) // fixed-point, scaled by the mode's decimals
//
// Sensors that report IEEE 754 floats are converted with FloatToFixed, which
// works on the bit pattern only and needs no floating point arithmetic.
package msensor
