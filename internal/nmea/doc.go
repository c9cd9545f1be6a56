// Package nmea reassembles and decodes NMEA 0183 sentences from a raw
// GNSS byte stream.
//
// The framer tolerates sentences split across arbitrary read boundaries;
// the decoder validates checksums and turns GGA/GST/DTM sentences into
// typed reports for the position assembler.
package nmea
