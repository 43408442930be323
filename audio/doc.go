// Package audio defines the capabilities and data types exchanged between
// audio sources, the pump and audio processors.
//
// Format mirrors the packed WAVEFORMATEX record used by native audio
// subsystems; MarshalBinary and UnmarshalBinary produce and accept that
// layout byte for byte.
package audio
