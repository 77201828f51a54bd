// Copyright (c) 2023-2025 Voxrelay
//
// Licensed under GPL-2.0 with Voxrelay Additional Terms.

// Package codec converts the telephony µ-law (G.711) wire format to the
// 16-bit linear PCM the recognizer and prompt cache operate on.
package codec

import "github.com/zaf/g711"

// UlawToPCM maps each µ-law byte to a signed 16-bit little-endian PCM
// sample. Output length is always 2x input length.
func UlawToPCM(ulaw []byte) []byte {
	return g711.DecodeUlaw(ulaw)
}

// PCMToUlaw is the inverse conversion, from 16-bit little-endian PCM
// to µ-law. Output length is half the input length.
func PCMToUlaw(pcm []byte) []byte {
	return g711.EncodeUlaw(pcm)
}
