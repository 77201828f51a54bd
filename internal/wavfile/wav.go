// Copyright (c) 2023-2025 Voxrelay
//
// Licensed under GPL-2.0 with Voxrelay Additional Terms.

// Package wavfile frames raw PCM into a canonical 44-byte RIFF/WAVE header,
// matching the style of the teacher's audio recorder (createWAVFile).
package wavfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	headerSize   = 44
	pcmFormatTag = 1
)

// Format describes the PCM layout declared in a WAV header.
type Format struct {
	Channels   uint16
	SampleRate uint32
	BitDepth   uint16
}

// Wrap prepends a 44-byte canonical PCM WAV header to pcm. Callers are
// responsible for consistency between pcm and the declared format.
func Wrap(pcm []byte, format Format) []byte {
	byteRate := format.SampleRate * uint32(format.Channels) * uint32(format.BitDepth) / 8
	blockAlign := format.Channels * format.BitDepth / 8

	buf := bytes.NewBuffer(make([]byte, 0, headerSize+len(pcm)))
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(pcmFormatTag))
	binary.Write(buf, binary.LittleEndian, format.Channels)
	binary.Write(buf, binary.LittleEndian, format.SampleRate)
	binary.Write(buf, binary.LittleEndian, byteRate)
	binary.Write(buf, binary.LittleEndian, blockAlign)
	binary.Write(buf, binary.LittleEndian, format.BitDepth)

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}

// Parsed is the result of Parse: the declared format plus the data payload.
type Parsed struct {
	Format Format
	Data   []byte
}

// Parse validates and decodes a canonical PCM WAV buffer produced by Wrap.
// It is used by tests (round-trip property) and could back a future
// ingestion path for pre-recorded playback prompts.
func Parse(wav []byte) (*Parsed, error) {
	if len(wav) < headerSize {
		return nil, fmt.Errorf("wavfile: buffer too short for a WAV header: %d bytes", len(wav))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return nil, fmt.Errorf("wavfile: not a RIFF/WAVE buffer")
	}
	if string(wav[12:16]) != "fmt " || string(wav[36:40]) != "data" {
		return nil, fmt.Errorf("wavfile: missing fmt/data subchunks")
	}

	format := Format{
		Channels:   binary.LittleEndian.Uint16(wav[22:24]),
		SampleRate: binary.LittleEndian.Uint32(wav[24:28]),
		BitDepth:   binary.LittleEndian.Uint16(wav[34:36]),
	}
	dataLen := binary.LittleEndian.Uint32(wav[40:44])
	if int(dataLen) > len(wav)-headerSize {
		return nil, fmt.Errorf("wavfile: declared data length %d exceeds buffer", dataLen)
	}

	return &Parsed{Format: format, Data: wav[headerSize : headerSize+int(dataLen)]}, nil
}
