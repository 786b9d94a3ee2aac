package aacfile

import "fmt"

// samplesPerRawBlock is the AAC frame length: every raw data block in an
// ADTS frame decodes to 1024 PCM frames per channel.
const samplesPerRawBlock = 1024

// adtsSampleRates is indexed by the sampling_frequency_index header field.
var adtsSampleRates = [...]int{
	96000, 88200, 64000, 48000, 44100, 32000,
	24000, 22050, 16000, 12000, 11025, 8000, 7350,
}

// adtsFrame records one ADTS frame found during the open-time scan.
type adtsFrame struct {
	offset     int64 // byte offset of the sync word
	size       int   // header + payload bytes
	firstFrame int64 // PCM frame index of the first decoded frame
	numFrames  int64 // PCM frames decoded from this ADTS frame
}

// scanADTS walks the whole stream once, validating sync words and
// collecting a frame table. The table is what makes seeking possible at
// all: ADTS carries no index, so byte offsets must be mapped to sample
// positions up front.
func scanADTS(data []byte) (frames []adtsFrame, sampleRate, channels int, err error) {
	var pcmPos int64
	pos := int64(0)
	for pos+7 <= int64(len(data)) {
		hdr := data[pos:]
		if hdr[0] != 0xFF || hdr[1]&0xF6 != 0xF0 {
			return nil, 0, 0, fmt.Errorf("aacfile: lost ADTS sync at offset %d", pos)
		}
		sfIndex := int(hdr[2]>>2) & 0x0F
		if sfIndex >= len(adtsSampleRates) {
			return nil, 0, 0, fmt.Errorf("aacfile: reserved sampling frequency index %d at offset %d", sfIndex, pos)
		}
		chanCfg := int(hdr[2]&0x01)<<2 | int(hdr[3]>>6)
		frameLen := int(hdr[3]&0x03)<<11 | int(hdr[4])<<3 | int(hdr[5]>>5)
		if frameLen < 7 || pos+int64(frameLen) > int64(len(data)) {
			return nil, 0, 0, fmt.Errorf("aacfile: truncated ADTS frame at offset %d", pos)
		}
		rawBlocks := int64(hdr[6]&0x03) + 1

		if frames == nil {
			sampleRate = adtsSampleRates[sfIndex]
			channels = chanCfg
		} else if adtsSampleRates[sfIndex] != sampleRate || chanCfg != channels {
			return nil, 0, 0, fmt.Errorf("aacfile: stream parameters change at offset %d", pos)
		}

		n := rawBlocks * samplesPerRawBlock
		frames = append(frames, adtsFrame{
			offset:     pos,
			size:       frameLen,
			firstFrame: pcmPos,
			numFrames:  n,
		})
		pcmPos += n
		pos += int64(frameLen)
	}
	if len(frames) == 0 {
		return nil, 0, 0, fmt.Errorf("aacfile: no ADTS frames found")
	}
	if channels == 0 {
		return nil, 0, 0, fmt.Errorf("aacfile: channel configuration 0 (PCE) is not supported")
	}
	return frames, sampleRate, channels, nil
}
