package design

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"image"
	"image/png"
	"io"
	"math"
)

// ErrNoDPI is returned by ReadPNGDPI when the file has no physical
// resolution chunk.
var ErrNoDPI = errors.New("png has no pHYs chunk")

const (
	pngSignature  = "\x89PNG\r\n\x1a\n"
	metresPerInch = 0.0254
)

// EncodePNG writes img as PNG with a pHYs chunk declaring dpi in both axes.
func EncodePNG(w io.Writer, img image.Image, dpi float64) error {
	if !(dpi > 0) {
		return fmt.Errorf("invalid dpi %v", dpi)
	}

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	data := buf.Bytes()

	// IHDR is always the first chunk: 4 length + 4 type + 13 data + 4 crc.
	ihdrEnd := len(pngSignature) + 25
	if len(data) < ihdrEnd || string(data[len(pngSignature)+4:len(pngSignature)+8]) != "IHDR" {
		return fmt.Errorf("encoder produced unexpected png layout")
	}

	ppm := uint32(math.Round(dpi / metresPerInch))
	var phys [9]byte
	binary.BigEndian.PutUint32(phys[0:4], ppm)
	binary.BigEndian.PutUint32(phys[4:8], ppm)
	phys[8] = 1 // unit: metre

	if _, err := w.Write(data[:ihdrEnd]); err != nil {
		return err
	}
	if err := writeChunk(w, "pHYs", phys[:]); err != nil {
		return err
	}
	_, err := w.Write(data[ihdrEnd:])
	return err
}

func writeChunk(w io.Writer, typ string, payload []byte) error {
	var header [8]byte
	binary.BigEndian.PutUint32(header[0:4], uint32(len(payload)))
	copy(header[4:8], typ)

	crc := crc32.NewIEEE()
	crc.Write(header[4:8])
	crc.Write(payload)
	var sum [4]byte
	binary.BigEndian.PutUint32(sum[:], crc.Sum32())

	for _, b := range [][]byte{header[:], payload, sum[:]} {
		if _, err := w.Write(b); err != nil {
			return err
		}
	}
	return nil
}

// ReadPNGDPI returns the horizontal resolution declared by a PNG stream's
// pHYs chunk. Only metre-based units carry a physical resolution.
func ReadPNGDPI(r io.Reader) (float64, error) {
	sig := make([]byte, len(pngSignature))
	if _, err := io.ReadFull(r, sig); err != nil {
		return 0, err
	}
	if string(sig) != pngSignature {
		return 0, fmt.Errorf("not a png file")
	}

	var header [8]byte
	for {
		if _, err := io.ReadFull(r, header[:]); err != nil {
			return 0, err
		}
		length := binary.BigEndian.Uint32(header[0:4])
		typ := string(header[4:8])

		switch typ {
		case "pHYs":
			if length != 9 {
				return 0, fmt.Errorf("malformed pHYs chunk")
			}
			var phys [9]byte
			if _, err := io.ReadFull(r, phys[:]); err != nil {
				return 0, err
			}
			if phys[8] != 1 {
				return 0, ErrNoDPI
			}
			return float64(binary.BigEndian.Uint32(phys[0:4])) * metresPerInch, nil
		case "IDAT", "IEND":
			// pHYs must precede image data.
			return 0, ErrNoDPI
		}

		if _, err := io.CopyN(io.Discard, r, int64(length)+4); err != nil {
			return 0, err
		}
	}
}
