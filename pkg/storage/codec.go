package storage

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Gallery file layout:
//
//	magic   [4]byte  "FFGL"
//	version uint8
//	flags   uint8    bit 0 zstd, bit 1 secretbox
//	_       [2]byte
//	length  uint64   payload length, big endian
//	sum     [32]byte SHA-256 of the payload
//	payload [length]byte
const (
	formatVersion = 1
	headerSize    = 4 + 1 + 1 + 2 + 8 + sha256.Size

	flagZstd      = 1 << 0
	flagEncrypted = 1 << 1
)

var magic = [4]byte{'F', 'F', 'G', 'L'}

// Compression selects how the gallery payload is compressed on disk.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionZstd Compression = "zstd"
)

// ParseCompression validates a configured compression name.
func ParseCompression(s string) (Compression, error) {
	switch Compression(s) {
	case CompressionNone, "":
		return CompressionNone, nil
	case CompressionZstd:
		return CompressionZstd, nil
	default:
		return "", fmt.Errorf("unknown compression %q (must be none or zstd)", s)
	}
}

// codec frames, compresses and optionally encrypts gallery documents.
type codec struct {
	compression Compression
	key         *[KeySize]byte

	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newCodec(compression Compression, key *[KeySize]byte) (*codec, error) {
	c := &codec{compression: compression, key: key}

	// Decoder is always available so a gallery written with zstd can be
	// read after compression is turned off.
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	c.dec = dec

	if compression == CompressionZstd {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			dec.Close()
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		c.enc = enc
	}
	return c, nil
}

func (c *codec) close() {
	if c.enc != nil {
		_ = c.enc.Close()
	}
	c.dec.Close()
}

// encode wraps a serialized document in the gallery envelope.
func (c *codec) encode(doc []byte) ([]byte, error) {
	var flags uint8
	payload := doc

	if c.enc != nil {
		payload = c.enc.EncodeAll(payload, make([]byte, 0, len(payload)/2))
		flags |= flagZstd
	}

	if c.key != nil {
		sealed, err := seal(c.key, payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEncryption, err)
		}
		payload = sealed
		flags |= flagEncrypted
	}

	sum := sha256.Sum256(payload)

	buf := bytes.NewBuffer(make([]byte, 0, headerSize+len(payload)))
	buf.Write(magic[:])
	buf.WriteByte(formatVersion)
	buf.WriteByte(flags)
	buf.Write([]byte{0, 0})
	_ = binary.Write(buf, binary.BigEndian, uint64(len(payload)))
	buf.Write(sum[:])
	buf.Write(payload)
	return buf.Bytes(), nil
}

// decode validates the envelope and returns the serialized document.
// Any framing, checksum, decryption or decompression error is reported as
// ErrGalleryCorrupt.
func (c *codec) decode(data []byte) ([]byte, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: file is %d bytes, shorter than header", ErrGalleryCorrupt, len(data))
	}
	if !bytes.Equal(data[0:4], magic[:]) {
		return nil, fmt.Errorf("%w: bad magic %q", ErrGalleryCorrupt, data[0:4])
	}
	if v := data[4]; v != formatVersion {
		return nil, fmt.Errorf("%w: unsupported format version %d", ErrGalleryCorrupt, v)
	}
	flags := data[5]
	length := binary.BigEndian.Uint64(data[8:16])
	payload := data[headerSize:]
	if uint64(len(payload)) != length {
		return nil, fmt.Errorf("%w: payload is %d bytes, header says %d", ErrGalleryCorrupt, len(payload), length)
	}
	sum := sha256.Sum256(payload)
	if !bytes.Equal(sum[:], data[16:headerSize]) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrGalleryCorrupt)
	}

	if flags&flagEncrypted != 0 {
		if c.key == nil {
			return nil, fmt.Errorf("%w: gallery is encrypted but encryption is disabled", ErrGalleryCorrupt)
		}
		plain, err := open(c.key, payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrGalleryCorrupt, err)
		}
		payload = plain
	}

	if flags&flagZstd != 0 {
		raw, err := c.dec.DecodeAll(payload, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: decompress: %v", ErrGalleryCorrupt, err)
		}
		payload = raw
	}
	return payload, nil
}
