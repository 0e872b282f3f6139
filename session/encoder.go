package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

const (
	blobFormatVersionCurrent = 2
	blobFormatVersionV1      = 1
)

// CurrentBlobVersion is the schema version written by Encode.
const CurrentBlobVersion = blobFormatVersionCurrent

// Blob is the persisted form of a session.
type Blob struct {
	Pair                 Pair
	ExpiresAtEpochMillis int64
	SavedAtEpochMillis   int64
	Portal               string
}

// Encode serializes b into the current binary layout:
//
//	version(1) | len(2) access | len(2) refresh | exp(8) | saved(8) | len(1) portal
//
// v1 blobs carry no portal field and are still decoded.
func Encode(b Blob) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(blobFormatVersionCurrent)

	if err := writeString16(&buf, b.Pair.AccessToken); err != nil {
		return nil, fmt.Errorf("access token: %w", err)
	}
	if err := writeString16(&buf, b.Pair.RefreshToken); err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	if err := binary.Write(&buf, binary.BigEndian, b.ExpiresAtEpochMillis); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, b.SavedAtEpochMillis); err != nil {
		return nil, err
	}

	if len(b.Portal) > 255 {
		return nil, errors.New("portal too long")
	}
	buf.WriteByte(byte(len(b.Portal)))
	buf.WriteString(b.Portal)

	return buf.Bytes(), nil
}

// Decode parses a blob written by any supported version of Encode.
func Decode(data []byte) (Blob, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return Blob{}, fmt.Errorf("%w: %v", ErrCorruptBlob, err)
	}
	if version != blobFormatVersionCurrent && version != blobFormatVersionV1 {
		return Blob{}, fmt.Errorf("%w: unsupported blob schema version %d", ErrCorruptBlob, version)
	}

	var b Blob
	if b.Pair.AccessToken, err = readString16(reader); err != nil {
		return Blob{}, fmt.Errorf("%w: access token: %v", ErrCorruptBlob, err)
	}
	if b.Pair.RefreshToken, err = readString16(reader); err != nil {
		return Blob{}, fmt.Errorf("%w: refresh token: %v", ErrCorruptBlob, err)
	}
	if err := binary.Read(reader, binary.BigEndian, &b.ExpiresAtEpochMillis); err != nil {
		return Blob{}, fmt.Errorf("%w: expiry: %v", ErrCorruptBlob, err)
	}
	if err := binary.Read(reader, binary.BigEndian, &b.SavedAtEpochMillis); err != nil {
		return Blob{}, fmt.Errorf("%w: saved at: %v", ErrCorruptBlob, err)
	}

	if version == blobFormatVersionCurrent {
		portalLen, err := reader.ReadByte()
		if err != nil {
			return Blob{}, fmt.Errorf("%w: portal: %v", ErrCorruptBlob, err)
		}
		portal := make([]byte, portalLen)
		if _, err := io.ReadFull(reader, portal); err != nil {
			return Blob{}, fmt.Errorf("%w: portal: %v", ErrCorruptBlob, err)
		}
		b.Portal = string(portal)
	}

	if reader.Len() != 0 {
		return Blob{}, fmt.Errorf("%w: %d trailing bytes", ErrCorruptBlob, reader.Len())
	}
	if !b.Pair.Empty() && !b.Pair.Complete() {
		return Blob{}, fmt.Errorf("%w: half-populated token pair", ErrCorruptBlob)
	}

	return b, nil
}

func writeString16(buf *bytes.Buffer, s string) error {
	if len(s) > math.MaxUint16 {
		return errors.New("value too long")
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(s))); err != nil {
		return err
	}
	buf.WriteString(s)
	return nil
}

func readString16(r *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		return "", err
	}
	return string(out), nil
}
